package ledger

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo stores entries in the stage_runs collection.
type Mongo struct {
	client *mongo.Client
	runs   *mongo.Collection
}

// DialMongo connects, pings, and ensures the collection's indexes.
func DialMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	runs := client.Database(database).Collection("stage_runs")
	_, err = runs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "item", Value: 1}, {Key: "started", Value: -1}}},
		{Keys: bson.D{{Key: "run_id", Value: 1}}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create ledger indexes: %w", err)
	}
	return &Mongo{client: client, runs: runs}, nil
}

func (m *Mongo) Record(ctx context.Context, e Entry) error {
	if _, err := m.runs.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("insert stage run: %w", err)
	}
	return nil
}

// Last returns the most recent entries for item, newest first.
func (m *Mongo) Last(ctx context.Context, item string, n int64) ([]Entry, error) {
	cur, err := m.runs.Find(ctx,
		bson.M{"item": item},
		options.Find().SetSort(bson.D{{Key: "started", Value: -1}}).SetLimit(n),
	)
	if err != nil {
		return nil, fmt.Errorf("find stage runs: %w", err)
	}
	var entries []Entry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode stage runs: %w", err)
	}
	return entries, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
