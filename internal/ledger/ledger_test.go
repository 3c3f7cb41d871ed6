package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileRecordAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "ledger.jsonl")
	l, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	want := []Entry{
		{RunID: "r1", Item: "teil1", Stage: "resolve", Status: StatusOK, Started: started, ElapsedMS: 1200},
		{RunID: "r1", Item: "teil1", Stage: "record", Status: StatusFailed, Error: "timeout", Started: started,
			Details: map[string]string{"resume": "record"}},
	}
	for _, e := range want {
		if err := l.Record(context.Background(), e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	l.Close(context.Background())

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("entries = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Stage != want[i].Stage || got[i].Status != want[i].Status || got[i].Error != want[i].Error {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
		if !got[i].Started.Equal(started) {
			t.Errorf("entry %d started = %v, want %v", i, got[i].Started, started)
		}
	}
	if got[1].Details["resume"] != "record" {
		t.Errorf("details = %v", got[1].Details)
	}
}

func TestFileAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	for i := 0; i < 2; i++ {
		l, err := OpenFile(path)
		if err != nil {
			t.Fatal(err)
		}
		l.Record(context.Background(), Entry{Stage: "sync", Status: StatusOK})
		l.Close(context.Background())
	}
	got, _ := ReadFile(path)
	if len(got) != 2 {
		t.Errorf("entries = %d, want 2", len(got))
	}
}

func TestFileConcurrentRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l, _ := OpenFile(path)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(context.Background(), Entry{Stage: "resolve", Status: StatusOK})
		}()
	}
	wg.Wait()
	l.Close(context.Background())

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("entries = %d, want 20", len(got))
	}
}

func TestNop(t *testing.T) {
	var l Ledger = Nop{}
	if err := l.Record(context.Background(), Entry{}); err != nil {
		t.Errorf("Record: %v", err)
	}
}
