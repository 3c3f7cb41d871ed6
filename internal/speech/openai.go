package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenAI synthesizes speech through an OpenAI-compatible /v1/audio/speech
// endpoint. Voice.Engine is sent as the model.
type OpenAI struct {
	baseURL string
	apiKey  string
	http    *http.Client
	measure Measurer
	log     *zap.Logger
}

// NewOpenAI creates a client for baseURL (e.g. https://api.openai.com).
func NewOpenAI(baseURL, apiKey string, measure Measurer, log *zap.Logger) *OpenAI {
	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
		measure: measure,
		log:     log,
	}
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func (o *OpenAI) Synthesize(ctx context.Context, text string, voice Voice, outPath string) (Clip, error) {
	body, err := json.Marshal(speechRequest{Model: voice.Engine, Input: text, Voice: voice.Name, ResponseFormat: "mp3"})
	if err != nil {
		return Clip{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return Clip{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		reason := ReasonFailed
		var netErr net.Error
		if errors.As(err, &netErr) {
			reason = ReasonNetwork
		}
		return Clip{}, &SynthesisError{Voice: voice.Name, Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		reason := ReasonFailed
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			reason = ReasonQuota
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
			reason = ReasonUnsupportedVoice
		case resp.StatusCode >= 500:
			reason = ReasonNetwork
		}
		return Clip{}, &SynthesisError{
			Voice:  voice.Name,
			Reason: reason,
			Err:    fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}

	f, err := os.Create(outPath)
	if err != nil {
		return Clip{}, fmt.Errorf("create clip: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return Clip{}, &SynthesisError{Voice: voice.Name, Reason: ReasonNetwork, Err: err}
	}
	if err := f.Close(); err != nil {
		return Clip{}, fmt.Errorf("close clip: %w", err)
	}

	d, err := o.measure.Duration(ctx, outPath)
	if err != nil {
		return Clip{}, fmt.Errorf("measure clip: %w", err)
	}
	o.log.Debug("openai clip", zap.String("voice", voice.Name), zap.String("model", voice.Engine), zap.Int("chars", len(text)))
	return Clip{Path: outPath, Duration: d}, nil
}
