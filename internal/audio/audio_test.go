package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/examcast/internal/content"
	"github.com/satindergrewal/examcast/internal/timeline"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

// --- Smoothstep ---

func TestSmoothstepBoundaries(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		got := Smoothstep(tt.input)
		if got != tt.want {
			t.Errorf("Smoothstep(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSmoothstepMonotonic(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 100; i++ {
		x := float64(i) / 100.0
		val := Smoothstep(x)
		if val < prev {
			t.Errorf("Smoothstep not monotonic: f(%v)=%v < f(%v)=%v", x, val, float64(i-1)/100.0, prev)
		}
		prev = val
	}
}

func TestSmoothstepSymmetry(t *testing.T) {
	// Smoothstep is symmetric around 0.5: f(0.5+d) + f(0.5-d) = 1
	for _, d := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		sum := Smoothstep(0.5+d) + Smoothstep(0.5-d)
		if diff := sum - 1.0; diff > 1e-10 || diff < -1e-10 {
			t.Errorf("Smoothstep symmetry broken at d=%v: sum=%v", d, sum)
		}
	}
}

// --- FadeEdges / Fit ---

func TestFadeEdgesRamps(t *testing.T) {
	clip := make([]int16, 100*Channels)
	for i := range clip {
		clip[i] = 10000
	}
	FadeEdges(clip, 10)

	if clip[0] != 0 || clip[1] != 0 {
		t.Errorf("first frame = %d,%d, want silence", clip[0], clip[1])
	}
	if last := clip[len(clip)-1]; last != 0 {
		t.Errorf("last sample = %d, want silence", last)
	}
	if mid := clip[50*Channels]; mid != 10000 {
		t.Errorf("middle sample = %d, want untouched 10000", mid)
	}
	for i := 1; i < 10; i++ {
		if clip[i*Channels] < clip[(i-1)*Channels] {
			t.Errorf("fade-in not monotonic at frame %d", i)
		}
	}
}

func TestFadeEdgesShortClip(t *testing.T) {
	clip := []int16{500, 500, 500, 500} // two frames
	FadeEdges(clip, 480)
	// fade clamps to one frame per edge: both frames start their ramp at 0
	for i, v := range clip {
		if v != 0 {
			t.Errorf("sample[%d] = %d, want 0", i, v)
		}
	}
	FadeEdges(nil, 10) // must not panic
}

func TestFit(t *testing.T) {
	clip := []int16{1, 2, 3, 4}
	if got := Fit(clip, 2); len(got) != 2 || got[1] != 2 {
		t.Errorf("Fit truncate = %v", got)
	}
	got := Fit(clip, 6)
	if len(got) != 6 || got[3] != 4 || got[5] != 0 {
		t.Errorf("Fit pad = %v", got)
	}
	got[0] = 99
	if clip[0] != 1 {
		t.Error("Fit must copy, not alias")
	}
}

// --- SampleAt ---

func TestSampleAt(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{time.Second, 48000},
		{20 * time.Millisecond, 960},
		{1500 * time.Millisecond, 72000},
		{100 * time.Second, 4800000},
	}
	for _, tt := range tests {
		if got := SampleAt(tt.d); got != tt.want {
			t.Errorf("SampleAt(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

// --- ParseDuration ---

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"6.000000\n", 6 * time.Second, false},
		{"4.0236", 4024 * time.Millisecond, false},
		{"N/A", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// --- SamplesToBytes / round-trip ---

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}

	// Verify little-endian encoding manually for a few values
	// 256 = 0x0100 -> bytes [0x00, 0x01]
	idx := 5 * 2
	if buf[idx] != 0x00 || buf[idx+1] != 0x01 {
		t.Errorf("Sample 256 encoded as [%02x, %02x], want [00, 01]", buf[idx], buf[idx+1])
	}
}

func TestSamplesBytesRoundTrip(t *testing.T) {
	original := []int16{0, 1, -1, 32767, -32768, 12345, -6789}
	buf := SamplesToBytes(original)

	// Decode back
	recovered := make([]int16, len(buf)/2)
	for i := range recovered {
		recovered[i] = int16(uint16(buf[i*2]) | uint16(buf[i*2+1])<<8)
	}

	for i, v := range original {
		if recovered[i] != v {
			t.Errorf("Round-trip sample[%d]: got %d, want %d", i, recovered[i], v)
		}
	}
}

// --- Mixdown ---

func testSequence() *timeline.Sequence {
	src := func(id string) *string { return &id }
	return &timeline.Sequence{Total: 50 * time.Millisecond, Segments: []timeline.Segment{
		{ID: "text_1", Kind: content.KindText, Duration: 20 * time.Millisecond, Source: src("text_1"), Asset: "a.mp3"},
		{ID: "pause_after_text_1", Kind: content.KindPause, Start: 20 * time.Millisecond, Duration: 10 * time.Millisecond},
		{ID: "question_1", Kind: content.KindQuestion, Start: 30 * time.Millisecond, Duration: 0, Source: src("question_1")},
		{ID: "text_1_play_2", Kind: content.KindText, Start: 30 * time.Millisecond, Duration: 20 * time.Millisecond, Source: src("text_1"), Asset: "a.mp3"},
	}}
}

func TestMixdownPlacesClips(t *testing.T) {
	decodes := 0
	a := &Assembler{
		log: zap.NewNop(),
		decode: func(ctx context.Context, path string) ([]int16, error) {
			decodes++
			clip := make([]int16, 5*FrameSamples) // longer than the segment
			for i := range clip {
				clip[i] = 7
			}
			return clip, nil
		},
	}
	var buf bytes.Buffer
	if err := a.Mixdown(context.Background(), testSequence(), &buf); err != nil {
		t.Fatalf("Mixdown: %v", err)
	}

	samples := BytesToSamples(buf.Bytes())
	if want := SampleAt(50*time.Millisecond) * Channels; len(samples) != want {
		t.Fatalf("len = %d samples, want %d", len(samples), want)
	}
	gapStart := SampleAt(20*time.Millisecond) * Channels
	gapEnd := SampleAt(30*time.Millisecond) * Channels
	for i := gapStart; i < gapEnd; i++ {
		if samples[i] != 0 {
			t.Fatalf("gap sample %d = %d, want silence", i, samples[i])
		}
	}
	if samples[0] != 7 || samples[gapEnd] != 7 {
		t.Errorf("clip samples = %d/%d, want 7 at both clip starts", samples[0], samples[gapEnd])
	}
	if decodes != 1 {
		t.Errorf("decodes = %d, want 1 (repeat reuses the decoded clip)", decodes)
	}
}

func TestMixdownDecodeError(t *testing.T) {
	a := &Assembler{
		log: zap.NewNop(),
		decode: func(ctx context.Context, path string) ([]int16, error) {
			return nil, errors.New("corrupt")
		},
	}
	if err := a.Mixdown(context.Background(), testSequence(), io.Discard); err == nil {
		t.Error("expected decode error")
	}
}

// --- Player ---

func TestPlayerPlaysAllFrames(t *testing.T) {
	p := NewPlayer(zap.NewNop())
	samples := make([]int16, 2*FrameSamples+10)
	go p.Run(context.Background(), samples, false)

	frames := 0
	for f := range p.Frames() {
		if len(f) != FrameSamples {
			t.Errorf("frame %d has %d samples, want %d", frames, len(f), FrameSamples)
		}
		frames++
	}
	if frames != 3 {
		t.Errorf("frames = %d, want 3", frames)
	}
	pos, dur := p.Status()
	if pos != dur {
		t.Errorf("position %v != duration %v after playback", pos, dur)
	}
}

func TestPlayerCancel(t *testing.T) {
	p := NewPlayer(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx, make([]int16, 1000*FrameSamples), true)
	<-p.Frames()
	cancel()
	for range p.Frames() {
	}
}

func TestPlayerSeekNonBlocking(t *testing.T) {
	p := NewPlayer(zap.NewNop())
	p.Seek(time.Second)
	p.Seek(2 * time.Second) // replaces the pending seek
	if got := <-p.seekCh; got != 2*time.Second {
		t.Errorf("pending seek = %v, want 2s", got)
	}
}
