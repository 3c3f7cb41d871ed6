package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, in *polly.SynthesizeSpeechInput, opts ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
	DescribeVoices(ctx context.Context, in *polly.DescribeVoicesInput, opts ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
}

// Polly synthesizes speech with Amazon Polly as mp3.
type Polly struct {
	client     pollyAPI
	sampleRate string
	measure    Measurer
	log        *zap.Logger
}

// NewPolly builds a Polly client from the default AWS credential chain.
// The client is owned by the returned value; nothing is kept globally.
func NewPolly(ctx context.Context, region, sampleRate string, measure Measurer, log *zap.Logger) (*Polly, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Polly{
		client:     polly.NewFromConfig(cfg),
		sampleRate: sampleRate,
		measure:    measure,
		log:        log,
	}, nil
}

func (p *Polly) Synthesize(ctx context.Context, text string, voice Voice, outPath string) (Clip, error) {
	in := &polly.SynthesizeSpeechInput{
		OutputFormat: types.OutputFormatMp3,
		Text:         aws.String(text),
		VoiceId:      types.VoiceId(voice.Name),
	}
	if voice.Engine != "" {
		in.Engine = types.Engine(voice.Engine)
	}
	if p.sampleRate != "" {
		in.SampleRate = aws.String(p.sampleRate)
	}

	out, err := p.client.SynthesizeSpeech(ctx, in)
	if err != nil {
		return Clip{}, &SynthesisError{Voice: voice.Name, Reason: classifyPolly(err), Err: err}
	}
	defer out.AudioStream.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return Clip{}, fmt.Errorf("create clip: %w", err)
	}
	if _, err := io.Copy(f, out.AudioStream); err != nil {
		f.Close()
		return Clip{}, &SynthesisError{Voice: voice.Name, Reason: ReasonNetwork, Err: fmt.Errorf("read audio stream: %w", err)}
	}
	if err := f.Close(); err != nil {
		return Clip{}, fmt.Errorf("close clip: %w", err)
	}

	d, err := p.measure.Duration(ctx, outPath)
	if err != nil {
		return Clip{}, fmt.Errorf("measure clip: %w", err)
	}
	p.log.Debug("polly clip", zap.String("voice", voice.Name), zap.String("engine", voice.Engine), zap.Int("chars", len(text)))
	return Clip{Path: outPath, Duration: d}, nil
}

// Check verifies credentials and that engine offers at least one voice.
func (p *Polly) Check(ctx context.Context, engine string) error {
	in := &polly.DescribeVoicesInput{}
	if engine != "" {
		in.Engine = types.Engine(engine)
	}
	out, err := p.client.DescribeVoices(ctx, in)
	if err != nil {
		return fmt.Errorf("describe polly voices: %w", err)
	}
	if len(out.Voices) == 0 {
		return fmt.Errorf("polly offers no voices for engine %q", engine)
	}
	return nil
}

func classifyPolly(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
			return ReasonQuota
		case "ValidationException", "EngineNotSupportedException", "LanguageNotSupportedException", "InvalidSampleRateException":
			return ReasonUnsupportedVoice
		}
		return ReasonFailed
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ReasonNetwork
	}
	return ReasonFailed
}
