// Package transcriber converts voice notes to text with the speech model.
package transcriber

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bouwupdate/intake-api/pkg/gemini"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/metrics"
)

const (
	defaultTimeout  = 60 * time.Second
	defaultLanguage = "nl"
)

const systemPrompt = `Je transcribeert spraakberichten van bouwplaatsmedewerkers.
Antwoord uitsluitend met een JSON-object.`

const prompt = `Transcribeer dit spraakbericht woordelijk. Antwoord met:
{"text": "volledige transcriptie", "duration_seconds": 0, "language": "nl"}`

// Stage names the step a transcription failed in.
type Stage string

const (
	StageRequest Stage = "request"
	StageDecode  Stage = "decode"
	StageEmpty   Stage = "empty"
)

// TranscriptionError is returned for every failed transcription.
type TranscriptionError struct {
	Stage Stage
	Err   error
}

func (e *TranscriptionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transcription failed at %s", e.Stage)
	}
	return fmt.Sprintf("transcription failed at %s: %v", e.Stage, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Transcript is the result of a successful transcription. Duration is zero
// when the model did not report one.
type Transcript struct {
	Text     string
	Duration time.Duration
	Language string
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcript, error)
}

type Service struct {
	gen     gemini.Generator
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func NewService(gen gemini.Generator, timeout time.Duration, m *metrics.Metrics, log *logger.Logger) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{gen: gen, timeout: timeout, metrics: m, logger: log}
}

type response struct {
	Text            string   `json:"text"`
	DurationSeconds *float64 `json:"duration_seconds"`
	Language        string   `json:"language"`
}

func (s *Service) Transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcript, error) {
	start := time.Now()
	t, err := s.transcribe(ctx, audio, mimeType)
	result := "success"
	if err != nil {
		result = "failure"
	}
	s.metrics.ObserveTranscription(result, time.Since(start))
	return t, err
}

func (s *Service) transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcript, error) {
	if s.gen == nil {
		return nil, &TranscriptionError{Stage: StageRequest, Err: fmt.Errorf("no model configured")}
	}
	if len(audio) == 0 {
		return nil, &TranscriptionError{Stage: StageEmpty, Err: fmt.Errorf("empty audio")}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.gen.Generate(ctx, gemini.Request{
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		MIMEType:     baseMIME(mimeType),
		Data:         audio,
	})
	if err != nil {
		return nil, &TranscriptionError{Stage: StageRequest, Err: err}
	}

	var resp response
	if err := gemini.DecodeJSON(content, &resp); err != nil {
		return nil, &TranscriptionError{Stage: StageDecode, Err: err}
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, &TranscriptionError{Stage: StageEmpty}
	}

	t := &Transcript{Text: text, Language: strings.ToLower(strings.TrimSpace(resp.Language))}
	if t.Language == "" {
		t.Language = defaultLanguage
	}
	if resp.DurationSeconds != nil && *resp.DurationSeconds > 0 {
		t.Duration = time.Duration(*resp.DurationSeconds * float64(time.Second))
	}
	return t, nil
}

// baseMIME drops parameters such as "; codecs=opus".
func baseMIME(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.TrimSpace(mimeType)
}

// bytesPerSecond approximates compressed voice audio (about 16 kbit/s).
const bytesPerSecond = 2000

// EstimateDuration guesses a clip's length from its size.
func EstimateDuration(size int) time.Duration {
	if size <= 0 {
		return 0
	}
	secs := size / bytesPerSecond
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

var _ Transcriber = (*Service)(nil)
