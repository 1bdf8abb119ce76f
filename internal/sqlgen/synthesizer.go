// Package sqlgen turns a natural-language question into a candidate SQL
// statement using an external text-generation model.
package sqlgen

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/takashabe/bigquery-mcp/internal/errs"
	"github.com/takashabe/bigquery-mcp/internal/warehouse"
)

// ErrNoCandidates is returned by a Generator when the model produced no text.
var ErrNoCandidates = errors.New("no candidates generated")

type Sampling struct {
	Temperature     float32
	TopK            float32
	TopP            float32
	MaxOutputTokens int32
}

type Request struct {
	SystemInstruction string
	UserTurn          string
	Sampling          Sampling
}

// Generator is a stateless text-generation capability.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Status string

const (
	StatusSuccess   Status = "success"
	StatusNoResults Status = "no_results"
)

type Candidate struct {
	SQL    string
	Status Status
}

type Synthesizer struct {
	gen      Generator
	sampling Sampling
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Synthesizer)

// WithClock overrides the clock used for the prompt timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

func NewSynthesizer(gen Generator, sampling Sampling, timeout time.Duration, logger *slog.Logger, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		gen:      gen,
		sampling: sampling,
		timeout:  timeout,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize asks the model for a SQL statement answering question against
// tableID. An empty model response is reported as StatusNoResults, not as an error.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, tableSchema warehouse.TableSchema, tableID string) (*Candidate, error) {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(tableID) == "" {
		return nil, errs.New(errs.Configuration, "question and table_id are required")
	}
	if s.gen == nil {
		return nil, errs.New(errs.Configuration, "text generation provider is not configured")
	}

	req := Request{
		SystemInstruction: SystemPrompt(question, tableSchema, tableID, s.now()),
		UserTurn:          question,
		Sampling:          s.sampling,
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.gen.Generate(ctx, req)
	if errors.Is(err, ErrNoCandidates) {
		s.logger.Warn("model returned no candidates", "table_id", tableID)
		return &Candidate{Status: StatusNoResults}, nil
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.Wrap(errs.Upstream, "Gemini API request timed out", err)
		}
		return nil, errs.Wrap(errs.Upstream, "Gemini API request failed", err)
	}

	sql := CleanSQL(text)
	if sql == "" {
		return &Candidate{Status: StatusNoResults}, nil
	}
	s.logger.Debug("generated sql", "table_id", tableID, "duration", time.Since(start))
	return &Candidate{SQL: sql, Status: StatusSuccess}, nil
}

var fence = regexp.MustCompile("(?s)^```([a-zA-Z]*\\n)?\\s*(.*?)\\s*```$")

// CleanSQL strips surrounding whitespace and a markdown code fence if the
// model added one anyway.
func CleanSQL(text string) string {
	text = strings.TrimSpace(text)
	if m := fence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[2])
	}
	return text
}
