package sqlgen

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/takashabe/bigquery-mcp/internal/errs"
	"github.com/takashabe/bigquery-mcp/internal/warehouse"
)

type fakeGenerator struct {
	text string
	err  error
	req  Request

	hadDeadline bool
}

func (f *fakeGenerator) Generate(ctx context.Context, req Request) (string, error) {
	f.req = req
	_, f.hadDeadline = ctx.Deadline()
	return f.text, f.err
}

var usersSchema = warehouse.TableSchema{
	{Name: "id", Type: "INTEGER", Mode: warehouse.ModeRequired},
	{Name: "name", Type: "STRING", Mode: warehouse.ModeNullable},
}

var fixedNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

func newSynth(gen Generator) *Synthesizer {
	return NewSynthesizer(gen, Sampling{Temperature: 0.1, TopK: 40, TopP: 0.95, MaxOutputTokens: 4096},
		30*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(func() time.Time { return fixedNow }))
}

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt("How many users?", usersSchema, "proj.ds.users", fixedNow)

	for _, want := range []string{
		"SELECT-only",
		"DELETE, UPDATE, INSERT, DROP, TRUNCATE, and CREATE",
		"Never include ORDER BY unless explicitly requested.",
		"Never hallucinate fields",
		"Never wrap your SQL in markdown or code fences.",
		"Today's timestamp is: 2026-10-14 09:30:00.",
		"- id (INTEGER, REQUIRED)\n- name (STRING, NULLABLE)",
		"Table ID: proj.ds.users",
		"EXAMPLE SQL QUERY:",
		`"""How many users?"""`,
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	if again := SystemPrompt("How many users?", usersSchema, "proj.ds.users", fixedNow); again != p {
		t.Error("SystemPrompt() should be deterministic")
	}
}

func TestSynthesize(t *testing.T) {
	gen := &fakeGenerator{text: "SELECT COUNT(*) FROM `proj.ds.users`"}
	c, err := newSynth(gen).Synthesize(context.Background(), "How many users?", usersSchema, "proj.ds.users")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if c.Status != StatusSuccess || c.SQL != "SELECT COUNT(*) FROM `proj.ds.users`" {
		t.Errorf("Synthesize() = %+v", c)
	}
	if gen.req.UserTurn != "How many users?" {
		t.Errorf("UserTurn = %q", gen.req.UserTurn)
	}
	if gen.req.Sampling.Temperature != 0.1 || gen.req.Sampling.MaxOutputTokens != 4096 {
		t.Errorf("Sampling = %+v", gen.req.Sampling)
	}
	if !strings.Contains(gen.req.SystemInstruction, "Table ID: proj.ds.users") {
		t.Error("system instruction should carry the table ID")
	}
	if !gen.hadDeadline {
		t.Error("generation call should be bounded by a timeout")
	}
}

func TestSynthesizeErrors(t *testing.T) {
	tests := []struct {
		name       string
		gen        Generator
		question   string
		tableID    string
		wantKind   errs.Kind
		wantStatus Status
	}{
		{
			name:     "missing question",
			gen:      &fakeGenerator{},
			tableID:  "proj.ds.users",
			wantKind: errs.Configuration,
		},
		{
			name:     "missing table",
			gen:      &fakeGenerator{},
			question: "How many users?",
			wantKind: errs.Configuration,
		},
		{
			name:     "no provider",
			question: "How many users?",
			tableID:  "proj.ds.users",
			wantKind: errs.Configuration,
		},
		{
			name:     "provider failure",
			gen:      &fakeGenerator{err: errors.New("503 Service Unavailable")},
			question: "How many users?",
			tableID:  "proj.ds.users",
			wantKind: errs.Upstream,
		},
		{
			name:     "provider timeout",
			gen:      &fakeGenerator{err: context.DeadlineExceeded},
			question: "How many users?",
			tableID:  "proj.ds.users",
			wantKind: errs.Upstream,
		},
		{
			name:       "no candidates",
			gen:        &fakeGenerator{err: ErrNoCandidates},
			question:   "How many users?",
			tableID:    "proj.ds.users",
			wantStatus: StatusNoResults,
		},
		{
			name:       "blank text",
			gen:        &fakeGenerator{text: "  \n"},
			question:   "How many users?",
			tableID:    "proj.ds.users",
			wantStatus: StatusNoResults,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := newSynth(tt.gen).Synthesize(context.Background(), tt.question, usersSchema, tt.tableID)
			if tt.wantKind != "" {
				if !errs.Is(err, tt.wantKind) {
					t.Fatalf("Synthesize() error = %v, want kind %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Synthesize() error = %v", err)
			}
			if c.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", c.Status, tt.wantStatus)
			}
		})
	}
}

func TestCleanSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "raw", in: "SELECT 1", want: "SELECT 1"},
		{name: "whitespace", in: "\n  SELECT 1 \n", want: "SELECT 1"},
		{name: "sql fence", in: "```sql\nSELECT 1\n```", want: "SELECT 1"},
		{name: "bare fence", in: "```\nSELECT 1\n```", want: "SELECT 1"},
		{name: "inline fence", in: "```SELECT 1```", want: "SELECT 1"},
		{name: "multiline", in: "```sql\nSELECT a\nFROM t\n```", want: "SELECT a\nFROM t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanSQL(tt.in); got != tt.want {
				t.Errorf("CleanSQL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFirstCandidateText(t *testing.T) {
	if _, err := firstCandidateText(&genai.GenerateContentResponse{}); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("empty candidates error = %v, want ErrNoCandidates", err)
	}

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "SELECT "}, {Text: "1"}}},
		}},
	}
	got, err := firstCandidateText(resp)
	if err != nil || got != "SELECT 1" {
		t.Errorf("firstCandidateText() = %q, %v", got, err)
	}

	if _, err := firstCandidateText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}); err == nil {
		t.Error("candidate without content should be an error")
	}
}
