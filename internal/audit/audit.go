// Package audit records every run_sql_query outcome.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"
)

type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeFailed   Outcome = "failed"
	OutcomeRejected Outcome = "rejected"
)

type Record struct {
	RequestID string        `json:"request_id"`
	SQL       string        `json:"sql"`
	Outcome   Outcome       `json:"outcome"`
	Rows      int           `json:"rows"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

type Sink interface {
	Record(ctx context.Context, r Record)
}

// LoggerSink writes records to the process logger.
type LoggerSink struct {
	logger *slog.Logger
}

func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) Record(ctx context.Context, r Record) {
	level := slog.LevelInfo
	if r.Outcome != OutcomeExecuted {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "query audit",
		"request_id", r.RequestID,
		"outcome", r.Outcome,
		"rows", r.Rows,
		"duration", r.Duration,
		"sql", r.SQL,
		"error", r.Error,
	)
}

// CloudLoggingSink writes records as structured entries to Google Cloud Logging.
type CloudLoggingSink struct {
	client *logging.Client
	logger *logging.Logger
}

func NewCloudLoggingSink(ctx context.Context, projectID, logName string, credentials []byte) (*CloudLoggingSink, error) {
	var opts []option.ClientOption
	if len(credentials) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentials))
	}
	client, err := logging.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud Logging client: %w", err)
	}
	return &CloudLoggingSink{
		client: client,
		logger: client.Logger(logName),
	}, nil
}

func (s *CloudLoggingSink) Record(ctx context.Context, r Record) {
	s.logger.Log(Entry(r))
}

// Close flushes buffered entries.
func (s *CloudLoggingSink) Close() error {
	return s.client.Close()
}

// Entry converts a record to a Cloud Logging entry.
func Entry(r Record) logging.Entry {
	severity := logging.Info
	switch r.Outcome {
	case OutcomeFailed:
		severity = logging.Error
	case OutcomeRejected:
		severity = logging.Warning
	}
	return logging.Entry{
		Severity: severity,
		Payload:  r,
		Labels: map[string]string{
			"request_id": r.RequestID,
			"outcome":    string(r.Outcome),
		},
	}
}
