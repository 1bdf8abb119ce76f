// Package review turns a question into a reviewed query: schema fetch, SQL
// synthesis, dry-run validation, then a message for the human reviewer.
// It never executes the SQL.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/takashabe/bigquery-mcp/internal/confirm"
	"github.com/takashabe/bigquery-mcp/internal/costguard"
	"github.com/takashabe/bigquery-mcp/internal/schema"
	"github.com/takashabe/bigquery-mcp/internal/sqlgen"
	"github.com/takashabe/bigquery-mcp/internal/warehouse"
)

type Status string

const (
	StatusSuccess   Status = "success"
	StatusNoResults Status = "no_results"
	StatusInvalid   Status = "invalid"
	StatusError     Status = "error"
)

const noResultsMessage = "No results generated from the language model."

type SchemaSource interface {
	GetTableSchema(ctx context.Context, tableID string) (warehouse.TableSchema, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, question string, s warehouse.TableSchema, tableID string) (*sqlgen.Candidate, error)
}

type Validator interface {
	CheckValidity(ctx context.Context, sql string) *costguard.Estimate
}

// GeneratedQuery is the outcome of one review. SQLQuery is the composed
// message for the reviewer; the other fields carry the same data structured.
type GeneratedQuery struct {
	SQLQuery        string              `json:"sql_query"`
	UserQuery       string              `json:"user_query"`
	Status          Status              `json:"status"`
	TableID         string              `json:"table_id"`
	GeneratedSQL    string              `json:"generated_sql,omitempty"`
	CostEstimate    *costguard.Estimate `json:"cost_estimate,omitempty"`
	ConfirmationKey string              `json:"confirmation_key,omitempty"`
}

// Executable reports whether the query passed the dry run.
func (q *GeneratedQuery) Executable() bool {
	return q.Status == StatusSuccess && q.CostEstimate != nil && q.CostEstimate.Valid()
}

type Pipeline struct {
	schemas   SchemaSource
	synth     Synthesizer
	validator Validator
	policy    confirm.Policy
	logger    *slog.Logger
}

func NewPipeline(schemas SchemaSource, synth Synthesizer, validator Validator, policy confirm.Policy, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		schemas:   schemas,
		synth:     synth,
		validator: validator,
		policy:    policy,
		logger:    logger,
	}
}

func (p *Pipeline) Review(ctx context.Context, question, tableID string) (*GeneratedQuery, error) {
	tableSchema, err := p.schemas.GetTableSchema(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema for %s: %w", tableID, err)
	}

	candidate, err := p.synth.Synthesize(ctx, question, tableSchema, tableID)
	if err != nil {
		return nil, err
	}
	if candidate.Status == sqlgen.StatusNoResults {
		return &GeneratedQuery{
			SQLQuery:  noResultsMessage,
			UserQuery: question,
			Status:    StatusNoResults,
			TableID:   tableID,
		}, nil
	}

	est := p.validator.CheckValidity(ctx, candidate.SQL)
	q := &GeneratedQuery{
		UserQuery:    question,
		TableID:      tableID,
		GeneratedSQL: candidate.SQL,
		CostEstimate: est,
	}

	schemaText := schema.Text(tableSchema)
	switch est.Status {
	case costguard.StatusValid:
		key, err := p.policy.Issue(candidate.SQL)
		if err != nil {
			return nil, err
		}
		q.Status = StatusSuccess
		q.ConfirmationKey = key
		q.SQLQuery = validMessage(tableID, question, schemaText, candidate.SQL, est)
	case costguard.StatusInvalid:
		q.Status = StatusInvalid
		q.SQLQuery = invalidMessage(question, schemaText, candidate.SQL, est)
	default:
		q.Status = StatusError
		q.SQLQuery = errorMessage(question, schemaText, candidate.SQL, est)
	}

	p.logger.Info("query reviewed", "table_id", tableID, "status", q.Status, "bytes", est.BytesProcessed)
	return q, nil
}

func validMessage(tableID, question, schemaText, sql string, est *costguard.Estimate) string {
	return fmt.Sprintf(`This SQL statement pulls data from the following BigQuery table:
%s

It answers the following question:
%s

The table has the following schema:
%s

Generated SQL query:
%s

Validation:
The statement passed a BigQuery dry run and can be executed. Dry run estimates:
Estimated cost to run (USD): %s
Estimated bytes processed on run: %d

run_sql_query accepts this exact SQL together with the confirmation_key returned alongside this message.`,
		tableID, question, schemaText, sql, formatUSD(est.EstimatedCostUSD), est.BytesProcessed)
}

func invalidMessage(question, schemaText, sql string, est *costguard.Estimate) string {
	return fmt.Sprintf(`This SQL query is not valid and cannot be executed:
%s

BigQuery rejected it during the dry run: %s

It was generated for the question:
%s

from a table with the following schema:
%s`,
		sql, est.ErrorDetails, question, schemaText)
}

func errorMessage(question, schemaText, sql string, est *costguard.Estimate) string {
	return fmt.Sprintf(`This SQL query could not be validated and cannot be executed yet:
%s

The dry run failed because of a system error, not because of the query itself: %s

It was generated for the question:
%s

against a table with the following schema:
%s`,
		sql, est.ErrorDetails, question, schemaText)
}

func formatUSD(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
