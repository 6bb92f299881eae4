// Package database defines the insertions and transactions to the database
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// UsageRow is one caller's usage for one intent on one day
type UsageRow struct {
	Date             string
	CallerID         string
	Intent           string
	RequestCount     uint64
	PromptTokens     uint64
	CompletionTokens uint64
}

// SaveUsage upserts daily usage counters. It never receives question or
// snapshot content.
func SaveUsage(ctx context.Context, tx *sql.Tx, rows []UsageRow) error {
	if len(rows) == 0 {
		return nil
	}

	usageSQLStr := `INSERT INTO daily_usage (
		date, caller_id, intent, request_count, prompt_tokens, completion_tokens
	) VALUES`

	vals := make([]any, 0, len(rows)*6)
	for _, row := range rows {
		usageSQLStr += "(?, ?, ?, ?, ?, ?),"
		vals = append(vals, row.Date, row.CallerID, row.Intent, row.RequestCount, row.PromptTokens, row.CompletionTokens)
	}
	usageSQLStr = strings.TrimSuffix(usageSQLStr, ",")
	usageSQLStr += ` ON DUPLICATE KEY UPDATE
		request_count = request_count + VALUES(request_count),
		prompt_tokens = prompt_tokens + VALUES(prompt_tokens),
		completion_tokens = completion_tokens + VALUES(completion_tokens)`

	if _, err := tx.ExecContext(ctx, usageSQLStr, vals...); err != nil {
		return fmt.Errorf("failed to save usage: %w", err)
	}
	return nil
}

// Today formats t the way the daily_usage date column expects
func Today(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ExecuteTransaction executes one transaction with one or multiple database executions.
func ExecuteTransaction(ctx context.Context, writeDB *sql.DB, fns []func(*sql.Tx) error) error {
	tx, err := writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return fmt.Errorf("failed to execute transaction function: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
