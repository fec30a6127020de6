package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zjrosen/strand/internal/orchestrator"
)

const requestColumns = `id, process_id, input, response, error, completed,
	started_at, finished_at, duration_ms`

// RequestRepository persists finished requests.
type RequestRepository struct {
	db *sql.DB
}

func newRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Ensure the repository satisfies the orchestrator's archive boundary.
var _ orchestrator.Recorder = (*RequestRepository)(nil)

func scanRequest(scanner interface{ Scan(...any) error }) (requestModel, error) {
	var m requestModel
	err := scanner.Scan(
		&m.ID, &m.ProcessID, &m.Input, &m.Response, &m.Error, &m.Completed,
		&m.StartedAt, &m.FinishedAt, &m.DurationMs,
	)
	return m, err
}

// RecordRequest inserts one finished request.
func (r *RequestRepository) RecordRequest(ctx context.Context, rec orchestrator.RequestRecord) error {
	m := toRequestModel(rec)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO requests (
			process_id, input, response, error, completed,
			started_at, finished_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ProcessID, m.Input, m.Response, m.Error, m.Completed,
		m.StartedAt, m.FinishedAt, m.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("inserting request record: %w", err)
	}
	return nil
}

// List returns finished requests, newest first. A limit of 0 returns all.
func (r *RequestRepository) List(ctx context.Context, limit int) ([]orchestrator.RequestRecord, error) {
	query := `SELECT ` + requestColumns + ` FROM requests ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing request records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []orchestrator.RequestRecord
	for rows.Next() {
		m, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning request row: %w", err)
		}
		records = append(records, m.toRecord())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating request rows: %w", err)
	}
	return records, nil
}

// FindByProcessID returns one archived request, or sql.ErrNoRows.
func (r *RequestRepository) FindByProcessID(ctx context.Context, processID string) (orchestrator.RequestRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE process_id = ?`, processID)

	m, err := scanRequest(row)
	if err != nil {
		return orchestrator.RequestRecord{}, fmt.Errorf("finding request %s: %w", processID, err)
	}
	return m.toRecord(), nil
}
