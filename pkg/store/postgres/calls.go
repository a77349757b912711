package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vocalis-ai/vocalis/pkg/store"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// Calls implements store.CallRepository over PostgreSQL.
// All methods are safe for concurrent use.
type Calls struct {
	pool *pgxpool.Pool
}

// Compile-time interface assertion.
var _ store.CallRepository = (*Calls)(nil)

// Save implements store.CallRepository with an upsert keyed by call ID.
func (r *Calls) Save(ctx context.Context, call *types.Call) error {
	meta, err := json.Marshal(call.Metadata)
	if err != nil {
		return fmt.Errorf("call store: encode metadata: %w", err)
	}

	agentName, clientType := "", ""
	if call.Agent != nil {
		agentName = call.Agent.Name
		clientType = call.Agent.ClientType
	}

	var endTime *time.Time
	if !call.EndTime.IsZero() {
		endTime = &call.EndTime
	}

	const q = `
		INSERT INTO calls (id, agent_name, client_type, status, phone_number, start_time, end_time, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    end_time = EXCLUDED.end_time,
		    metadata = EXCLUDED.metadata`

	_, err = r.pool.Exec(ctx, q,
		call.ID, agentName, clientType, string(call.Status),
		call.PhoneNumber, call.StartTime, endTime, meta)
	if err != nil {
		return fmt.Errorf("call store: save: %w", err)
	}
	return nil
}

// GetByID implements store.CallRepository.
func (r *Calls) GetByID(ctx context.Context, id string) (*store.CallRecord, error) {
	const q = `
		SELECT id, agent_name, client_type, status, phone_number, start_time, end_time, metadata
		FROM   calls
		WHERE  id = $1`

	rec, err := scanCall(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("call store: get by id: %w", err)
	}
	return rec, nil
}

// GetCalls implements store.CallRepository, newest first.
func (r *Calls) GetCalls(ctx context.Context, limit, offset int, clientType string) ([]store.CallRecord, int, error) {
	if limit <= 0 {
		limit = 50
	}

	countQ := `SELECT count(*) FROM calls`
	listQ := `
		SELECT id, agent_name, client_type, status, phone_number, start_time, end_time, metadata
		FROM   calls`
	args := []any{}
	if clientType != "" {
		countQ += ` WHERE client_type = $1`
		listQ += ` WHERE client_type = $1`
		args = append(args, clientType)
	}
	listQ += fmt.Sprintf(`
		ORDER BY start_time DESC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	var total int
	if err := r.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("call store: count: %w", err)
	}

	rows, err := r.pool.Query(ctx, listQ, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("call store: list: %w", err)
	}
	defer rows.Close()

	var records []store.CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("call store: scan: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("call store: rows: %w", err)
	}
	return records, total, nil
}

// Delete implements store.CallRepository, removing the call's transcript too.
func (r *Calls) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("call store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transcripts WHERE call_id = $1`, id); err != nil {
		return fmt.Errorf("call store: delete transcripts: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM calls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("call store: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return tx.Commit(ctx)
}

// Clear implements store.CallRepository.
func (r *Calls) Clear(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("call store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transcripts`); err != nil {
		return 0, fmt.Errorf("call store: clear transcripts: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM calls`)
	if err != nil {
		return 0, fmt.Errorf("call store: clear: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// scanCall scans one calls row into a CallRecord.
func scanCall(row pgx.Row) (*store.CallRecord, error) {
	var (
		rec     store.CallRecord
		status  string
		endTime sql.NullTime
		meta    []byte
	)
	if err := row.Scan(&rec.ID, &rec.AgentName, &rec.ClientType, &status,
		&rec.PhoneNumber, &rec.StartTime, &endTime, &meta); err != nil {
		return nil, err
	}
	rec.Status = types.CallStatus(status)
	if endTime.Valid {
		rec.EndTime = endTime.Time
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &rec, nil
}
