package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// AuditStore keeps the points_awarded and export_completed trail in
// audit_log, with the event detail as JSONB.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends one audit row.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return fmt.Errorf("postgres: log audit: event is required")
	}
	body, err := encodeDetail(detail)
	if err != nil {
		return fmt.Errorf("postgres: log audit %s: %w", event, err)
	}
	if _, err := s.pool.Exec(ctx, `INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, body); err != nil {
		return fmt.Errorf("postgres: log audit %s: %w", event, err)
	}
	return nil
}

// List returns audit rows newest first, restricted to event when it is set.
func (s *AuditStore) List(ctx context.Context, event string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := auditQuery(event, opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	return entries, nil
}

func auditQuery(event string, opts domain.ListOpts) (string, []any) {
	q := selectFrom(`SELECT id, event, detail, created_at FROM audit_log`)
	if event != "" {
		q.where("event = ?", event)
	}
	return q.window("created_at", opts).
		orderBy("created_at DESC, id DESC").
		page(opts.Limit, opts.Offset).
		build()
}

func encodeDetail(detail map[string]any) ([]byte, error) {
	if len(detail) == 0 {
		return []byte("{}"), nil
	}
	body, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("marshal detail: %w", err)
	}
	return body, nil
}

func scanAudit(row pgx.Row) (domain.AuditEntry, error) {
	var (
		e    domain.AuditEntry
		body []byte
	)
	if err := row.Scan(&e.ID, &e.Event, &body, &e.CreatedAt); err != nil {
		return domain.AuditEntry{}, err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &e.Detail); err != nil {
			return domain.AuditEntry{}, fmt.Errorf("unmarshal detail: %w", err)
		}
	}
	return e, nil
}
