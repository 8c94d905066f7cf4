package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores leads in the leads table.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const leadColumns = `id, contact_value, contact_kind, channel, snapshot, language, conversation_key, facts, created_at`

// CreateIfAbsent serializes writers of the same contact with a transaction
// scoped advisory lock, so the lookup and the insert cannot interleave.
func (r *Postgres) CreateIfAbsent(ctx context.Context, lead Lead, since time.Time) (Lead, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Lead{}, false, fmt.Errorf("begin lead capture: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lead.ContactValue+"|"+lead.Channel); err != nil {
		return Lead{}, false, fmt.Errorf("lock lead contact: %w", err)
	}

	existing, err := scanLead(tx.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE contact_value = $1 AND channel = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`, lead.ContactValue, lead.Channel, since))
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return Lead{}, false, fmt.Errorf("find recent lead: %w", err)
	}

	facts, err := json.Marshal(nonNilFacts(lead.Facts))
	if err != nil {
		return Lead{}, false, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, lead.ID, lead.ContactValue, lead.ContactKind, lead.Channel, lead.Snapshot, lead.Language, lead.ConversationKey, facts, lead.CreatedAt); err != nil {
		return Lead{}, false, fmt.Errorf("insert lead: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Lead{}, false, fmt.Errorf("commit lead: %w", err)
	}
	return lead, true, nil
}

func (r *Postgres) MergeFacts(ctx context.Context, id uuid.UUID, facts map[string]string) error {
	raw, err := json.Marshal(nonNilFacts(facts))
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE leads SET facts = facts || $2::jsonb WHERE id = $1`, id, raw)
	if err != nil {
		return fmt.Errorf("merge lead facts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) ListSince(ctx context.Context, since time.Time) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE created_at >= $1
		ORDER BY created_at
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

func scanLead(row pgx.Row) (Lead, error) {
	var (
		lead  Lead
		facts []byte
	)
	if err := row.Scan(&lead.ID, &lead.ContactValue, &lead.ContactKind, &lead.Channel, &lead.Snapshot, &lead.Language, &lead.ConversationKey, &facts, &lead.CreatedAt); err != nil {
		return Lead{}, err
	}
	if len(facts) > 0 {
		if err := json.Unmarshal(facts, &lead.Facts); err != nil {
			return Lead{}, fmt.Errorf("decode lead facts: %w", err)
		}
	}
	return lead, nil
}

func nonNilFacts(facts map[string]string) map[string]string {
	if facts == nil {
		return map[string]string{}
	}
	return facts
}
