package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"salesbot_backend/internal/funnel"
)

// PostgresBackend stores one JSONB row per conversation. Update holds a row
// lock for the duration of the mutation.
type PostgresBackend struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresBackend creates a backend over pool.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

func (b *PostgresBackend) Load(ctx context.Context, key Key) (*Conversation, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx, `
		SELECT state FROM conversations
		WHERE channel = $1 AND scope_id = $2 AND external_id = $3
	`, key.Channel, key.ScopeID, key.ExternalID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return decodeState(key, raw)
}

func (b *PostgresBackend) Update(ctx context.Context, key Key, mutate func(c *Conversation) error) (*Conversation, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin conversation update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	initial, err := json.Marshal(New(key, b.now()))
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO conversations (channel, scope_id, external_id, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel, scope_id, external_id) DO NOTHING
	`, key.Channel, key.ScopeID, key.ExternalID, initial); err != nil {
		return nil, fmt.Errorf("ensure conversation row: %w", err)
	}

	var raw []byte
	if err := tx.QueryRow(ctx, `
		SELECT state FROM conversations
		WHERE channel = $1 AND scope_id = $2 AND external_id = $3
		FOR UPDATE
	`, key.Channel, key.ScopeID, key.ExternalID).Scan(&raw); err != nil {
		return nil, fmt.Errorf("lock conversation row: %w", err)
	}
	conv, err := decodeState(key, raw)
	if err != nil {
		return nil, err
	}

	if err := mutate(conv); err != nil {
		return conv, err
	}

	state, err := json.Marshal(conv)
	if err != nil {
		return nil, fmt.Errorf("encode conversation: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO conversations (channel, scope_id, external_id, state, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (channel, scope_id, external_id)
		DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, key.Channel, key.ScopeID, key.ExternalID, state); err != nil {
		return nil, fmt.Errorf("write conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit conversation: %w", err)
	}
	return conv, nil
}

func (b *PostgresBackend) List(ctx context.Context, channel string) ([]*Conversation, error) {
	query := `SELECT channel, scope_id, external_id, state FROM conversations`
	args := []any{}
	if channel != "" {
		query += ` WHERE channel = $1`
		args = append(args, channel)
	}
	query += ` ORDER BY updated_at`

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		var key Key
		var raw []byte
		if err := rows.Scan(&key.Channel, &key.ScopeID, &key.ExternalID, &raw); err != nil {
			return nil, err
		}
		conv, err := decodeState(key, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func decodeState(key Key, raw []byte) (*Conversation, error) {
	conv := New(key, time.Time{})
	if err := json.Unmarshal(raw, conv); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", key, err)
	}
	conv.Key = key
	if conv.Facts == nil {
		conv.Facts = map[string]string{}
	}
	if !conv.Stage.Valid() {
		conv.Stage = funnel.StageNew
	}
	return conv, nil
}
