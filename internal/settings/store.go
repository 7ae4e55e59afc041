package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/pimstack/aipopulate/internal/db"
)

// Store reads and writes client settings.
type Store interface {
	// Get returns the client's settings, or nil when the client has none.
	Get(ctx context.Context, clientID string) (*ClientSettings, error)
	// LastUpdated returns the settings' update watermark, or the zero time
	// when the client has none.
	LastUpdated(ctx context.Context, clientID string) (time.Time, error)
	Upsert(ctx context.Context, s *ClientSettings) error
}

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const migration = `
CREATE TABLE IF NOT EXISTS client_settings (
	client_id  TEXT PRIMARY KEY,
	config     JSONB NOT NULL,
	flows      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the settings table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration)
	return eris.Wrap(err, "settings: migrate")
}

func (s *PostgresStore) Get(ctx context.Context, clientID string) (*ClientSettings, error) {
	var (
		configJSON []byte
		flowsJSON  []byte
		updatedAt  time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT config, flows, updated_at FROM client_settings WHERE client_id = $1`,
		clientID,
	).Scan(&configJSON, &flowsJSON, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "settings: get client %s", clientID)
	}

	out := &ClientSettings{ClientID: clientID, UpdatedAt: updatedAt}
	if err := json.Unmarshal(configJSON, &out.Config); err != nil {
		return nil, eris.Wrapf(err, "settings: decode config for client %s", clientID)
	}
	if err := json.Unmarshal(flowsJSON, &out.Flows); err != nil {
		return nil, eris.Wrapf(err, "settings: decode flows for client %s", clientID)
	}
	return out, nil
}

func (s *PostgresStore) LastUpdated(ctx context.Context, clientID string) (time.Time, error) {
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT updated_at FROM client_settings WHERE client_id = $1`,
		clientID,
	).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "settings: last updated for client %s", clientID)
	}
	return updatedAt, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, cs *ClientSettings) error {
	configJSON, err := json.Marshal(cs.Config)
	if err != nil {
		return eris.Wrap(err, "settings: marshal config")
	}
	flowsJSON, err := json.Marshal(cs.Flows)
	if err != nil {
		return eris.Wrap(err, "settings: marshal flows")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO client_settings (client_id, config, flows, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (client_id) DO UPDATE
		 SET config = EXCLUDED.config, flows = EXCLUDED.flows, updated_at = EXCLUDED.updated_at`,
		cs.ClientID, configJSON, flowsJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "settings: upsert client %s", cs.ClientID)
}
