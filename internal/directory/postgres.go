package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLoader reads the directory tables owned by the management layer.
type PostgresLoader struct {
	pool *pgxpool.Pool
}

// NewPostgresLoader wraps an existing pool; the pool is shared with the store.
func NewPostgresLoader(pool *pgxpool.Pool) *PostgresLoader {
	return &PostgresLoader{pool: pool}
}

// Load reads all three directory tables into a fresh Snapshot.
func (l *PostgresLoader) Load(ctx context.Context) (*Snapshot, error) {
	devices, err := l.readPairs(ctx, `SELECT mac, name FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}
	networks, err := l.readPairs(ctx, `SELECT cidr, name FROM networks`)
	if err != nil {
		return nil, fmt.Errorf("load networks: %w", err)
	}
	groups, err := l.readPairs(ctx, `SELECT identity, label FROM groups`)
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	return NewSnapshot(devices, networks, groups), nil
}

func (l *PostgresLoader) readPairs(ctx context.Context, query string) (map[string]string, error) {
	rows, err := l.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// UpsertDevices writes device entries, replacing names for existing MACs.
// Used by the import command; the running core never writes directories.
func (l *PostgresLoader) UpsertDevices(ctx context.Context, entries map[string]string) error {
	return l.upsert(ctx, `INSERT INTO devices (mac, name) VALUES ($1, $2)
		ON CONFLICT (mac) DO UPDATE SET name = EXCLUDED.name`, entries)
}

// UpsertNetworks writes network entries keyed by CIDR or IP.
func (l *PostgresLoader) UpsertNetworks(ctx context.Context, entries map[string]string) error {
	return l.upsert(ctx, `INSERT INTO networks (cidr, name) VALUES ($1, $2)
		ON CONFLICT (cidr) DO UPDATE SET name = EXCLUDED.name`, entries)
}

// UpsertGroups writes group membership entries keyed by identity.
func (l *PostgresLoader) UpsertGroups(ctx context.Context, entries map[string]string) error {
	return l.upsert(ctx, `INSERT INTO groups (identity, label) VALUES ($1, $2)
		ON CONFLICT (identity) DO UPDATE SET label = EXCLUDED.label`, entries)
}

func (l *PostgresLoader) upsert(ctx context.Context, query string, entries map[string]string) error {
	batch := &pgx.Batch{}
	for k, v := range entries {
		batch.Queue(query, k, v)
	}
	br := l.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
	}
	return nil
}
