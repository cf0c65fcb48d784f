package node

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/seechain/seechain/internal/ledger"
	"github.com/seechain/seechain/pkg/shipmentid"
	"go.uber.org/zap"
)

// advisoryLockKey serialises concurrent SaveShipment transactions across
// node instances sharing one database. The value is arbitrary but must be
// consistent everywhere.
const advisoryLockKey = int64(1_837_420_119)

// PostgresStore persists finalized chain state to PostgreSQL.
// It implements the Store interface.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool and
// creates the schema if it does not exist yet.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS shipments (
		id          TEXT PRIMARY KEY,
		human_key   TEXT NOT NULL,
		origin      TEXT NOT NULL,
		destination TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS shipment_logs (
		shipment_id TEXT NOT NULL REFERENCES shipments(id),
		seq         INT  NOT NULL,
		timestamp   TIMESTAMPTZ NOT NULL,
		status      TEXT NOT NULL,
		updater     TEXT NOT NULL,
		PRIMARY KEY (shipment_id, seq)
	);
	CREATE TABLE IF NOT EXISTS actor_roles (
		actor             TEXT PRIMARY KEY,
		is_customs_worker BOOLEAN NOT NULL
	);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveShipment implements Store. The shipment row and its full log are
// replaced in one transaction so readers never observe a torn log.
func (s *PostgresStore) SaveShipment(ctx context.Context, snap *ledger.ShipmentSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO shipments (id, human_key, origin, destination)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		snap.ID.String(), snap.HumanKey, snap.Origin, snap.Destination,
	); err != nil {
		return fmt.Errorf("upsert shipment: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"DELETE FROM shipment_logs WHERE shipment_id = $1", snap.ID.String(),
	); err != nil {
		return fmt.Errorf("clear shipment log: %w", err)
	}
	for i, e := range snap.Log {
		if _, err := tx.Exec(ctx,
			`INSERT INTO shipment_logs (shipment_id, seq, timestamp, status, updater)
			 VALUES ($1, $2, $3, $4, $5)`,
			snap.ID.String(), i, e.Timestamp, e.Status, e.Updater,
		); err != nil {
			return fmt.Errorf("insert log entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit shipment tx: %w", err)
	}

	s.logger.Debug("shipment persisted",
		zap.String("shipment_id", snap.ID.String()),
		zap.Int("log_len", len(snap.Log)),
	)
	return nil
}

// SaveRole implements Store.
func (s *PostgresStore) SaveRole(ctx context.Context, actor string, isCustomsWorker bool) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO actor_roles (actor, is_customs_worker)
		 VALUES ($1, $2)
		 ON CONFLICT (actor) DO UPDATE SET is_customs_worker = EXCLUDED.is_customs_worker`,
		actor, isCustomsWorker,
	); err != nil {
		return fmt.Errorf("upsert role: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) ([]*ledger.ShipmentSnapshot, map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, human_key, origin, destination FROM shipments ORDER BY created_at, id")
	if err != nil {
		return nil, nil, fmt.Errorf("load shipments: %w", err)
	}
	defer rows.Close()

	var shipments []*ledger.ShipmentSnapshot
	byID := make(map[shipmentid.ID]*ledger.ShipmentSnapshot)
	for rows.Next() {
		var idStr string
		snap := &ledger.ShipmentSnapshot{}
		if err := rows.Scan(&idStr, &snap.HumanKey, &snap.Origin, &snap.Destination); err != nil {
			return nil, nil, fmt.Errorf("scan shipment: %w", err)
		}
		id, err := shipmentid.Parse(idStr)
		if err != nil {
			return nil, nil, fmt.Errorf("stored shipment id %q: %w", idStr, err)
		}
		snap.ID = id
		shipments = append(shipments, snap)
		byID[id] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate shipments: %w", err)
	}

	logRows, err := s.pool.Query(ctx,
		"SELECT shipment_id, timestamp, status, updater FROM shipment_logs ORDER BY shipment_id, seq")
	if err != nil {
		return nil, nil, fmt.Errorf("load shipment logs: %w", err)
	}
	defer logRows.Close()

	for logRows.Next() {
		var idStr string
		var ts time.Time
		var status, updater string
		if err := logRows.Scan(&idStr, &ts, &status, &updater); err != nil {
			return nil, nil, fmt.Errorf("scan log entry: %w", err)
		}
		id, err := shipmentid.Parse(idStr)
		if err != nil {
			return nil, nil, fmt.Errorf("stored log shipment id %q: %w", idStr, err)
		}
		if snap, ok := byID[id]; ok {
			snap.Log = append(snap.Log, ledger.LogEntry{Timestamp: ts, Status: status, Updater: updater})
		}
	}
	if err := logRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate log entries: %w", err)
	}

	roleRows, err := s.pool.Query(ctx, "SELECT actor, is_customs_worker FROM actor_roles")
	if err != nil {
		return nil, nil, fmt.Errorf("load roles: %w", err)
	}
	defer roleRows.Close()

	roles := make(map[string]bool)
	for roleRows.Next() {
		var actor string
		var isCustoms bool
		if err := roleRows.Scan(&actor, &isCustoms); err != nil {
			return nil, nil, fmt.Errorf("scan role: %w", err)
		}
		roles[actor] = isCustoms
	}
	if err := roleRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate roles: %w", err)
	}

	return shipments, roles, nil
}
