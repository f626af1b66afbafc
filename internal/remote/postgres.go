package remote

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/floorsync/internal/models"
)

// PostgresStore is the production remote store adapter: a generic row store
// with one row per (table, record id), idempotent upserts and soft deletes.
// After every confirmed save it publishes a change event on the table's feed
// channel so peer devices converge without polling.
type PostgresStore struct {
	pool   *pgxpool.Pool
	pub    Publisher
	logger *log.Logger
}

// Publisher is the write side of the change feed.
type Publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

func NewPostgresStore(pool *pgxpool.Pool, pub Publisher, logger *log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &PostgresStore{pool: pool, pub: pub, logger: logger}
}

// EnsureSchema creates the row store if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS floor_records (
	            table_name text NOT NULL,
	            record_id text NOT NULL,
	            payload jsonb NOT NULL,
	            device_id text,
	            updated_by text,
	            updated_at timestamptz NOT NULL DEFAULT now(),
	            deleted_at timestamptz,
	            PRIMARY KEY (table_name, record_id)
	          )`

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure remote schema: %w", err)
	}
	return nil
}

// Save upserts the record, or soft-deletes it for a delete op. Calling Save
// twice with the same record is safe: the second call overwrites the first
// with identical data.
func (s *PostgresStore) Save(ctx context.Context, table models.Table, rec models.Record, op models.OpKind) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownTable, table)
	}

	payload, err := models.EncodeRecord(rec)
	if err != nil {
		return err
	}
	meta := rec.Meta()

	if op == models.OpDelete {
		query := `INSERT INTO floor_records (table_name, record_id, payload, device_id, updated_by, deleted_at)
		          VALUES ($1, $2, $3, $4, $5, now())
		          ON CONFLICT (table_name, record_id)
		          DO UPDATE SET device_id = EXCLUDED.device_id,
		                        updated_by = EXCLUDED.updated_by,
		                        updated_at = now(),
		                        deleted_at = now()`

		if _, err := s.pool.Exec(ctx, query, string(table), rec.RecordID(), payload, meta.DeviceID, meta.UpdatedBy); err != nil {
			return fmt.Errorf("failed to delete %s record: %w", table, err)
		}
	} else {
		query := `INSERT INTO floor_records (table_name, record_id, payload, device_id, updated_by)
		          VALUES ($1, $2, $3, $4, $5)
		          ON CONFLICT (table_name, record_id)
		          DO UPDATE SET payload = EXCLUDED.payload,
		                        device_id = EXCLUDED.device_id,
		                        updated_by = EXCLUDED.updated_by,
		                        updated_at = now(),
		                        deleted_at = NULL`

		if _, err := s.pool.Exec(ctx, query, string(table), rec.RecordID(), payload, meta.DeviceID, meta.UpdatedBy); err != nil {
			return fmt.Errorf("failed to save %s record: %w", table, err)
		}
	}

	s.publish(ctx, table, payload, op, meta.DeviceID, meta.UpdatedBy)
	return nil
}

// LoadAll returns every live record of the table.
func (s *PostgresStore) LoadAll(ctx context.Context, table models.Table) ([]models.Record, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownTable, table)
	}

	query := `SELECT payload FROM floor_records
	          WHERE table_name = $1 AND deleted_at IS NULL
	          ORDER BY record_id ASC`

	rows, err := s.pool.Query(ctx, query, string(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s records: %w", table, err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", table, err)
		}
		rec, err := models.DecodeRecord(table, payload)
		if err != nil {
			s.logger.Printf("Skipping undecodable remote %s record: %v", table, err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s records: %w", table, err)
	}

	return records, nil
}

// publish announces the change on the feed. Failures are logged and ignored:
// the feed is advisory, the row store is the source of truth.
func (s *PostgresStore) publish(ctx context.Context, table models.Table, payload []byte, op models.OpKind, deviceID, userID string) {
	if s.pub == nil {
		return
	}

	event := models.ChangeEvent{
		Table:     table,
		DeviceID:  deviceID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	switch op {
	case models.OpCreate:
		event.Kind = models.EventInsert
		event.NewRecord = payload
	case models.OpUpdate:
		event.Kind = models.EventUpdate
		event.NewRecord = payload
	case models.OpDelete:
		event.Kind = models.EventDelete
		event.OldRecord = payload
	default:
		return
	}

	if err := s.pub.Publish(ctx, event); err != nil {
		s.logger.Printf("Failed to publish %s change event: %v", table, err)
	}
}
