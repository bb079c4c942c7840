package store

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

// AuditStore appends dispatch lifecycle events to Postgres. It is a
// best-effort trail for support tooling; callers log insert failures and
// move on.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(dsn string) (*AuditStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &AuditStore{db: db}, nil
}

// Publish implements the dispatch event sink.
func (a *AuditStore) Publish(ctx context.Context, ev models.DispatchEvent) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO dispatch_events(ride_id, driver_id, event_type, occurred_at) VALUES($1,$2,$3,$4)`,
		ev.RideID, ev.DriverID, string(ev.Type), ev.At)
	return err
}

func (a *AuditStore) Close() error { return a.db.Close() }
