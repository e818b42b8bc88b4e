package store

import (
	"database/sql"
	"errors"

	"github.com/hollowsky/courier-relay/internal/relay"
)

// GetInstanceFlavor returns the recorded API flavor for host, if the
// instance has been probed before. A host's flavor is immutable once
// recorded: callers that already hold a flavor must not call
// UpsertInstance again for it.
func (s *Store) GetInstanceFlavor(host string) (relay.Flavor, bool, error) {
	var flavor string
	q := `SELECT api_flavor FROM instances WHERE host = ` + s.ph(1)
	err := s.db.QueryRow(q, host).Scan(&flavor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, relay.Wrap(relay.ErrStore, "get instance flavor", err)
	}
	return relay.Flavor(flavor), true, nil
}

// UpsertInstance records host's flavor the first time it's probed. A
// subsequent call for a host that already has a flavor is a no-op: the
// first successful probe wins.
func (s *Store) UpsertInstance(host string, flavor relay.Flavor) error {
	var q string
	if s.driver == "sqlite" {
		q = `INSERT OR IGNORE INTO instances (host, api_flavor) VALUES (?, ?)`
	} else {
		q = `INSERT INTO instances (host, api_flavor) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	}
	if _, err := s.db.Exec(q, host, string(flavor)); err != nil {
		return relay.Wrap(relay.ErrStore, "upsert instance", err)
	}
	return nil
}
