package store

import (
	"database/sql"
	"errors"

	"github.com/hollowsky/courier-relay/internal/relay"
)

// GetCursor returns the latest global-timeline post id consumed for
// remoteActorID, if TimelineLoop has run for it before.
func (s *Store) GetCursor(remoteActorID string) (string, bool, error) {
	var latestID string
	q := `SELECT latest_id FROM timeline_cursors WHERE remote_actor_id = ` + s.ph(1)
	err := s.db.QueryRow(q, remoteActorID).Scan(&latestID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, relay.Wrap(relay.ErrStore, "get cursor", err)
	}
	return latestID, true, nil
}

// SetCursor records remoteActorID's latest-consumed global-timeline post
// id.
func (s *Store) SetCursor(remoteActorID, latestID string) error {
	var q string
	if s.driver == "sqlite" {
		q = `INSERT INTO timeline_cursors (remote_actor_id, latest_id) VALUES (?, ?)
			ON CONFLICT(remote_actor_id) DO UPDATE SET latest_id = excluded.latest_id`
	} else {
		q = `INSERT INTO timeline_cursors (remote_actor_id, latest_id) VALUES ($1, $2)
			ON CONFLICT(remote_actor_id) DO UPDATE SET latest_id = excluded.latest_id`
	}
	if _, err := s.db.Exec(q, remoteActorID, latestID); err != nil {
		return relay.Wrap(relay.ErrStore, "set cursor", err)
	}
	return nil
}
