package store

import (
	"github.com/hollowsky/courier-relay/internal/relay"
)

// AddFollow records a Follow from remoteActor (upserting its inbox, since
// the most recent Follow's inbox wins) onto the given local actor.
func (s *Store) AddFollow(remoteActor relay.RemoteActor, localActorURI string) error {
	var upsertActor, insertFollow string
	if s.driver == "sqlite" {
		upsertActor = `INSERT INTO remote_actors (id, inbox) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET inbox = excluded.inbox`
		insertFollow = `INSERT OR IGNORE INTO follows (remote_actor_id, local_actor_uri) VALUES (?, ?)`
	} else {
		upsertActor = `INSERT INTO remote_actors (id, inbox) VALUES ($1, $2)
			ON CONFLICT(id) DO UPDATE SET inbox = excluded.inbox`
		insertFollow = `INSERT INTO follows (remote_actor_id, local_actor_uri) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	}
	if _, err := s.db.Exec(upsertActor, remoteActor.ID, remoteActor.Inbox); err != nil {
		return relay.Wrap(relay.ErrStore, "upsert remote actor", err)
	}
	if _, err := s.db.Exec(insertFollow, remoteActor.ID, localActorURI); err != nil {
		return relay.Wrap(relay.ErrStore, "add follow", err)
	}
	return nil
}

// DelFollow removes a Follow. The RemoteActor row itself is left in place:
// it may still be followed from a different local actor, and its inbox
// stays useful the next time it follows again.
func (s *Store) DelFollow(remoteActorID, localActorURI string) error {
	q := `DELETE FROM follows WHERE remote_actor_id = ` + s.ph(1) + ` AND local_actor_uri = ` + s.ph(2)
	if _, err := s.db.Exec(q, remoteActorID, localActorURI); err != nil {
		return relay.Wrap(relay.ErrStore, "del follow", err)
	}
	return nil
}

// ListActors returns every local actor persona that currently has at
// least one follower, parsed back from the uris follows stores them under.
// A uri that no longer parses under serviceHost (e.g. after a hostname
// change) is skipped rather than failing the whole list.
func (s *Store) ListActors(serviceHost string) ([]relay.LocalActor, error) {
	rows, err := s.db.Query(`SELECT DISTINCT local_actor_uri FROM follows`)
	if err != nil {
		return nil, relay.Wrap(relay.ErrStore, "list actors", err)
	}
	defer rows.Close()

	var actors []relay.LocalActor
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, relay.Wrap(relay.ErrStore, "scan actor uri", err)
		}
		if actor, ok := relay.ParseLocalActorURI(serviceHost, uri); ok {
			actors = append(actors, actor)
		}
	}
	return actors, rows.Err()
}

// ListFollowers returns every remote actor following localActorURI.
func (s *Store) ListFollowers(localActorURI string) ([]relay.RemoteActor, error) {
	q := `SELECT DISTINCT remote_actors.id, remote_actors.inbox
		FROM follows JOIN remote_actors ON follows.remote_actor_id = remote_actors.id
		WHERE follows.local_actor_uri = ` + s.ph(1)
	rows, err := s.db.Query(q, localActorURI)
	if err != nil {
		return nil, relay.Wrap(relay.ErrStore, "list followers", err)
	}
	defer rows.Close()

	var actors []relay.RemoteActor
	for rows.Next() {
		var a relay.RemoteActor
		if err := rows.Scan(&a.ID, &a.Inbox); err != nil {
			return nil, relay.Wrap(relay.ErrStore, "scan remote actor", err)
		}
		actors = append(actors, a)
	}
	return actors, rows.Err()
}
