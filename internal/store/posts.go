package store

import (
	"github.com/hollowsky/courier-relay/internal/relay"
)

// DescendantRow pairs a descendant post with the sequence it was inserted
// under, so callers can remember how far they've consumed a root's
// descendants.
type DescendantRow struct {
	Post     relay.Post
	Sequence int64
}

// ListRoots returns every root post currently being monitored, across all
// followers.
func (s *Store) ListRoots() ([]relay.Post, error) {
	rows, err := s.db.Query(`SELECT DISTINCT uri, fetch_time FROM roots`)
	if err != nil {
		return nil, relay.Wrap(relay.ErrStore, "list roots", err)
	}
	defer rows.Close()

	var posts []relay.Post
	for rows.Next() {
		var p relay.Post
		if err := rows.Scan(&p.URI, &p.FetchTime); err != nil {
			return nil, relay.Wrap(relay.ErrStore, "scan root", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// AddMonitorLinks records that remoteActorID should be watched for replies
// under each of posts: each post becomes a root (if not one already), and
// gets a monitor link starting at sequence 0.
func (s *Store) AddMonitorLinks(remoteActorID string, posts []relay.Post) error {
	var insertRoot, insertLink string
	if s.driver == "sqlite" {
		insertRoot = `INSERT OR IGNORE INTO roots (uri, fetch_time) VALUES (?, ?)`
		insertLink = `INSERT OR IGNORE INTO monitor_links (remote_actor_id, root_uri) VALUES (?, ?)`
	} else {
		insertRoot = `INSERT INTO roots (uri, fetch_time) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		insertLink = `INSERT INTO monitor_links (remote_actor_id, root_uri) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	}
	for _, p := range posts {
		if _, err := s.db.Exec(insertRoot, p.URI, p.FetchTime); err != nil {
			return relay.Wrap(relay.ErrStore, "add root", err)
		}
		if _, err := s.db.Exec(insertLink, remoteActorID, p.URI); err != nil {
			return relay.Wrap(relay.ErrStore, "add monitor link", err)
		}
	}
	return nil
}

// MonitorLink is one (root, how-far-consumed) pair a follower is
// registered to receive updates on.
type MonitorLink struct {
	Root           relay.Post
	UpdateSequence int64
}

// MonitorLinksOf returns every root remoteActorID is monitoring, with how
// far it has already consumed that root's descendants.
func (s *Store) MonitorLinksOf(remoteActorID string) ([]MonitorLink, error) {
	q := `SELECT roots.uri, roots.fetch_time, monitor_links.update_sequence
		FROM monitor_links JOIN roots ON monitor_links.root_uri = roots.uri
		WHERE monitor_links.remote_actor_id = ` + s.ph(1)
	rows, err := s.db.Query(q, remoteActorID)
	if err != nil {
		return nil, relay.Wrap(relay.ErrStore, "list monitor links", err)
	}
	defer rows.Close()

	var links []MonitorLink
	for rows.Next() {
		var l MonitorLink
		if err := rows.Scan(&l.Root.URI, &l.Root.FetchTime, &l.UpdateSequence); err != nil {
			return nil, relay.Wrap(relay.ErrStore, "scan monitor link", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// AdvanceMonitor records that remoteActorID has consumed rootURI's
// descendants up to sequence.
func (s *Store) AdvanceMonitor(remoteActorID, rootURI string, sequence int64) error {
	q := `UPDATE monitor_links SET update_sequence = ` + s.ph(1) +
		` WHERE remote_actor_id = ` + s.ph(2) + ` AND root_uri = ` + s.ph(3)
	if _, err := s.db.Exec(q, sequence, remoteActorID, rootURI); err != nil {
		return relay.Wrap(relay.ErrStore, "advance monitor", err)
	}
	return nil
}

// InsertDescendants records newly-discovered replies under ancestorURI.
// The sequence column is globally monotonic across the whole table, not
// just within one ancestor's descendants, assigned here under seqMu so
// concurrent DescendantsLoop workers for different hosts never race on it.
// Duplicate uris are silently ignored, but still consume a sequence value
// (as Postgres's own SERIAL would), so sequences may have gaps — only
// their order is guaranteed.
func (s *Store) InsertDescendants(ancestorURI string, posts []relay.Post) error {
	if len(posts) == 0 {
		return nil
	}
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	var next int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(sequence), 0) FROM descendants`).Scan(&next); err != nil {
		return relay.Wrap(relay.ErrStore, "read sequence high-water mark", err)
	}

	var insert string
	if s.driver == "sqlite" {
		insert = `INSERT OR IGNORE INTO descendants (uri, fetch_time, ancestor_uri, sequence) VALUES (?, ?, ?, ?)`
	} else {
		insert = `INSERT INTO descendants (uri, fetch_time, ancestor_uri, sequence) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`
	}
	for _, p := range posts {
		next++
		if _, err := s.db.Exec(insert, p.URI, p.FetchTime, ancestorURI, next); err != nil {
			return relay.Wrap(relay.ErrStore, "insert descendant", err)
		}
	}
	return nil
}

// DescendantsAfter returns descendants of ancestorURI inserted after
// sequence, in insertion order.
func (s *Store) DescendantsAfter(ancestorURI string, sequence int64) ([]DescendantRow, error) {
	q := `SELECT uri, fetch_time, sequence FROM descendants
		WHERE ancestor_uri = ` + s.ph(1) + ` AND sequence > ` + s.ph(2) + `
		ORDER BY sequence ASC`
	rows, err := s.db.Query(q, ancestorURI, sequence)
	if err != nil {
		return nil, relay.Wrap(relay.ErrStore, "descendants after", err)
	}
	defer rows.Close()

	var out []DescendantRow
	for rows.Next() {
		var d DescendantRow
		if err := rows.Scan(&d.Post.URI, &d.Post.FetchTime, &d.Sequence); err != nil {
			return nil, relay.Wrap(relay.ErrStore, "scan descendant", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
