// Package tofu implements a trust-on-first-use certificate store for
// Gemini clients: a persistent (host, port) -> fingerprint map with
// first/last-seen timestamps, verify/trust/revoke operations, and a
// text-based export/import format (spec §4.5, §6.6).
package tofu

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one TOFU record (spec §6.6).
type Entry struct {
	Hostname    string
	Port        int
	Fingerprint string
	FirstSeen   time.Time
	LastSeen    time.Time
}

func (e Entry) key() string { return fmt.Sprintf("%s:%d", e.Hostname, e.Port) }

// Store is a SQLite-backed TOFU trust store. All operations are
// serialized behind a single mutex (spec §4.5's "single-writer
// discipline"); the underlying SQLite connection pool is not relied
// upon for concurrency control.
//
// Store is grounded on github.com/dimkr/tootik's front/gemini package,
// a production Gemini server that persists per-certificate identity
// state in a SQLite database opened via this same driver.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) a TOFU store backed by the
// SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS known_hosts (
	hostname    TEXT    NOT NULL,
	port        INTEGER NOT NULL,
	fingerprint TEXT    NOT NULL,
	first_seen  TEXT    NOT NULL,
	last_seen   TEXT    NOT NULL,
	PRIMARY KEY (hostname, port)
);
`

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored entry for (host, port), if any.
func (s *Store) Get(host string, port int) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(host, port)
}

func (s *Store) getLocked(host string, port int) (Entry, bool, error) {
	row := s.db.QueryRow(
		`SELECT hostname, port, fingerprint, first_seen, last_seen FROM known_hosts WHERE hostname = ? AND port = ?`,
		host, port,
	)
	var e Entry
	var firstSeen, lastSeen string
	if err := row.Scan(&e.Hostname, &e.Port, &e.Fingerprint, &firstSeen, &lastSeen); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var err error
	if e.FirstSeen, err = time.Parse(time.RFC3339, firstSeen); err != nil {
		return Entry{}, false, err
	}
	if e.LastSeen, err = time.Parse(time.RFC3339, lastSeen); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Verify checks fingerprint against the stored entry for (host, port).
//
//   - No stored entry and allowFirstUse: the entry is created and
//     FirstUse is returned.
//   - No stored entry and !allowFirstUse: returns *ErrFirstUseForbidden.
//   - A stored entry whose fingerprint matches: last_seen is updated
//     and Match is returned.
//   - A stored entry whose fingerprint differs: returns
//     *CertificateChangedError; the store is left unmodified.
func (s *Store) Verify(host string, port int, fingerprint string, allowFirstUse bool) (Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok, err := s.getLocked(host, port)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()

	if !ok {
		if !allowFirstUse {
			return FirstUse, &ErrFirstUseForbidden{Host: host, Port: port}
		}
		if err := s.insertLocked(host, port, fingerprint, now); err != nil {
			return 0, err
		}
		return FirstUse, nil
	}

	if existing.Fingerprint != fingerprint {
		return Changed, &CertificateChangedError{
			Host:           host,
			Port:           port,
			OldFingerprint: existing.Fingerprint,
			NewFingerprint: fingerprint,
		}
	}

	if err := s.touchLocked(host, port, now); err != nil {
		return 0, err
	}
	return Match, nil
}

// Trust inserts or replaces the entry for (host, port), preserving
// first_seen across a replace (spec §4.5).
func (s *Store) Trust(host string, port int, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok, err := s.getLocked(host, port)
	if err != nil {
		return err
	}
	firstSeen := now
	if ok {
		firstSeen = existing.FirstSeen
	}
	_, err = s.db.Exec(
		`INSERT INTO known_hosts (hostname, port, fingerprint, first_seen, last_seen) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(hostname, port) DO UPDATE SET fingerprint = excluded.fingerprint, last_seen = excluded.last_seen`,
		host, port, fingerprint, firstSeen.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	return err
}

func (s *Store) insertLocked(host string, port int, fingerprint string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO known_hosts (hostname, port, fingerprint, first_seen, last_seen) VALUES (?, ?, ?, ?, ?)`,
		host, port, fingerprint, at.Format(time.RFC3339), at.Format(time.RFC3339),
	)
	return err
}

func (s *Store) touchLocked(host string, port int, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE known_hosts SET last_seen = ? WHERE hostname = ? AND port = ?`,
		at.Format(time.RFC3339), host, port,
	)
	return err
}

// Revoke removes the entry for (host, port), if any. A subsequent
// Verify classifies as FirstUse.
func (s *Store) Revoke(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM known_hosts WHERE hostname = ? AND port = ?`, host, port)
	return err
}

// List returns every stored entry, ordered by hostname then port.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT hostname, port, fingerprint, first_seen, last_seen FROM known_hosts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var firstSeen, lastSeen string
		if err := rows.Scan(&e.Hostname, &e.Port, &e.Fingerprint, &firstSeen, &lastSeen); err != nil {
			return nil, err
		}
		if e.FirstSeen, err = time.Parse(time.RFC3339, firstSeen); err != nil {
			return nil, err
		}
		if e.LastSeen, err = time.Parse(time.RFC3339, lastSeen); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Hostname != entries[j].Hostname {
			return entries[i].Hostname < entries[j].Hostname
		}
		return entries[i].Port < entries[j].Port
	})
	return entries, nil
}
