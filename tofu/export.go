package tofu

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ImportMode selects how Import reconciles incoming entries against
// entries already present in the store (spec §4.5, §6.6).
type ImportMode int

const (
	// Merge keeps existing entries and only adds hosts not already
	// known, invoking onConflict for anything that collides.
	Merge ImportMode = iota
	// Replace overwrites existing entries with the imported ones.
	Replace
)

// exportFormatVersion is the "version" key written to the
// [_metadata] section of an export.
const exportFormatVersion = "1.0"

// Export writes every entry in the store to w in the text/table
// format described by spec §6.6: a "[_metadata]" section followed by
// one "[hostname:port]" table per entry.
func (s *Store) Export(w io.Writer) error {
	entries, err := s.List()
	if err != nil {
		return err
	}
	return WriteExport(w, entries, time.Now().UTC())
}

// WriteExport writes entries to w with exportedAt recorded in the
// metadata section. Exposed separately from Store.Export so tests can
// produce deterministic output without depending on time.Now.
func WriteExport(w io.Writer, entries []Entry, exportedAt time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "[_metadata]")
	fmt.Fprintf(bw, "exported_at = %s\n", exportedAt.Format(time.RFC3339))
	fmt.Fprintf(bw, "version = %q\n", exportFormatVersion)

	for _, e := range entries {
		fmt.Fprintf(bw, "\n[%s]\n", e.key())
		fmt.Fprintf(bw, "fingerprint = %q\n", e.Fingerprint)
		fmt.Fprintf(bw, "first_seen = %q\n", e.FirstSeen.Format(time.RFC3339))
		fmt.Fprintf(bw, "last_seen = %q\n", e.LastSeen.Format(time.RFC3339))
	}

	return bw.Flush()
}

// Import reads entries previously produced by Export/WriteExport and
// applies them to the store per mode. onConflict, if non-nil, is
// called for every host that exists both in the store and in the
// import under Merge mode; its return value is the entry kept. Under
// Replace mode, onConflict is not consulted — the imported entry
// always wins.
func (s *Store) Import(r io.Reader, mode ImportMode, onConflict func(existing, incoming Entry) Entry) error {
	incoming, _, err := ParseExport(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range incoming {
		existing, ok, err := s.getLocked(e.Hostname, e.Port)
		if err != nil {
			return err
		}
		final := e
		if ok {
			switch mode {
			case Merge:
				if onConflict != nil {
					final = onConflict(existing, e)
				} else {
					final = existing
				}
			case Replace:
				final = e
			}
		}
		if _, err := s.db.Exec(
			`INSERT INTO known_hosts (hostname, port, fingerprint, first_seen, last_seen) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(hostname, port) DO UPDATE SET fingerprint = excluded.fingerprint, first_seen = excluded.first_seen, last_seen = excluded.last_seen`,
			final.Hostname, final.Port, final.Fingerprint,
			final.FirstSeen.Format(time.RFC3339), final.LastSeen.Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return nil
}

// ParseExport parses the text/table export format, returning the
// parsed entries along with the raw metadata key/value pairs from the
// "[_metadata]" section.
func ParseExport(r io.Reader) (entries []Entry, metadata map[string]string, err error) {
	metadata = map[string]string{}
	var current *Entry
	var currentKey string

	flush := func() error {
		if current == nil {
			return nil
		}
		if current.Fingerprint == "" {
			return fmt.Errorf("tofu: export entry %q missing fingerprint", currentKey)
		}
		entries = append(entries, *current)
		current = nil
		return nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if err := flush(); err != nil {
				return nil, nil, err
			}
			section := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			if section == "_metadata" {
				currentKey = section
				continue
			}
			host, port, err := splitHostPort(section)
			if err != nil {
				return nil, nil, err
			}
			currentKey = section
			current = &Entry{Hostname: host, Port: port}
			continue
		}

		key, value, err := splitKeyValue(line)
		if err != nil {
			return nil, nil, err
		}
		if current == nil {
			metadata[key] = value
			continue
		}
		switch key {
		case "fingerprint":
			current.Fingerprint = value
		case "first_seen":
			if current.FirstSeen, err = time.Parse(time.RFC3339, value); err != nil {
				return nil, nil, fmt.Errorf("tofu: entry %q: %w", currentKey, err)
			}
		case "last_seen":
			if current.LastSeen, err = time.Parse(time.RFC3339, value); err != nil {
				return nil, nil, fmt.Errorf("tofu: entry %q: %w", currentKey, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if err := flush(); err != nil {
		return nil, nil, err
	}
	return entries, metadata, nil
}

func splitHostPort(section string) (string, int, error) {
	idx := strings.LastIndex(section, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("tofu: invalid table header %q", section)
	}
	port, err := strconv.Atoi(section[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("tofu: invalid port in table header %q", section)
	}
	return section[:idx], port, nil
}

func splitKeyValue(line string) (key, value string, err error) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", fmt.Errorf("tofu: invalid line %q", line)
	}
	key = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	if unquoted, err := strconv.Unquote(value); err == nil {
		value = unquoted
	}
	return key, value, nil
}
