// Package cachestore is the on-disk cache tier: one file per cache key under
// a root directory owned by this process. Writes go through a temp file and
// an atomic rename, so concurrent readers never observe partial content.
package cachestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantara/marketd/internal/domain"
)

const fileExt = ".bin"

// envelope is the persisted form of a cache entry. Immutable once written.
type envelope struct {
	Kind       string `msgpack:"kind"`
	Key        string `msgpack:"key"`
	Day        string `msgpack:"day"` // YYYY-MM-DD partition, "" for undated kinds
	CreatedAt  int64  `msgpack:"created_at"`
	TTLSeconds int64  `msgpack:"ttl"`
	Provenance string `msgpack:"provenance"`
	Payload    []byte `msgpack:"payload"`
}

// Entry is a decoded cache hit.
type Entry struct {
	Payload    []byte
	Provenance domain.Provenance
	CreatedAt  time.Time
}

// Store is the file-backed cache.
type Store struct {
	root     string
	policies map[domain.DataKind]Policy
	log      zerolog.Logger
	now      func() time.Time
}

// New creates the cache root if needed and returns a store.
func New(root string, policies map[domain.DataKind]Policy, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache root: %w", err)
	}
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Store{
		root:     root,
		policies: policies,
		log:      log.With().Str("component", "cachestore").Logger(),
		now:      time.Now,
	}, nil
}

var unsafeKeyRe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func sanitizeKey(key string) string {
	return unsafeKeyRe.ReplaceAllString(key, "_")
}

// path lays entries out as root/<kind>/<day>/<key>.bin, with the day level
// omitted for undated kinds.
func (s *Store) path(kind domain.DataKind, day, key string) string {
	if day != "" {
		return filepath.Join(s.root, string(kind), day, sanitizeKey(key)+fileExt)
	}
	return filepath.Join(s.root, string(kind), sanitizeKey(key)+fileExt)
}

func (s *Store) policy(kind domain.DataKind) Policy {
	if p, ok := s.policies[kind]; ok {
		return p
	}
	return Policy{TTL: TTLReference}
}

// Put writes an entry atomically. day must be a YYYY-MM-DD partition for
// day-partitioned kinds and "" otherwise.
func (s *Store) Put(kind domain.DataKind, day, key string, payload []byte, prov domain.Provenance) error {
	p := s.policy(kind)
	ttl := p.TTL
	if day != "" {
		if day == s.today() {
			ttl = p.IntradayTTL
		} else {
			ttl = 0 // closed session, immutable
		}
	}

	env := envelope{
		Kind:       string(kind),
		Key:        key,
		Day:        day,
		CreatedAt:  s.now().Unix(),
		TTLSeconds: int64(ttl.Seconds()),
		Provenance: string(prov),
		Payload:    payload,
	}
	data, err := msgpack.Marshal(&env)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	target := s.path(kind, day, key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	// Temp file in the same directory so the rename stays on one filesystem
	// and is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish cache entry: %w", err)
	}
	return nil
}

// Get returns the entry when present and fresh per the kind's staleness
// rule, (nil, nil) on a miss. A stale entry is removed so the next Put
// starts clean. A corrupt entry is deleted and reported as a miss; it is
// never served.
func (s *Store) Get(kind domain.DataKind, day, key string) (*Entry, error) {
	target := s.path(kind, day, key)
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		// Self-heal: drop the corrupt file, let the resolver refetch.
		s.log.Warn().Err(err).Str("key", key).Str("kind", string(kind)).
			Msg("Corrupt cache entry removed")
		_ = os.Remove(target)
		return nil, nil
	}

	if s.stale(&env) {
		_ = os.Remove(target)
		return nil, nil
	}

	return &Entry{
		Payload:    env.Payload,
		Provenance: domain.Provenance(env.Provenance),
		CreatedAt:  time.Unix(env.CreatedAt, 0),
	}, nil
}

func (s *Store) today() string {
	return s.now().Format("2006-01-02")
}

func (s *Store) stale(env *envelope) bool {
	if env.Day != "" {
		if env.Day < s.today() {
			// Historical partition for a closed calendar day: immutable.
			return false
		}
		// Current-day partitions are volatile. A zero window means every
		// resolver pass revalidates against the source.
		if env.TTLSeconds <= 0 {
			return true
		}
	} else if env.TTLSeconds <= 0 {
		return false
	}
	age := s.now().Unix() - env.CreatedAt
	return age >= env.TTLSeconds
}

// Remove deletes one entry. Removing an absent entry is a no-op.
func (s *Store) Remove(kind domain.DataKind, day, key string) error {
	err := os.Remove(s.path(kind, day, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Clear deletes every entry matching the predicate and returns how many
// were removed. It is idempotent and safe to run concurrently with reads:
// entries that disappear mid-walk are simply skipped.
func (s *Store) Clear(match func(kind domain.DataKind, key string) bool) (int, error) {
	removed := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) {
			return nil
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return nil
		}
		parts := strings.Split(rel, string(filepath.Separator))
		kind := domain.DataKind(parts[0])
		key := strings.TrimSuffix(d.Name(), fileExt)

		if match == nil || match(kind, key) {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				return rmErr
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("cache clear failed: %w", err)
	}
	return removed, nil
}

// ClearKind removes every entry of one kind.
func (s *Store) ClearKind(kind domain.DataKind) (int, error) {
	return s.Clear(func(k domain.DataKind, _ string) bool { return k == kind })
}

// Sweep removes expired entries across all kinds. Run periodically; the
// cache never evicts in the background otherwise.
func (s *Store) Sweep() (int, error) {
	removed := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		var env envelope
		if msgpack.Unmarshal(data, &env) != nil || s.stale(&env) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
			}
			return nil
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("cache sweep failed: %w", err)
	}
	return removed, nil
}
