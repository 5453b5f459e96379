// Package boltrepo is a bbolt-backed entity repository. Records are stored
// as JSON envelopes, one bucket per entity kind, keyed by fully qualified
// name. It is the reference implementation of the repository contract used
// by the label cache; production deployments substitute their own stores.
package boltrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	catalogcache "github.com/catalogd/catalog-cache"
	"github.com/catalogd/catalog-cache/repository"
)

// ErrNotFound is returned when no record exists for a name.
var ErrNotFound = errors.New("boltrepo: not found")

// Store owns the bbolt database holding the entity buckets.
type Store struct {
	db     *bbolt.DB
	codec  *envelopeCodec
	logger *slog.Logger
	noSync bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithNoSync disables fsync per transaction.
// WARNING: This improves write performance but risks data loss on crash.
// Use only for testing or benchmarking, never in production.
func WithNoSync(noSync bool) Option {
	return func(s *Store) {
		s.noSync = noSync
	}
}

var entityBuckets = []catalogcache.EntityKind{
	catalogcache.KindTag,
	catalogcache.KindClassification,
	catalogcache.KindGlossary,
	catalogcache.KindGlossaryTerm,
}

// Open opens (creating if necessary) the repository database at path.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  s.noSync,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	if err := s.createBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	codec, err := newEnvelopeCodec()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating envelope codec: %w", err)
	}
	s.codec = codec

	s.logger.Debug("opened entity repository", "path", path, "noSync", s.noSync)
	return s, nil
}

func (s *Store) createBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, kind := range entityBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(kind)); err != nil {
				return fmt.Errorf("creating bucket %s: %w", kind, err)
			}
		}
		return nil
	})
}

// Close closes the database and releases codec resources.
func (s *Store) Close() error {
	if s.codec != nil {
		s.codec.Close()
		s.codec = nil
	}
	if s.db == nil {
		return nil
	}
	s.logger.Debug("closing entity repository")
	return s.db.Close()
}

// get reads and decodes the envelope for name in the kind's bucket.
func (s *Store) get(kind catalogcache.EntityKind, name string) ([]byte, error) {
	var payload []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(kind))
		if bucket == nil {
			return ErrNotFound
		}
		val := bucket.Get([]byte(name))
		if val == nil {
			return ErrNotFound
		}

		decoded, err := s.codec.Decode(val)
		if err != nil {
			return fmt.Errorf("decoding %s %q: %w", kind, name, err)
		}
		payload = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// put encodes payload into an envelope and stores it under name.
func (s *Store) put(kind catalogcache.EntityKind, name string, payload []byte) error {
	encoded, err := s.codec.Encode(payload)
	if err != nil {
		return fmt.Errorf("encoding %s %q: %w", kind, name, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(kind))
		if bucket == nil {
			return fmt.Errorf("missing bucket %s", kind)
		}
		return bucket.Put([]byte(name), encoded)
	})
}

// View is a typed window onto one entity kind's bucket. View[T] implements
// repository.EntityGetter[*T].
type View[T any] struct {
	store *Store
	kind  catalogcache.EntityKind
}

// NewView creates a typed view over kind's bucket.
func NewView[T any](s *Store, kind catalogcache.EntityKind) *View[T] {
	return &View[T]{store: s, kind: kind}
}

// GetByName implements repository.EntityGetter. The field selector is
// accepted for interface compatibility; bolt records are always complete.
func (v *View[T]) GetByName(_ context.Context, name string, _ repository.Fields) (*T, error) {
	payload, err := v.store.get(v.kind, name)
	if err != nil {
		return nil, err
	}

	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("unmarshaling %s %q: %w", v.kind, name, err)
	}
	return &out, nil
}

// Put stores a record under name, replacing any existing record.
func (v *View[T]) Put(_ context.Context, name string, record *T) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling %s %q: %w", v.kind, name, err)
	}
	return v.store.put(v.kind, name, payload)
}

// Tags returns the tag view of the store.
func Tags(s *Store) *View[catalogcache.Tag] {
	return NewView[catalogcache.Tag](s, catalogcache.KindTag)
}

// Classifications returns the classification view of the store.
func Classifications(s *Store) *View[catalogcache.Classification] {
	return NewView[catalogcache.Classification](s, catalogcache.KindClassification)
}

// Glossaries returns the glossary view of the store.
func Glossaries(s *Store) *View[catalogcache.Glossary] {
	return NewView[catalogcache.Glossary](s, catalogcache.KindGlossary)
}

// GlossaryTerms returns the glossary term view of the store.
func GlossaryTerms(s *Store) *View[catalogcache.GlossaryTerm] {
	return NewView[catalogcache.GlossaryTerm](s, catalogcache.KindGlossaryTerm)
}
