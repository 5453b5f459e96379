// Package labelcache caches tag and glossary term entities for quick lookup
// when labeling catalog entities. It fronts four independent bounded,
// expire-after-write caches, one per entity kind, each loading misses from
// its backing repository.
package labelcache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	catalogcache "github.com/catalogd/catalog-cache"
	"github.com/catalogd/catalog-cache/loadcache"
	"github.com/catalogd/catalog-cache/repository"
)

const (
	// DefaultTTL is how long an entry is served before it is reloaded.
	DefaultTTL = 2 * time.Minute

	// DefaultLeafMaxEntries bounds the tag and glossary term caches.
	DefaultLeafMaxEntries = 100

	// DefaultRootMaxEntries bounds the classification and glossary caches.
	DefaultRootMaxEntries = 25
)

// Config holds the repositories backing each entity kind plus cache tuning.
type Config struct {
	// Tags, Classifications, Glossaries and GlossaryTerms are the
	// repositories consulted on cache misses. All four are required.
	Tags            repository.EntityGetter[*catalogcache.Tag]
	Classifications repository.EntityGetter[*catalogcache.Classification]
	Glossaries      repository.EntityGetter[*catalogcache.Glossary]
	GlossaryTerms   repository.EntityGetter[*catalogcache.GlossaryTerm]

	// TTL is the expire-after-write duration for every cache.
	// Default: DefaultTTL.
	TTL time.Duration

	// LeafMaxEntries bounds the tag and glossary term caches.
	// Default: DefaultLeafMaxEntries.
	LeafMaxEntries int

	// RootMaxEntries bounds the classification and glossary caches.
	// Default: DefaultRootMaxEntries.
	RootMaxEntries int

	// Logger for load events.
	Logger *slog.Logger
}

// Cache resolves tag, classification, glossary and glossary term entities
// by fully qualified name, loading and caching on demand.
type Cache struct {
	tags            *loadcache.Cache[*catalogcache.Tag]
	classifications *loadcache.Cache[*catalogcache.Classification]
	glossaries      *loadcache.Cache[*catalogcache.Glossary]
	glossaryTerms   *loadcache.Cache[*catalogcache.GlossaryTerm]
	logger          *slog.Logger
}

// New creates a label cache bound to the configured repositories.
func New(cfg Config) (*Cache, error) {
	if cfg.Tags == nil || cfg.Classifications == nil || cfg.Glossaries == nil || cfg.GlossaryTerms == nil {
		return nil, errors.New("labelcache: all four entity repositories are required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.LeafMaxEntries == 0 {
		cfg.LeafMaxEntries = DefaultLeafMaxEntries
	}
	if cfg.RootMaxEntries == 0 {
		cfg.RootMaxEntries = DefaultRootMaxEntries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Cache{logger: cfg.Logger}

	c.tags = loadcache.New(func(ctx context.Context, fqn string) (*catalogcache.Tag, error) {
		tag, err := cfg.Tags.GetByName(ctx, fqn, repository.EmptyFields)
		if err != nil {
			return nil, err
		}
		c.logger.Info("loaded tag", "name", tag.Name, "id", tag.ID)
		return tag, nil
	}, loadcache.Config{
		Name:       string(catalogcache.KindTag),
		MaxEntries: cfg.LeafMaxEntries,
		TTL:        cfg.TTL,
		Logger:     cfg.Logger,
	})

	c.classifications = loadcache.New(func(ctx context.Context, name string) (*catalogcache.Classification, error) {
		classification, err := cfg.Classifications.GetByName(ctx, name, repository.EmptyFields)
		if err != nil {
			return nil, err
		}
		c.logger.Info("loaded classification", "name", classification.Name, "id", classification.ID)
		return classification, nil
	}, loadcache.Config{
		Name:       string(catalogcache.KindClassification),
		MaxEntries: cfg.RootMaxEntries,
		TTL:        cfg.TTL,
		Logger:     cfg.Logger,
	})

	c.glossaries = loadcache.New(func(ctx context.Context, name string) (*catalogcache.Glossary, error) {
		glossary, err := cfg.Glossaries.GetByName(ctx, name, repository.EmptyFields)
		if err != nil {
			return nil, err
		}
		c.logger.Info("loaded glossary", "name", glossary.Name, "id", glossary.ID)
		return glossary, nil
	}, loadcache.Config{
		Name:       string(catalogcache.KindGlossary),
		MaxEntries: cfg.RootMaxEntries,
		TTL:        cfg.TTL,
		Logger:     cfg.Logger,
	})

	c.glossaryTerms = loadcache.New(func(ctx context.Context, fqn string) (*catalogcache.GlossaryTerm, error) {
		term, err := cfg.GlossaryTerms.GetByName(ctx, fqn, repository.EmptyFields)
		if err != nil {
			return nil, err
		}
		c.logger.Info("loaded glossary term", "name", term.Name, "id", term.ID)
		return term, nil
	}, loadcache.Config{
		Name:       string(catalogcache.KindGlossaryTerm),
		MaxEntries: cfg.LeafMaxEntries,
		TTL:        cfg.TTL,
		Logger:     cfg.Logger,
	})

	return c, nil
}

// Tag returns the tag with the given fully qualified name. Any load
// failure, including the record not existing, surfaces as
// *catalogcache.EntityNotFoundError.
func (c *Cache) Tag(ctx context.Context, fqn string) (*catalogcache.Tag, error) {
	tag, err := c.tags.Get(ctx, fqn)
	if err != nil {
		return nil, &catalogcache.EntityNotFoundError{Kind: catalogcache.KindTag, Name: fqn, Err: err}
	}
	return tag, nil
}

// Classification returns the classification with the given name.
func (c *Cache) Classification(ctx context.Context, name string) (*catalogcache.Classification, error) {
	classification, err := c.classifications.Get(ctx, name)
	if err != nil {
		return nil, &catalogcache.EntityNotFoundError{Kind: catalogcache.KindClassification, Name: name, Err: err}
	}
	return classification, nil
}

// Glossary returns the glossary with the given name.
func (c *Cache) Glossary(ctx context.Context, name string) (*catalogcache.Glossary, error) {
	glossary, err := c.glossaries.Get(ctx, name)
	if err != nil {
		return nil, &catalogcache.EntityNotFoundError{Kind: catalogcache.KindGlossary, Name: name, Err: err}
	}
	return glossary, nil
}

// GlossaryTerm returns the glossary term with the given fully qualified name.
func (c *Cache) GlossaryTerm(ctx context.Context, fqn string) (*catalogcache.GlossaryTerm, error) {
	term, err := c.glossaryTerms.Get(ctx, fqn)
	if err != nil {
		return nil, &catalogcache.EntityNotFoundError{Kind: catalogcache.KindGlossaryTerm, Name: fqn, Err: err}
	}
	return term, nil
}

// Description returns the description of the tag or glossary term the
// label refers to, dispatching on the label's source.
func (c *Cache) Description(ctx context.Context, label catalogcache.TagLabel) (string, error) {
	switch label.Source {
	case catalogcache.SourceClassification:
		tag, err := c.Tag(ctx, label.TagFQN)
		if err != nil {
			return "", err
		}
		return tag.Description, nil
	case catalogcache.SourceGlossary:
		term, err := c.GlossaryTerm(ctx, label.TagFQN)
		if err != nil {
			return "", err
		}
		return term.Description, nil
	default:
		return "", catalogcache.InvalidSourceError(label.Source)
	}
}

// MutuallyExclusive reports whether the parent of the labelled tag or term
// is mutually exclusive. When the label's name has exactly two segments the
// parent is a hierarchy root (classification or glossary); otherwise it is
// itself a tag or glossary term.
func (c *Cache) MutuallyExclusive(ctx context.Context, label catalogcache.TagLabel) (bool, error) {
	parts := catalogcache.SplitFQN(label.TagFQN)
	parentFQN := catalogcache.ParentFQN(parts)
	rootParent := len(parts) == 2

	switch label.Source {
	case catalogcache.SourceClassification:
		if rootParent {
			classification, err := c.Classification(ctx, parentFQN)
			if err != nil {
				return false, err
			}
			return classification.MutuallyExclusive, nil
		}
		tag, err := c.Tag(ctx, parentFQN)
		if err != nil {
			return false, err
		}
		return tag.MutuallyExclusive, nil
	case catalogcache.SourceGlossary:
		if rootParent {
			glossary, err := c.Glossary(ctx, parentFQN)
			if err != nil {
				return false, err
			}
			return glossary.MutuallyExclusive, nil
		}
		term, err := c.GlossaryTerm(ctx, parentFQN)
		if err != nil {
			return false, err
		}
		return term.MutuallyExclusive, nil
	default:
		return false, catalogcache.InvalidSourceError(label.Source)
	}
}

// Reset evicts every entry from all four caches. Subsequent lookups reload
// from the repositories.
func (c *Cache) Reset() {
	c.tags.InvalidateAll()
	c.classifications.InvalidateAll()
	c.glossaries.InvalidateAll()
	c.glossaryTerms.InvalidateAll()
}
