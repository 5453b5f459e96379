package labelcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	catalogcache "github.com/catalogd/catalog-cache"
	"github.com/catalogd/catalog-cache/repository"
)

func TestTagLookupCachesWithinTTL(t *testing.T) {
	repos := newTestRepos()
	c, err := New(repos.config())
	require.NoError(t, err)

	ctx := context.Background()

	tag, err := c.Tag(ctx, "PII.Sensitive")
	require.NoError(t, err)
	require.Equal(t, "PII.Sensitive", tag.FullyQualifiedName)
	require.Equal(t, int64(1), repos.tagCalls.Load())

	again, err := c.Tag(ctx, "PII.Sensitive")
	require.NoError(t, err)
	require.Same(t, tag, again)
	require.Equal(t, int64(1), repos.tagCalls.Load())
}

func TestLookupFailureBecomesEntityNotFound(t *testing.T) {
	repos := newTestRepos()
	repos.tagErr = errors.New("connection refused")
	c, err := New(repos.config())
	require.NoError(t, err)

	_, err = c.Tag(context.Background(), "PII.Missing")
	require.Error(t, err)

	var nfe *catalogcache.EntityNotFoundError
	require.ErrorAs(t, err, &nfe)
	require.Equal(t, catalogcache.KindTag, nfe.Kind)
	require.Equal(t, "PII.Missing", nfe.Name)
	require.EqualError(t, err, "tag instance for PII.Missing not found")
}

func TestFailedLoadIsRetried(t *testing.T) {
	repos := newTestRepos()
	repos.tagErr = errors.New("transient")
	c, err := New(repos.config())
	require.NoError(t, err)

	ctx := context.Background()

	_, err = c.Tag(ctx, "PII.Sensitive")
	require.Error(t, err)

	repos.tagErr = nil
	tag, err := c.Tag(ctx, "PII.Sensitive")
	require.NoError(t, err)
	require.Equal(t, "PII.Sensitive", tag.FullyQualifiedName)
	require.Equal(t, int64(2), repos.tagCalls.Load())
}

func TestDescriptionDispatchesOnSource(t *testing.T) {
	repos := newTestRepos()
	c, err := New(repos.config())
	require.NoError(t, err)

	ctx := context.Background()

	desc, err := c.Description(ctx, catalogcache.TagLabel{
		TagFQN: "PII.Sensitive",
		Source: catalogcache.SourceClassification,
	})
	require.NoError(t, err)
	require.Equal(t, "description of PII.Sensitive", desc)
	require.Equal(t, int64(1), repos.tagCalls.Load())
	require.Equal(t, int64(0), repos.termCalls.Load())

	desc, err = c.Description(ctx, catalogcache.TagLabel{
		TagFQN: "Business.Customer",
		Source: catalogcache.SourceGlossary,
	})
	require.NoError(t, err)
	require.Equal(t, "description of Business.Customer", desc)
	require.Equal(t, int64(1), repos.termCalls.Load())
}

func TestDescriptionRejectsUnknownSource(t *testing.T) {
	repos := newTestRepos()
	c, err := New(repos.config())
	require.NoError(t, err)

	_, err = c.Description(context.Background(), catalogcache.TagLabel{
		TagFQN: "PII.Sensitive",
		Source: catalogcache.TagSource("AUTOMATION"),
	})
	require.ErrorIs(t, err, catalogcache.ErrInvalidSource)
}

func TestMutuallyExclusiveRootParent(t *testing.T) {
	repos := newTestRepos()
	repos.exclusive["PII"] = true
	c, err := New(repos.config())
	require.NoError(t, err)

	ctx := context.Background()

	// Two segments: the parent is the classification root, the tag cache
	// is never consulted.
	exclusive, err := c.MutuallyExclusive(ctx, catalogcache.TagLabel{
		TagFQN: "PII.Sensitive",
		Source: catalogcache.SourceClassification,
	})
	require.NoError(t, err)
	require.True(t, exclusive)
	require.Equal(t, int64(1), repos.classificationCalls.Load())
	require.Equal(t, int64(0), repos.tagCalls.Load())

	// Same shape on the glossary side.
	exclusive, err = c.MutuallyExclusive(ctx, catalogcache.TagLabel{
		TagFQN: "Business.Customer",
		Source: catalogcache.SourceGlossary,
	})
	require.NoError(t, err)
	require.False(t, exclusive)
	require.Equal(t, int64(1), repos.glossaryCalls.Load())
	require.Equal(t, int64(0), repos.termCalls.Load())
}

func TestMutuallyExclusiveNestedParent(t *testing.T) {
	repos := newTestRepos()
	repos.exclusive["PII.Sensitive"] = true
	c, err := New(repos.config())
	require.NoError(t, err)

	ctx := context.Background()

	// Three segments: the parent is itself a tag.
	exclusive, err := c.MutuallyExclusive(ctx, catalogcache.TagLabel{
		TagFQN: "PII.Sensitive.SSN",
		Source: catalogcache.SourceClassification,
	})
	require.NoError(t, err)
	require.True(t, exclusive)
	require.Equal(t, int64(0), repos.classificationCalls.Load())
	require.Equal(t, int64(1), repos.tagCalls.Load())
	require.Equal(t, "PII.Sensitive", repos.lastTagName.Load().(string))

	// Glossary side: the parent is a glossary term.
	_, err = c.MutuallyExclusive(ctx, catalogcache.TagLabel{
		TagFQN: "Business.Customer.Address",
		Source: catalogcache.SourceGlossary,
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), repos.glossaryCalls.Load())
	require.Equal(t, int64(1), repos.termCalls.Load())
}

func TestMutuallyExclusiveUnknownSource(t *testing.T) {
	repos := newTestRepos()
	c, err := New(repos.config())
	require.NoError(t, err)

	_, err = c.MutuallyExclusive(context.Background(), catalogcache.TagLabel{
		TagFQN: "PII.Sensitive",
		Source: catalogcache.TagSource("AUTOMATION"),
	})
	require.ErrorIs(t, err, catalogcache.ErrInvalidSource)
}

func TestMutuallyExclusivePropagatesNotFound(t *testing.T) {
	repos := newTestRepos()
	repos.classificationErr = errors.New("no such record")
	c, err := New(repos.config())
	require.NoError(t, err)

	_, err = c.MutuallyExclusive(context.Background(), catalogcache.TagLabel{
		TagFQN: "PII.Sensitive",
		Source: catalogcache.SourceClassification,
	})

	var nfe *catalogcache.EntityNotFoundError
	require.ErrorAs(t, err, &nfe)
	require.Equal(t, catalogcache.KindClassification, nfe.Kind)
	require.Equal(t, "PII", nfe.Name)
}

func TestResetForcesReload(t *testing.T) {
	repos := newTestRepos()
	c, err := New(repos.config())
	require.NoError(t, err)

	ctx := context.Background()

	_, err = c.Tag(ctx, "PII.Sensitive")
	require.NoError(t, err)
	_, err = c.Glossary(ctx, "Business")
	require.NoError(t, err)

	c.Reset()

	_, err = c.Tag(ctx, "PII.Sensitive")
	require.NoError(t, err)
	_, err = c.Glossary(ctx, "Business")
	require.NoError(t, err)

	require.Equal(t, int64(2), repos.tagCalls.Load())
	require.Equal(t, int64(2), repos.glossaryCalls.Load())
}

func TestSharedInitializeIsIdempotent(t *testing.T) {
	t.Cleanup(CleanUp)

	repos := newTestRepos()
	require.NoError(t, Initialize(repos.config()))

	first := Shared()
	require.NotNil(t, first)

	// A second initialize keeps the existing instance.
	require.NoError(t, Initialize(repos.config()))
	require.Same(t, first, Shared())
}

func TestCleanUpRebuildsOnNextInitialize(t *testing.T) {
	t.Cleanup(CleanUp)

	repos := newTestRepos()
	require.NoError(t, Initialize(repos.config()))

	ctx := context.Background()

	_, err := Shared().Tag(ctx, "PII.Sensitive")
	require.NoError(t, err)
	require.Equal(t, int64(1), repos.tagCalls.Load())

	CleanUp()
	require.Nil(t, Shared())

	require.NoError(t, Initialize(repos.config()))

	// Previously cached entries require fresh loads.
	_, err = Shared().Tag(ctx, "PII.Sensitive")
	require.NoError(t, err)
	require.Equal(t, int64(2), repos.tagCalls.Load())
}

func TestNewRequiresAllRepositories(t *testing.T) {
	cfg := newTestRepos().config()
	cfg.GlossaryTerms = nil
	_, err := New(cfg)
	require.Error(t, err)
}

func TestTTLExpiryTriggersReload(t *testing.T) {
	repos := newTestRepos()
	cfg := repos.config()
	cfg.TTL = time.Nanosecond
	c, err := New(cfg)
	require.NoError(t, err)

	ctx := context.Background()

	_, err = c.Tag(ctx, "PII.Sensitive")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	_, err = c.Tag(ctx, "PII.Sensitive")
	require.NoError(t, err)
	require.Equal(t, int64(2), repos.tagCalls.Load())
}

// Helper functions

// testRepos is a set of spy repositories returning synthetic records.
type testRepos struct {
	tagCalls            atomic.Int64
	classificationCalls atomic.Int64
	glossaryCalls       atomic.Int64
	termCalls           atomic.Int64

	lastTagName atomic.Value

	tagErr            error
	classificationErr error

	// exclusive marks which names report mutuallyExclusive=true.
	exclusive map[string]bool
}

func newTestRepos() *testRepos {
	return &testRepos{exclusive: make(map[string]bool)}
}

func (r *testRepos) config() Config {
	return Config{
		Tags: repository.GetterFunc[*catalogcache.Tag](func(_ context.Context, name string, _ repository.Fields) (*catalogcache.Tag, error) {
			r.tagCalls.Add(1)
			r.lastTagName.Store(name)
			if r.tagErr != nil {
				return nil, r.tagErr
			}
			return &catalogcache.Tag{
				ID:                 uuid.New(),
				Name:               name,
				FullyQualifiedName: name,
				Description:        "description of " + name,
				MutuallyExclusive:  r.exclusive[name],
			}, nil
		}),
		Classifications: repository.GetterFunc[*catalogcache.Classification](func(_ context.Context, name string, _ repository.Fields) (*catalogcache.Classification, error) {
			r.classificationCalls.Add(1)
			if r.classificationErr != nil {
				return nil, r.classificationErr
			}
			return &catalogcache.Classification{
				ID:                 uuid.New(),
				Name:               name,
				FullyQualifiedName: name,
				MutuallyExclusive:  r.exclusive[name],
			}, nil
		}),
		Glossaries: repository.GetterFunc[*catalogcache.Glossary](func(_ context.Context, name string, _ repository.Fields) (*catalogcache.Glossary, error) {
			r.glossaryCalls.Add(1)
			return &catalogcache.Glossary{
				ID:                 uuid.New(),
				Name:               name,
				FullyQualifiedName: name,
				MutuallyExclusive:  r.exclusive[name],
			}, nil
		}),
		GlossaryTerms: repository.GetterFunc[*catalogcache.GlossaryTerm](func(_ context.Context, name string, _ repository.Fields) (*catalogcache.GlossaryTerm, error) {
			r.termCalls.Add(1)
			return &catalogcache.GlossaryTerm{
				ID:                 uuid.New(),
				Name:               name,
				FullyQualifiedName: name,
				Description:        "description of " + name,
				MutuallyExclusive:  r.exclusive[name],
			}, nil
		}),
	}
}
