// Command catalog-cache exercises the catalog label cache and insight
// aggregators against local data: a bbolt entity repository for lookups and
// raw search response files for aggregation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	catalogcache "github.com/catalogd/catalog-cache"
	"github.com/catalogd/catalog-cache/insight"
	"github.com/catalogd/catalog-cache/labelcache"
	"github.com/catalogd/catalog-cache/repository/boltrepo"
	"github.com/catalogd/catalog-cache/telemetry"
)

var cli struct {
	LogLevel     string `help:"Log level (debug, info, warn, error)." enum:"debug,info,warn,error" default:"info"`
	LogFormat    string `help:"Log format (text, json)." enum:"text,json" default:"text"`
	OTLPEndpoint string `help:"OTLP gRPC endpoint for metrics export (disabled when empty)."`

	Aggregate AggregateCmd `cmd:"" help:"Run the services-owner aggregation over a search response JSON file."`
	Seed      SeedCmd      `cmd:"" help:"Load entity records into the repository database."`
	Lookup    LookupCmd    `cmd:"" help:"Resolve a tag label through the label cache."`
}

// AppContext carries shared dependencies into subcommands.
type AppContext struct {
	Logger *slog.Logger
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("catalog-cache"),
		kong.Description("Metadata catalog label cache and insight aggregation tool."),
		kong.UsageOnError(),
	)

	logger := newLogger(cli.LogLevel, cli.LogFormat)
	slog.SetDefault(logger)

	ctx := context.Background()
	shutdown, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:  "catalog-cache",
		OTLPEndpoint: cli.OTLPEndpoint,
	})
	kctx.FatalIfErrorf(err)
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	kctx.FatalIfErrorf(kctx.Run(&AppContext{Logger: logger}))
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: lvl})
	}
	return slog.New(handler)
}

// AggregateCmd parses a raw search response and prints the ownership chart.
type AggregateCmd struct {
	File string `arg:"" help:"Search response JSON file." type:"existingfile"`
}

// Run implements the aggregate subcommand.
func (c *AggregateCmd) Run(app *AppContext) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("reading %s: %w", c.File, err)
	}

	aggregations, err := insight.ParseSearchResult(data)
	if err != nil {
		return err
	}

	result, err := insight.NewServicesOwnerAggregator(aggregations).Process(context.Background())
	if err != nil {
		return err
	}

	app.Logger.Info("aggregation complete", "chart_type", result.ChartType, "records", len(result.Data))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// SeedCmd loads entity records from a JSON array file into the repository.
type SeedCmd struct {
	DB   string `arg:"" help:"Repository database path."`
	Kind string `arg:"" help:"Entity kind." enum:"tag,classification,glossary,glossaryTerm"`
	File string `arg:"" help:"JSON array of entity records." type:"existingfile"`
}

// Run implements the seed subcommand.
func (c *SeedCmd) Run(app *AppContext) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("reading %s: %w", c.File, err)
	}

	store, err := boltrepo.Open(c.DB, boltrepo.WithLogger(app.Logger))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	var count int

	switch catalogcache.EntityKind(c.Kind) {
	case catalogcache.KindTag:
		count, err = seedRecords(ctx, boltrepo.Tags(store), data)
	case catalogcache.KindClassification:
		count, err = seedRecords(ctx, boltrepo.Classifications(store), data)
	case catalogcache.KindGlossary:
		count, err = seedRecords(ctx, boltrepo.Glossaries(store), data)
	case catalogcache.KindGlossaryTerm:
		count, err = seedRecords(ctx, boltrepo.GlossaryTerms(store), data)
	}
	if err != nil {
		return err
	}

	app.Logger.Info("seeded records", "kind", c.Kind, "count", count)
	return nil
}

func seedRecords[T any](ctx context.Context, view *boltrepo.View[T], data []byte) (int, error) {
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parsing records: %w", err)
	}

	for i := range records {
		name, err := recordName(&records[i])
		if err != nil {
			return i, err
		}
		if err := view.Put(ctx, name, &records[i]); err != nil {
			return i, err
		}
	}
	return len(records), nil
}

// recordName extracts the fully qualified name from any of the four entity
// record types.
func recordName(record any) (string, error) {
	switch r := record.(type) {
	case *catalogcache.Tag:
		return r.FullyQualifiedName, nil
	case *catalogcache.Classification:
		return r.FullyQualifiedName, nil
	case *catalogcache.Glossary:
		return r.FullyQualifiedName, nil
	case *catalogcache.GlossaryTerm:
		return r.FullyQualifiedName, nil
	default:
		return "", fmt.Errorf("unsupported record type %T", record)
	}
}

// LookupCmd resolves a tag label through the shared label cache.
type LookupCmd struct {
	DB     string `arg:"" help:"Repository database path." type:"existingfile"`
	FQN    string `arg:"" help:"Fully qualified name of the tag or glossary term."`
	Source string `help:"Label source." enum:"CLASSIFICATION,GLOSSARY" default:"CLASSIFICATION"`
}

// Run implements the lookup subcommand.
func (c *LookupCmd) Run(app *AppContext) error {
	store, err := boltrepo.Open(c.DB, boltrepo.WithLogger(app.Logger))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := labelcache.Initialize(labelcache.Config{
		Tags:            boltrepo.Tags(store),
		Classifications: boltrepo.Classifications(store),
		Glossaries:      boltrepo.Glossaries(store),
		GlossaryTerms:   boltrepo.GlossaryTerms(store),
		Logger:          app.Logger,
	}); err != nil {
		return err
	}
	defer labelcache.CleanUp()

	ctx := context.Background()
	label := catalogcache.TagLabel{
		TagFQN: c.FQN,
		Source: catalogcache.TagSource(c.Source),
	}

	description, err := labelcache.Shared().Description(ctx, label)
	if err != nil {
		return err
	}
	fmt.Printf("description: %s\n", description)

	exclusive, err := labelcache.Shared().MutuallyExclusive(ctx, label)
	if err != nil {
		app.Logger.Warn("parent lookup failed", "fqn", c.FQN, "error", err)
		return nil
	}
	fmt.Printf("parent mutually exclusive: %t\n", exclusive)

	return nil
}
