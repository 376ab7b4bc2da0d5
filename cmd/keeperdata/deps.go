package main

import (
	"context"
	"fmt"

	"github.com/keeperdata/keeperdata/internal/blobstore"
	"github.com/keeperdata/keeperdata/internal/cleanse"
	"github.com/keeperdata/keeperdata/internal/config"
	"github.com/keeperdata/keeperdata/internal/crypto"
	"github.com/keeperdata/keeperdata/internal/dataset"
	"github.com/keeperdata/keeperdata/internal/docstore"
	"github.com/keeperdata/keeperdata/internal/importpipeline"
	"github.com/keeperdata/keeperdata/internal/lineage"
	"github.com/keeperdata/keeperdata/internal/lock"
	"github.com/keeperdata/keeperdata/internal/logging"
)

// deps holds every collaborator buildDeps constructs, wired the way
// spec.md §2's component diagram lays them out.
type deps struct {
	orchestrator *importpipeline.Orchestrator
	coordinator  *cleanse.Coordinator
	reporter     importpipeline.ImportReporter
}

// buildDeps constructs the full collaborator graph from cfg: object
// stores (S3 or in-memory), the distributed lock (Redis or
// in-memory), the document store, and the import/cleanse subsystems
// built on top of them.
func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	external, internal, err := buildStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	distLock, err := buildLock(cfg)
	if err != nil {
		return nil, err
	}

	defs, err := dataset.LoadDefinitions(cfg.Datasets)
	if err != nil {
		return nil, err
	}
	registry, err := dataset.NewRegistry(defs)
	if err != nil {
		return nil, err
	}

	store := docstore.NewEngine()
	cipher := crypto.New()
	lineageWriter := lineage.NewBlobWriter(internal)
	reporter := importpipeline.NewDocumentReporter(store)

	acquisitionLogger := logging.New(logging.Context{Component: "acquisition"})
	ingestionLogger := logging.New(logging.Context{Component: "ingestion"})
	orchestratorLogger := logging.New(logging.Context{Component: "orchestrator"})
	cleanseLogger := logging.New(logging.Context{Component: "cleanse"})

	acquisition := &importpipeline.Acquisition{
		External: external,
		Internal: internal,
		Datasets: registry,
		Crypto:   cipher,
		Reporter: reporter,
		Salt:     cfg.Crypto.Salt,
		Logger:   acquisitionLogger,
	}
	ingestion := &importpipeline.Ingestion{
		Internal: internal,
		Datasets: registry,
		Crypto:   cipher,
		Store:    store,
		Lineage:  lineageWriter,
		Reporter: reporter,
		Salt:     cfg.Crypto.Salt,
		Workers:  cfg.Ingestion.Workers,
		Logger:   ingestionLogger,
	}
	orchestrator := &importpipeline.Orchestrator{
		Reporter:    reporter,
		Acquisition: acquisition,
		Ingestion:   ingestion,
		Logger:      orchestratorLogger,
	}

	issueStore := cleanse.NewDocumentIssueStore(store)
	issues := cleanse.NewIssueCommandService(issueStore)
	operations := cleanse.NewDocumentOperationStore(store)
	exporter := &cleanse.ReportExporter{
		Internal:      internal,
		Operations:    operations,
		ReportsPrefix: cfg.Storage.ReportsPrefix,
		PresignTTL:    cfg.Cleanse.ReportURLTTL.Duration,
	}
	engine := &cleanse.Engine{
		Queries: &cleanse.CtsSamQueryService{Store: store},
		Issues:  issues,
		Logger:  cleanseLogger,
	}
	coordinator := &cleanse.Coordinator{
		Lock:       distLock,
		Engine:     engine,
		Issues:     issues,
		Operations: operations,
		Exporter:   exporter,
		Logger:     cleanseLogger,
	}

	return &deps{
		orchestrator: orchestrator,
		coordinator:  coordinator,
		reporter:     reporter,
	}, nil
}

func buildStores(ctx context.Context, cfg *config.Config) (external, internal blobstore.BlobStore, err error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		return blobstore.NewMemoryStore(), blobstore.NewMemoryStore(), nil
	case "s3":
		external, err = blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:       cfg.Storage.ExternalBucket,
			Prefix:       cfg.Storage.ExternalPrefix,
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.S3PathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("building external store: %w", err)
		}
		internal, err = blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:       cfg.Storage.InternalBucket,
			Prefix:       cfg.Storage.InternalPrefix,
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.S3PathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("building internal store: %w", err)
		}
		return external, internal, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildLock(cfg *config.Config) (lock.Lock, error) {
	switch cfg.Lock.Backend {
	case "", "memory":
		return lock.NewMemoryLock(), nil
	case "redis":
		return lock.NewRedisLock(lock.RedisConfig{URL: cfg.Lock.RedisURL})
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Lock.Backend)
	}
}
