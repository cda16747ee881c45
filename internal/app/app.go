package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
	db "github.com/markdave123-py/docchat/internal/core/database"
	"github.com/markdave123-py/docchat/internal/core/generator"
	"github.com/markdave123-py/docchat/internal/core/ingestion_engine"
	"github.com/markdave123-py/docchat/internal/core/llm"
	objectclient "github.com/markdave123-py/docchat/internal/core/object-client"
	"github.com/markdave123-py/docchat/internal/core/queue"
	"github.com/markdave123-py/docchat/internal/core/retrieval"
	"github.com/markdave123-py/docchat/internal/core/tokens"
	"github.com/markdave123-py/docchat/internal/services"
)

// App holds every long-lived dependency of the API and worker processes.
type App struct {
	Config       *config.Config
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Providers    *llm.Providers
	Jobs         queue.JobQueue
	Ingestor     *ingestion_engine.DocumentIngestor
	Documents    *services.DocumentService
	Chat         *services.ChatService
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (a *App, err error) {
	appCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.DBClient, err = newDBClient(appCtx, cfg); err != nil {
		return nil, err
	}
	logrus.WithField("backend", cfg.DbBackend).Info("database ready")

	if a.ObjectClient, err = objectclient.New(appCtx, cfg); err != nil {
		return nil, err
	}
	logrus.WithField("backend", cfg.StorageBackend).Info("object storage ready")

	if a.Providers, err = llm.NewProviders(appCtx, cfg); err != nil {
		return nil, fmt.Errorf("couldn't initialize model providers: %w", err)
	}

	if a.Jobs, err = newJobQueue(appCtx, cfg); err != nil {
		return nil, err
	}

	extractor, err := newExtractor(cfg)
	if err != nil {
		return nil, err
	}

	a.Ingestor, err = ingestion_engine.NewDocumentIngestor(a.DBClient, a.ObjectClient, a.Providers.Embedder, extractor, a.Jobs, &ingestion_engine.IngestConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.EmbedBatchSize,
		EmbedDim:     cfg.EmbedDim,
		JobTimeout:   ingestion_engine.DefaultJobTimeout,
	})
	if err != nil {
		return nil, err
	}

	counter := tokens.NewTiktoken()
	a.Documents = services.NewDocumentService(a.DBClient, a.ObjectClient, a.Ingestor, cfg.IngestMode == "inline")
	a.Chat = services.NewChatService(
		a.DBClient,
		retrieval.NewRetriever(a.DBClient, a.Providers.Embedder, cfg.RetrievalTopK),
		generator.New(a.Providers.LLM, counter, cfg.ContextMaxTokens, cfg.MaxOutputTokens),
		counter,
		cfg.RetrievalTopK,
		cfg.MemoryMaxTokens,
	)
	a.Server = NewServer(cfg, a.Documents, a.Chat)
	return a, nil
}

// InProcessWorkers reports whether the API process should consume its own
// queue. External queues are drained by cmd/worker.
func (a *App) InProcessWorkers() bool {
	return a.Config.IngestMode == "background" && a.Config.QueueBackend == "memory"
}

func newDBClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	switch cfg.DbBackend {
	case "memory":
		return db.NewMemoryClient(cfg.EmbedDim), nil
	case "postgres":
		return db.NewDatabaseClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown DB_BACKEND %q", core.ErrInvalidConfiguration, cfg.DbBackend)
	}
}

func newJobQueue(ctx context.Context, cfg *config.Config) (queue.JobQueue, error) {
	switch cfg.QueueBackend {
	case "memory":
		return queue.NewMemoryQueue(64), nil
	case "redis":
		return queue.NewRedisQueue(ctx, cfg.RedisURL, cfg.RedisQueueKey)
	case "kafka":
		return queue.NewKafkaQueue(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	default:
		return nil, fmt.Errorf("%w: unknown QUEUE_BACKEND %q", core.ErrInvalidConfiguration, cfg.QueueBackend)
	}
}

func newExtractor(cfg *config.Config) (core.DocumentExtractor, error) {
	switch cfg.Extractor {
	case "native":
		return ingestion_engine.NewNativePDFExtractor(), nil
	case "docconv":
		return ingestion_engine.NewDocconvExtractor(), nil
	default:
		return nil, fmt.Errorf("%w: unknown EXTRACTOR %q", core.ErrInvalidConfiguration, cfg.Extractor)
	}
}

func (a *App) Close() {
	var errs []error
	if a.Jobs != nil {
		errs = append(errs, a.Jobs.Close())
	}
	if a.Providers != nil {
		errs = append(errs, a.Providers.Close())
	}
	if a.DBClient != nil {
		errs = append(errs, a.DBClient.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logrus.WithError(err).Warn("error while closing app")
	}
}
