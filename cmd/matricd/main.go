// Command matricd is the Matric daemon: it wires the concrete Postgres,
// object-store, inference, and event-mirror backends into the package
// interfaces and runs the job worker pool until signaled to stop, in the
// shape of the teacher's own main.go (load config, init logging, build
// dependencies by hand, run until SIGINT/SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"matric/internal/archive"
	"matric/internal/config"
	"matric/internal/events"
	"matric/internal/extraction"
	"matric/internal/extraction/adapters"
	"matric/internal/inference/transcription"
	"matric/internal/inference/vision"
	"matric/internal/jobs"
	"matric/internal/oauth"
	"matric/internal/objectstore"
	"matric/internal/observability"
	"matric/internal/search"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	observability.InitLogger("", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := newPgPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	archives := archive.NewRegistry(pool)
	if err := archives.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("init archive registry schema")
	}

	tokens := oauth.NewStore(pool)
	if err := tokens.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("init oauth schema")
	}

	bus := events.NewBus(log.Logger)
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		mirror := events.NewKafkaMirror(cfg.KafkaBrokers, cfg.KafkaTopic, log.Logger)
		defer mirror.Close()
		bus.AddMirror(mirror)
	}
	if cfg.ClickHouseDSN != "" {
		chOpts, err := clickhouse.ParseDSN(cfg.ClickHouseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("parse clickhouse dsn")
		}
		chConn, err := clickhouse.Open(chOpts)
		if err != nil {
			log.Fatal().Err(err).Msg("connect clickhouse mirror")
		}
		chMirror := events.NewClickHouseMirror(chConn, log.Logger)
		if err := chMirror.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("ensure clickhouse schema")
		}
		bus.AddMirror(chMirror)
	}

	var qdrantBackend *search.QdrantBackend
	if cfg.QdrantURL != "" {
		qdrantBackend, err = search.NewQdrantBackend(cfg.QdrantURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect qdrant")
		}
		log.Info().Str("qdrant_url", cfg.QdrantURL).Msg("ann vector backend configured")
	}
	var embedCache *search.EmbedCache
	if cfg.RedisURL != "" {
		embedCache, err = search.NewEmbedCache(cfg.RedisURL, 10*time.Minute)
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis embed cache")
		}
		defer embedCache.Close()
		log.Info().Msg("query-embedding cache configured")
	}

	var objStore objectstore.ObjectStore
	if cfg.S3.Bucket != "" {
		objStore, err = objectstore.NewS3Store(ctx, cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("connect object store")
		}
	} else {
		objStore = objectstore.NewMemoryStore()
	}

	registry := extraction.NewRegistry()
	registry.Register(&adapters.TextNativeAdapter{})
	registry.Register(&adapters.PdfTextAdapter{})
	registry.Register(&adapters.PdfOcrAdapter{})

	if cfg.AnthropicAPIKey != "" {
		registry.Register(adapters.NewVisionAdapter(vision.NewAnthropicBackend(cfg.AnthropicAPIKey, "", "")))
	} else if cfg.GoogleAPIKey != "" {
		gemini, err := vision.NewGeminiBackend(cfg.GoogleAPIKey, "")
		if err != nil {
			log.Fatal().Err(err).Msg("init gemini vision backend")
		}
		registry.Register(adapters.NewVisionAdapter(gemini))
	}

	if cfg.WhisperBaseURL != "" {
		registry.Register(adapters.NewAudioTranscribeAdapter(transcription.NewHTTPWhisperBackend(cfg.WhisperBaseURL)))
	}

	jobRegistry := jobs.NewRegistry()
	jobRegistry.Register(jobs.NewExtractionHandler(registry, fileStorageAdapter{objStore}))
	jobRegistry.Register(jobs.NewSearchHandler(archives, qdrantBackend, embedCache))

	queue := jobs.NewQueue(pool)
	workerID := fmt.Sprintf("matricd-%d", os.Getpid())
	worker := &jobs.Worker{
		ID:            workerID,
		Queue:         queue,
		Registry:      jobRegistry,
		LeaseDuration: 5 * time.Minute,
		PollInterval:  2 * time.Second,
		Notify:        jobEventPublisher(bus),
	}

	log.Info().Str("worker_id", workerID).Msg("matricd starting")
	worker.Run(ctx)
	log.Info().Msg("matricd shut down")
}

// jobEventPublisher adapts a job's terminal outcome into a job.succeeded or
// job.failed event on bus.
func jobEventPublisher(bus *events.Bus) jobs.Notifier {
	return func(job jobs.Job, succeeded bool, reason string) {
		eventType := events.JobSucceeded
		payload := map[string]any{"job_id": job.ID, "job_type": job.JobType}
		if !succeeded {
			eventType = events.JobFailed
			payload["reason"] = reason
		}
		ev, err := events.New(eventType, &job.ArchiveID, payload)
		if err != nil {
			log.Error().Err(err).Msg("build job event")
			return
		}
		bus.Publish(ev)
	}
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// fileStorageAdapter adapts objectstore.ObjectStore's keyed Get to the
// extraction handler's attachment-ID-keyed Download.
type fileStorageAdapter struct {
	store objectstore.ObjectStore
}

func (f fileStorageAdapter) Download(attachmentID uuid.UUID) ([]byte, string, string, error) {
	key := "attachments/" + attachmentID.String()
	rc, attrs, err := f.store.Get(context.Background(), key)
	if err != nil {
		return nil, "", "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", "", err
	}
	return data, attrs.ContentType, attachmentID.String(), nil
}
