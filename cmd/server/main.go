package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/bot-transcripts/internal/assemble"
	"github.com/codebuildervaibhav/bot-transcripts/internal/cleanup"
	"github.com/codebuildervaibhav/bot-transcripts/internal/config"
	"github.com/codebuildervaibhav/bot-transcripts/internal/handlers"
	"github.com/codebuildervaibhav/bot-transcripts/internal/logging"
	"github.com/codebuildervaibhav/bot-transcripts/internal/queue"
	"github.com/codebuildervaibhav/bot-transcripts/internal/storage"
	"github.com/codebuildervaibhav/bot-transcripts/internal/transcription"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML configuration")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logs, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Dir:    cfg.Logging.Dir,
	})
	if err != nil {
		logrus.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logs.Close()
	log := logs.Logger

	if err := cleanup.EnsureDirs(cfg.Storage.InputDir, cfg.Storage.OutputDir, cfg.Storage.TempDir); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Initializing components...")

	store := storage.NewLocalStorage(cfg.Storage.InputDir, cfg.Storage.OutputDir, cfg.Storage.MetadataSuffix, cfg.Storage.RawSuffix)

	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	pipeline := &queue.Pipeline{
		Store:        store,
		Resolver:     mediaResolver(ctx, cfg, log),
		Assembler:    assemble.Assembler{},
		Sinks:        sinks(ctx, cfg, log),
		Log:          log,
		SinkAttempts: cfg.Webhook.Attempts,
	}
	if err := cfg.RequireAPIKey(); err != nil {
		log.WithError(err).Warn("Transcribe phase disabled, only assemble jobs will succeed")
	} else {
		opts := cfg.RunpodOptions()
		opts.Logger = log
		pipeline.Transcriber = transcription.NewRunpodClient(opts)
	}

	hub := queue.NewHub(0)
	workerPool := queue.NewWorkerPool(cfg.Workers.Count, pipeline, db, hub, log)
	workerPool.Start(ctx)

	cleanupScheduler := cleanup.NewScheduler(
		[]string{cfg.Storage.InputDir, cfg.Storage.OutputDir},
		storage.TempPattern,
		cfg.Cleanup.IntervalMinutes,
		cfg.Cleanup.MaxAgeHours,
		log,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit:             16 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logs.HTTPConfig()))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	records := handlers.NewRecordsHandler(workerPool, store)
	jobs := handlers.NewJobsHandler(workerPool, db)
	transcripts := handlers.NewTranscriptsHandler(store)
	upload := handlers.NewUploadHandler(workerPool, store, 10)
	gdrive := handlers.NewGDriveHandler(workerPool, store, 10)
	stream := handlers.NewStreamHandler(hub)

	// Routes
	app.Get("/health", handlers.HealthHandler(workerPool))
	app.Get("/logs", handlers.LogsHandler(logs.Buffer))

	app.Post("/records", records.Enqueue)
	app.Get("/records", records.List)
	app.Post("/records/upload", upload.Handle)
	app.Post("/records/gdrive", gdrive.Handle)

	app.Get("/jobs", jobs.List)
	app.Get("/jobs/:id", jobs.Get)
	app.Get("/transcripts/:id", transcripts.Get)

	app.Use("/ws", stream.Upgrade)
	app.Get("/ws/jobs", websocket.New(stream.Handle))

	addr := cfg.Addr()
	log.Infof("Server starting on %s", addr)
	log.Info("Endpoints:")
	log.Info("   POST /records          - Enqueue record ids {ids, phase, force}")
	log.Info("   GET  /records          - List records in the input directory")
	log.Info("   POST /records/upload   - Upload a metadata document")
	log.Info("   POST /records/gdrive   - Import a metadata document from Google Drive")
	log.Info("   GET  /jobs             - List jobs")
	log.Info("   GET  /jobs/:id         - Job status")
	log.Info("   GET  /transcripts/:id  - Assembled transcript")
	log.Info("   GET  /ws/jobs          - WebSocket job events")
	log.Info("   GET  /logs             - View server logs")
	log.Info("   GET  /health           - Health check")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("Shutting down gracefully...")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.WithError(err).Warn("HTTP shutdown incomplete")
		}
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	// In-flight polling was cancelled with ctx; queued jobs fail fast.
	workerPool.Stop()
}

// mediaResolver presigns s3:// references when an S3 region is configured
func mediaResolver(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) storage.MediaResolver {
	if cfg.S3.Region == "" {
		return storage.PassthroughResolver{}
	}
	r, err := storage.NewS3Resolver(ctx, cfg.S3.Region, time.Duration(cfg.S3.PresignMinutes)*time.Minute)
	if err != nil {
		log.WithError(err).Warn("S3 presigning not available, submitting media references unchanged")
		return storage.PassthroughResolver{}
	}
	log.Info("S3 presigning enabled")
	return r
}

// sinks builds the optional delivery targets for assembled documents
func sinks(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) []storage.Sink {
	var out []storage.Sink

	if cfg.Webhook.URL != "" {
		out = append(out, storage.NewWebhookSink(cfg.Webhook.URL, time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second))
		log.WithField("url", cfg.Webhook.URL).Info("Webhook delivery enabled")
	}

	if cfg.GoogleDrive.CredentialsFile == "" {
		return out
	}
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err != nil {
		log.Info("Google Drive credentials not found - saving locally only")
		return out
	}
	driveClient, err := storage.NewDriveClient(ctx,
		cfg.GoogleDrive.CredentialsFile,
		cfg.GoogleDrive.TokenFile,
		cfg.GoogleDrive.FolderName,
	)
	if err != nil {
		log.WithError(err).Warn("Google Drive not available, transcripts will only be saved locally")
		return out
	}
	log.Info("Google Drive integration enabled")
	return append(out, driveClient)
}
