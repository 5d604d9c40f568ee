package main

import (
	"context"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/bot-transcripts/internal/assemble"
	"github.com/codebuildervaibhav/bot-transcripts/internal/cleanup"
	"github.com/codebuildervaibhav/bot-transcripts/internal/config"
	"github.com/codebuildervaibhav/bot-transcripts/internal/logging"
	"github.com/codebuildervaibhav/bot-transcripts/internal/queue"
	"github.com/codebuildervaibhav/bot-transcripts/internal/storage"
	"github.com/codebuildervaibhav/bot-transcripts/internal/transcription"
	"github.com/codebuildervaibhav/bot-transcripts/internal/types"
)

func main() {
	var (
		configPath = flag.String("config", config.DefaultPath, "path to the YAML configuration")
		idsPath    = flag.String("ids", "", "file with one record id per line (default storage.ids_file)")
		phase      = flag.String("phase", types.PhaseAll, "transcribe, assemble or all")
		workers    = flag.Int("workers", 0, "parallel records (default workers.count)")
		force      = flag.Bool("force", false, "transcribe records that already have a raw result")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) && *configPath == config.DefaultPath {
		cfg, err = config.Default(), nil
	}
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

	if !types.ValidPhase(*phase) {
		log.Fatalf("Invalid -phase %q: want transcribe, assemble or all", *phase)
	}
	if *idsPath == "" {
		*idsPath = cfg.Storage.IDsFile
	}
	if *workers <= 0 {
		*workers = cfg.Workers.Count
	}

	ids, err := storage.ReadIDs(*idsPath)
	if err != nil {
		log.Fatalf("Failed to read record ids: %v", err)
	}
	log.WithFields(logrus.Fields{"path": *idsPath, "records": len(ids)}).Info("Loaded record ids")

	if err := cleanup.EnsureDirs(cfg.Storage.OutputDir); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := storage.NewLocalStorage(cfg.Storage.InputDir, cfg.Storage.OutputDir, cfg.Storage.MetadataSuffix, cfg.Storage.RawSuffix)
	pipeline := &queue.Pipeline{
		Store:     store,
		Resolver:  storage.PassthroughResolver{},
		Assembler: assemble.Assembler{},
		Log:       log,
	}

	if *phase != types.PhaseAssemble {
		if err := cfg.RequireAPIKey(); err != nil {
			log.Fatal(err)
		}
		opts := cfg.RunpodOptions()
		opts.Logger = log
		pipeline.Transcriber = transcription.NewRunpodClient(opts)

		if cfg.S3.Region != "" {
			r, err := storage.NewS3Resolver(ctx, cfg.S3.Region, time.Duration(cfg.S3.PresignMinutes)*time.Minute)
			if err != nil {
				log.Fatalf("Failed to initialize S3 presigning: %v", err)
			}
			pipeline.Resolver = r
		}
	}
	if cfg.Webhook.URL != "" {
		pipeline.Sinks = append(pipeline.Sinks, storage.NewWebhookSink(cfg.Webhook.URL, time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second))
		pipeline.SinkAttempts = cfg.Webhook.Attempts
	}

	start := time.Now()
	pool := queue.NewWorkerPool(*workers, pipeline, nil, nil, log)
	pool.Start(ctx)

	for _, id := range ids {
		if err := storage.ValidateID(id); err != nil {
			log.WithError(err).WithField("record_id", id).Warn("Skipping record")
			continue
		}
		if err := pool.Enqueue(queue.NewJob(id, *phase, *force)); err != nil {
			log.WithError(err).WithField("record_id", id).Error("Failed to enqueue record")
		}
	}
	pool.Stop()

	counts := map[string]int{}
	for _, j := range pool.Jobs() {
		counts[j.Status]++
	}
	log.WithFields(logrus.Fields{
		"completed": counts[types.StatusCompleted],
		"skipped":   counts[types.StatusSkipped],
		"failed":    counts[types.StatusFailed],
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("Batch finished")

	if ctx.Err() != nil {
		os.Exit(130)
	}
}

