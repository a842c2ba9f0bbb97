package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"resident-intake/internal/audit"
	"resident-intake/internal/config"
	"resident-intake/internal/conversation"
	"resident-intake/internal/dedup"
	"resident-intake/internal/degrade"
	"resident-intake/internal/intent"
	"resident-intake/internal/jobs"
	"resident-intake/internal/llm"
	"resident-intake/internal/lock"
	"resident-intake/internal/messaging"
	"resident-intake/internal/normalize"
	"resident-intake/internal/pricing"
	"resident-intake/internal/store"
	"resident-intake/internal/throttle"
	"resident-intake/internal/transcribe"
	"resident-intake/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// services is everything the HTTP routes and the job pool share.
type services struct {
	DB     *sql.DB
	Store  store.Store
	Engine *conversation.Engine
	Locker lock.Locker
	Queue  *jobs.Queue
	Pool   *jobs.Pool
	Audit  *audit.Service

	closers []func() error
}

func (s *services) Close() {
	for _, c := range s.closers {
		_ = c()
	}
}

func buildServices(ctx context.Context, cfg config.Config, db *sql.DB, rdb *redis.Client) (*services, error) {
	log := logger.From(ctx)
	s := &services{DB: db}

	st := store.NewPostgres(db)
	s.Store = st
	s.Audit = audit.NewService(audit.NewPostgresRepo(db))
	s.Locker = lock.NewRedisLocker(rdb, cfg.Intake.LockLease)

	model := llm.New(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		ChatModel:      cfg.LLM.ChatModel,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Timeout:        cfg.LLM.Timeout,
		MaxRetries:     2,
	})

	var voice degrade.Transcriber
	if cfg.Speech.Enabled {
		tr, err := transcribe.New(ctx, transcribe.Config{
			AccountSID:      cfg.Twilio.AccountSID,
			AuthToken:       cfg.Twilio.AuthToken,
			CredentialsFile: cfg.Speech.CredentialsFile,
			LanguageCode:    cfg.Speech.LanguageCode,
		})
		if err != nil {
			return nil, fmt.Errorf("transcriber: %w", err)
		}
		s.closers = append(s.closers, tr.Close)
		voice = degrade.NewTranscriber(tr)
	} else {
		log.Info("voice transcription disabled")
	}

	var reply degrade.Sender
	if cfg.Twilio.AccountSID != "" {
		sender, err := messaging.NewSender(messaging.SenderConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			FromNumber: cfg.Twilio.FromNumber,
			Timeout:    10 * time.Second,
			MaxRetries: 2,
		})
		if err != nil {
			return nil, fmt.Errorf("twilio sender: %w", err)
		}
		reply = degrade.NewSender(sender)
	} else {
		log.Warn("twilio not configured, replies are not delivered")
	}

	guard := throttle.NewGuard(throttle.NewRedisStore(rdb), throttle.Config{
		Window:    cfg.Intake.ThrottleWindow,
		SoftLimit: cfg.Intake.ThrottleSoftLimit,
		HardLimit: cfg.Intake.ThrottleHardLimit,
		BlockFor:  cfg.Intake.ThrottleBlockFor,
	})

	classifier := intent.NewClassifier(
		degrade.NewClassifier(model),
		degrade.NewMeaning(model),
		cfg.Intake.ClassifierMinConfidence,
	)

	engine, err := conversation.NewEngine(conversation.Deps{
		Store:          st,
		Throttle:       guard,
		Normalizer:     normalize.New(voice),
		Classifier:     classifier,
		Detector:       dedup.NewDetector(cfg.Intake.SimilarityThreshold),
		Embedder:       degrade.NewEmbedder(model),
		Translator:     degrade.NewTranslator(model),
		Fees:           pricing.NewService(pricing.NewPostgresRepo(db), cfg.Intake.DefaultDiagnosisFee),
		Audit:          s.Audit,
		SessionTimeout: cfg.Intake.SessionTimeout,
		DefaultFee:     cfg.Intake.DefaultDiagnosisFee,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation engine: %w", err)
	}
	s.Engine = engine

	jobRepo := jobs.NewPostgresRepo(db)
	s.Queue = jobs.NewQueue(jobRepo)
	runner := jobs.NewRunner(jobRepo, s.Locker, engine, reply, 0)
	s.Pool = jobs.NewPool(runner, jobRepo, cfg.Intake.WorkerConcurrency, cfg.Intake.WorkerPollInterval, 0)

	log.Info("services ready",
		slog.Float64("similarity_threshold", cfg.Intake.SimilarityThreshold),
		slog.Int64("default_fee", cfg.Intake.DefaultDiagnosisFee),
	)
	return s, nil
}
