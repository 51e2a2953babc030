package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"transcript-assistant/internal/ai"
	appsvc "transcript-assistant/internal/app"
	"transcript-assistant/internal/cache"
	"transcript-assistant/internal/chunking"
	"transcript-assistant/internal/config"
	"transcript-assistant/internal/contextwindow"
	"transcript-assistant/internal/logger"
	"transcript-assistant/internal/model"
	mysqlClient "transcript-assistant/internal/platform/mysql"
	rabbitmqClient "transcript-assistant/internal/platform/rabbitmq"
	redisClient "transcript-assistant/internal/platform/redis"
	"transcript-assistant/internal/repository"
	"transcript-assistant/internal/retrieval"
	"transcript-assistant/internal/worker"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Auth        *appsvc.AuthService
	Transcripts *appsvc.TranscriptService
	Search      *appsvc.SearchService
	Chat        *appsvc.ChatService
}

type App struct {
	Config   *config.Config
	Log      *logger.Logger
	MySQL    *gorm.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection
	Services Services

	workers   []*worker.Consumer
	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	app := &App{Config: cfg, Log: log, StartedAt: time.Now()}
	if err := app.connect(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.wire(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), mysqlClient.Options{Verbose: cfg.App.Env == "dev"})
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(model.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	a.Redis = redisCli

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MessagePersistQueue, cfg.RabbitMQ.ChunkJobQueue)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	a.Log.Info("infrastructure connected",
		"mysql", cfg.MySQL.Host, "redis", cfg.Redis.Addr, "rabbitmq_queues",
		[]string{cfg.RabbitMQ.MessagePersistQueue, cfg.RabbitMQ.ChunkJobQueue})
	return nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config
	log := a.Log

	userRepo := repository.NewUserRepository(a.MySQL)
	transcriptRepo := repository.NewTranscriptRepository(a.MySQL)
	chunkRepo := repository.NewTranscriptChunkRepository(a.MySQL)
	feedbackRepo := repository.NewFeedbackRepository(a.MySQL)
	conversationRepo := repository.NewConversationRepository(a.MySQL)
	messageRepo := repository.NewMessageRepository(a.MySQL)

	llm, err := ai.NewOpenAICompatibleClient(ai.Options{
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		MinInterval: cfg.Generation.MinInterval(),
		CacheSize:   cfg.Generation.CacheSize,
		CacheWindow: cfg.Generation.CacheWindow,
	})
	if err != nil {
		return fmt.Errorf("create llm client failed: %w", err)
	}
	chatLLM := ai.ChatConfig{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model}
	embedding := ai.EmbeddingConfig{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.EmbeddingModel}
	if !embedding.Enabled() {
		log.Info("embedding model not configured, using keyword ranking only")
	}

	classifier := retrieval.NewClassifier(catalog(cfg.Retrieval.DefaultCategory))
	ranker := retrieval.NewRanker(scoring(cfg.Retrieval), classifier)

	indexer := appsvc.NewTranscriptIndexer(transcriptRepo, chunkRepo, llm, embedding, chunkOptions(cfg.Chunking), log.With("component", "indexer"))
	chunkJobs := rabbitmqClient.NewChunkJobPublisher(a.MQConn, cfg.RabbitMQ.ChunkJobQueue)
	messages := rabbitmqClient.NewMessagePublisher(a.MQConn, cfg.RabbitMQ.MessagePersistQueue)
	history := cache.NewHistoryCache(
		a.Redis,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	search := appsvc.NewSearchService(transcriptRepo, chunkRepo, feedbackRepo, ranker, llm, embedding,
		cfg.Retrieval.SemanticWeight, log.With("component", "search"))
	a.Services = Services{
		Auth: appsvc.NewAuthService(
			userRepo,
			cfg.Auth.JWTSecret,
			time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
		),
		Transcripts: appsvc.NewTranscriptService(transcriptRepo, chunkRepo, indexer, chunkJobs, classifier, log.With("component", "transcripts")),
		Search:      search,
		Chat: appsvc.NewChatService(
			conversationRepo,
			messageRepo,
			messages,
			history,
			llm,
			search,
			contextwindow.NewAssembler(a.tokenizer(), contextwindow.Config{
				CharsPerToken:   cfg.Context.CharsPerToken,
				MessageOverhead: cfg.Context.MessageOverhead,
			}),
			chatLLM,
			appsvc.ChatOptions{
				SystemPrompt: cfg.Generation.SystemPrompt,
				MaxTokens:    cfg.Context.MaxTokens,
				HistoryLimit: cfg.Context.HistoryLimit,
			},
			log.With("component", "chat"),
		),
	}

	a.workers = []*worker.Consumer{
		worker.NewMessagePersistWorker(a.MQConn, messageRepo, cfg.RabbitMQ.MessagePersistQueue, log),
		worker.NewChunkJobWorker(a.MQConn, indexer, cfg.RabbitMQ.ChunkJobQueue, log),
	}
	for _, w := range a.workers {
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start worker failed: %w", err)
		}
	}
	return nil
}

// tokenizer prefers exact BPE counts and falls back to the character heuristic when the
// encoding cannot be loaded, for example without network access to fetch its ranks.
func (a *App) tokenizer() contextwindow.Tokenizer {
	bpe, err := contextwindow.NewBPE(a.Config.Context.Encoding)
	if err != nil {
		a.Log.Warn("bpe tokenizer unavailable, estimating tokens from length",
			"encoding", a.Config.Context.Encoding, "error", err)
		return contextwindow.Heuristic{CharsPerToken: a.Config.Context.CharsPerToken}
	}
	return bpe
}

func catalog(defaultID string) *retrieval.Catalog {
	base := retrieval.DefaultCatalog()
	if defaultID == "" {
		return base
	}
	return retrieval.NewCatalog(defaultID, base.Categories()...)
}

func scoring(cfg config.RetrievalConfig) retrieval.Scoring {
	s := retrieval.DefaultScoring()
	s.PhraseBonus = cfg.PhraseBonus
	s.TitleWeight = cfg.TitleWeight
	s.ContentWeight = cfg.ContentWeight
	s.RecencyBoost = cfg.RecencyBoost
	s.RecencyWindow = cfg.RecencyWindow()
	s.ExcerptMaxChars = cfg.ExcerptMaxChars
	s.MaxResults = cfg.MaxResults
	s.FeedbackBoostCap = cfg.FeedbackBoostCap
	return s
}

func chunkOptions(cfg config.ChunkingConfig) chunking.Options {
	opts := chunking.DefaultOptions()
	opts.Strategy = chunking.Strategy(cfg.Strategy)
	opts.ParagraphsPerParent = cfg.ParagraphsPerParent
	opts.SentencesPerChild = cfg.SentencesPerChild
	opts.Overlap = cfg.Overlap
	opts.MaxChars = cfg.MaxChars
	return opts
}

func (a *App) Close() error {
	var closeErr error
	for _, w := range a.workers {
		w.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}

// HealthChecks probes each infrastructure dependency.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"mysql": func(ctx context.Context) error { return mysqlClient.Ping(ctx, a.MySQL) },
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx, a.Redis) },
		"rabbitmq": func(context.Context) error {
			if a.MQConn == nil || a.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
	}
}
