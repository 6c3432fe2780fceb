package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/whatspay/config"
	"github.com/vnmchuo/whatspay/internal/billing"
	"github.com/vnmchuo/whatspay/internal/bot"
	"github.com/vnmchuo/whatspay/internal/deposit"
	"github.com/vnmchuo/whatspay/internal/gateway"
	"github.com/vnmchuo/whatspay/internal/hathor"
	"github.com/vnmchuo/whatspay/internal/intent"
	"github.com/vnmchuo/whatspay/internal/messenger"
	"github.com/vnmchuo/whatspay/internal/provider"
	"github.com/vnmchuo/whatspay/internal/provider/claude"
	"github.com/vnmchuo/whatspay/internal/provider/gemini"
	"github.com/vnmchuo/whatspay/internal/provider/openai"
	"github.com/vnmchuo/whatspay/internal/state"
	"github.com/vnmchuo/whatspay/internal/telemetry"
	"github.com/vnmchuo/whatspay/internal/wallet"
	"github.com/vnmchuo/whatspay/internal/worker"
	"github.com/vnmchuo/whatspay/pkg/ratelimit"
)

const version = "1.0.0"

func main() {
	// 1. Load config. This fails fast on a missing wallet seed or Twilio
	// credentials; there is no degraded mode for either.
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg.Debug)

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("whatspay", cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracer")
	}
	defer shutdownTracer()

	ctx := context.Background()

	// 3. Optional PostgreSQL usage archive
	var archive *billing.Archive
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect postgres")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping postgres")
		}
		archive = billing.NewArchive(pool)
		log.Info().Msg("usage archive enabled")
	}

	// 4. Optional Redis-backed sender rate limiting
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to ping redis")
		}
		limiter = ratelimit.NewLimiter(rdb, cfg.SenderRateLimitPerMin)
		log.Info().Int64("per_minute", cfg.SenderRateLimitPerMin).Msg("sender rate limiting enabled")
	}

	// 5. State store
	store := state.NewStore(cfg.StateFile, log)
	store.Load()

	// 6. Wallet addresses
	addresses, err := wallet.NewAddresses(cfg.WalletSeed, cfg.HathorNetwork)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init wallet")
	}

	// 7. External clients
	node := hathor.New(cfg.HathorNodeURL)
	twilio := messenger.NewTwilio(cfg.TwilioSID, cfg.TwilioToken, cfg.TwilioWhatsAppNumber, log)

	// 8. LLM providers
	var providers []provider.Provider
	if cfg.GeminiAPIKey != "" {
		providers = append(providers, gemini.New(cfg.GeminiAPIKey))
	}
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, openai.New(cfg.OpenAIAPIKey))
	}
	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, claude.New(cfg.AnthropicAPIKey))
	}
	var llm provider.Client
	if len(providers) > 0 {
		llm = provider.NewRouter(providers)
	} else {
		log.Warn().Msg("no provider API key configured: intent classification falls back to keywords and AI queries will be refused")
	}

	// 9. Classifier and bot
	classifier := intent.NewClassifier(llm, cfg.LLMModel, log)
	assistant := bot.New(store, addresses, classifier, llm, archive, cfg.LLMModel, cfg.CostPer100Tokens, log)

	// 10. HTTP handler
	tracer := otel.GetTracerProvider().Tracer("whatspay")
	handler := gateway.NewHandler(assistant, twilio, limiter, store, archive, tracer, version, log)

	// 11. Background jobs: deposit polling and state persistence run on
	// separate timers so a slow node never delays a save.
	jobCtx, cancelJobs := context.WithCancel(ctx)
	poller := deposit.NewPoller(store, node, twilio, cfg.DepositMaxAge, log)
	runner := worker.NewRunner(log)
	runner.Add("process_deposits", cfg.DepositPollInterval, poller.Tick)
	runner.Add("save_state", cfg.StateSaveInterval, func(context.Context) {
		if err := store.Save(); err != nil {
			log.Error().Err(err).Msg("failed to save state")
		}
	})
	runner.Start(jobCtx)

	// 12. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/", handler.HandleHealth)
	r.Get("/stats", handler.HandleStats)
	r.Post("/webhook", handler.HandleWebhook)

	// 13. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Port).Str("network", cfg.HathorNetwork).Msg("whatspay starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-quit
	log.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	cancelJobs()
	runner.Wait()

	if err := store.Save(); err != nil {
		log.Error().Err(err).Msg("failed to save state on shutdown")
	}
	log.Info().Msg("server stopped")
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	var out = os.Stdout
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if debug {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out})
	}
	return logger
}
