package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"owly-api/internal/generation"
	"owly-api/internal/handlers/analyze"
	"owly-api/internal/identity"
	"owly-api/internal/intent"
	"owly-api/internal/middleware"
	"owly-api/internal/prompt"
	"owly-api/internal/ratelimit"
	"owly-api/internal/routers"
	"owly-api/internal/shared"
	"owly-api/internal/usage"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Optional .env for local runs, real env vars win
	_ = godotenv.Load()

	// Flags / ENV Variables
	writeDSN := flag.String("dsn", "", "Write vitess DSN")
	readDSN := flag.String("read-dsn", "", "Read vitess DSN")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")
	redisAddr := flag.String("redis-addr", "", "Redis host:port")
	debug := flag.Bool("debug", false, "Debug enabled")
	port := flag.String("port", shared.DefaultPort, "HTTP port")

	llmBaseURL := flag.String("llm-base-url", "https://api.openai.com", "OpenAI compatible base url")
	llmAPIKey := flag.String("llm-api-key", "", "Generation backend api key")
	llmModel := flag.String("llm-model", shared.DefaultModel, "Generation model")
	llmMaxTokens := flag.Int("llm-max-tokens", shared.DefaultMaxTokens, "Max output tokens")
	llmTemperature := flag.Float64("llm-temperature", shared.DefaultTemperature, "Sampling temperature")
	llmTimeout := flag.Duration("llm-timeout", shared.DefaultGenerationTimeout, "Generation timeout")

	rateLimit := flag.Int("rate-limit", shared.DefaultRateLimit, "Requests per caller per window")
	rateWindow := flag.Duration("rate-window", shared.DefaultRateWindow, "Rate limit window")
	rateLimitBackend := flag.String("rate-limit-backend", shared.RateLimitBackendMemory, "memory or redis")

	requireSnapshot := flag.Bool("require-snapshot", false, "Reject requests without a snapshot object")
	smallTalkPhrases := flag.String("small-talk-phrases", "", "Comma separated small talk phrases")
	tone := flag.String("tone", string(prompt.TonePersonaWarm), "persona-warm or analyst-strict")
	maxSentences := flag.Int("max-sentences", prompt.DefaultPolicy().MaxSentences, "Max sentences per answer, 0 for no limit")
	forbidMarkdown := flag.Bool("forbid-markdown", true, "Forbid markdown in answers")
	singleParagraph := flag.Bool("single-paragraph", true, "Answer in a single paragraph")

	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	// Write DB init
	writeDB, err := sql.Open("mysql", *writeDSN)
	if err != nil {
		panic(fmt.Sprintf("failed initializing sqlClient: %s", err))
	}
	err = writeDB.Ping()
	if err != nil {
		panic(fmt.Sprintf("failed ping to sql db: %s", err))
	}

	// Read db init
	readDB, err := sql.Open("mysql", *readDSN)
	if err != nil {
		panic(fmt.Sprintf("failed initializing readSqlClient: %s", err))
	}
	err = readDB.Ping()
	if err != nil {
		panic(fmt.Sprintf("failed to ping read replica sql db: %s", err))
	}

	// Load Redis connection
	redisClient := redis.NewClient(&redis.Options{
		Addr:     *redisAddr,
		Password: "",
		DB:       0,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		panic(fmt.Sprintf("failed ping to redis db: %s", err))
	}

	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if writeDB != nil {
			_ = writeDB.Close()
		}
		if readDB != nil {
			_ = readDB.Close()
		}
	}()

	var logger *zap.Logger
	if !*debug {
		logger, err = zap.NewProduction()
		if err != nil {
			panic("Failed init logger")
		}
	}
	if *debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic("Failed init logger")
		}
	}
	log := logger.Sugar()
	defer func() {
		_ = log.Sync()
	}()

	// Pipeline components
	var limiter ratelimit.Admitter
	switch *rateLimitBackend {
	case shared.RateLimitBackendRedis:
		limiter = ratelimit.NewRedisLimiter(redisClient, *rateLimit, *rateWindow)
	case shared.RateLimitBackendMemory:
		memLimiter := ratelimit.NewLimiter(*rateLimit, *rateWindow, log)
		memLimiter.StartSweeper()
		defer memLimiter.Close()
		limiter = memLimiter
	default:
		panic(fmt.Sprintf("unknown rate limit backend %q", *rateLimitBackend))
	}

	composer, err := prompt.NewComposer(prompt.Policy{
		Tone:            prompt.Tone(*tone),
		MaxSentences:    *maxSentences,
		ForbidMarkdown:  *forbidMarkdown,
		SingleParagraph: *singleParagraph,
		ScopeGuard:      true,
	})
	if err != nil {
		panic(err)
	}

	generator := generation.NewHTTPClient(generation.Config{
		BaseURL: *llmBaseURL,
		APIKey:  *llmAPIKey,
		Model:   *llmModel,
		Timeout: *llmTimeout,
	}, log)

	recorder := usage.NewRecorder(log, writeDB)
	recorder.Start(shared.BucketFlushInterval)
	defer recorder.Shutdown()

	analyzeHandler := analyze.NewAnalyzeHandler(
		limiter,
		intent.NewClassifier(shared.SplitList(*smallTalkPhrases)),
		composer,
		generator,
		recorder,
		log,
		analyze.Config{
			RequireSnapshot: *requireSnapshot,
			MaxTokens:       *llmMaxTokens,
			Temperature:     float32(*llmTemperature),
		},
	)
	callerMiddleware := middleware.NewCallerMiddleware(identity.NewKeyVerifier(readDB, redisClient, log))

	e := echo.New()
	e.HideBanner = true
	routers.RegisterBaseRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if !ok || apiKey == "" {
				return c.String(401, "Missing or invalid API key")
			}

			if *metricsAPIKey == "" || apiKey != *metricsAPIKey {
				return c.String(401, "Unauthorized API key")
			}
			return next(c)
		}
	})
	base := e.Group("")
	base.Use(emw.CORS())
	base.Use(middleware.NewTrackMiddleware(log))
	base.Use(middleware.NewRecoverMiddleware(log))

	// Register routes
	routers.RegisterAnalyzeRoutes(base, analyzeHandler, callerMiddleware)

	log.Infow("Starting owly api",
		"port", *port,
		"model", generator.Model(),
		"rate_limit", *rateLimit,
		"rate_window", rateWindow.String(),
		"rate_limit_backend", *rateLimitBackend,
		"require_snapshot", *requireSnapshot,
	)

	go func() {
		if err := e.Start(":" + *port); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Errorw("Failed graceful shutdown", "error", err)
	}
}
