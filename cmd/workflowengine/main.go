// Command workflowengine runs the combined server, worker pool, and sweeper
// process: one binary owns the HTTP API (§6), the claimed-execution worker
// pool (§5), and the periodic auto-trigger sweep (§4.4).
//
// Grounded on the teacher's cmd/tarsy/main.go wiring shape (flag + godotenv +
// gin.SetMode + sequential service construction), generalized from TARSy's
// session services to this engine's catalog/queue/workflow/sweeper stack.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ctihunt/workflowengine/pkg/api"
	"github.com/ctihunt/workflowengine/pkg/catalog"
	"github.com/ctihunt/workflowengine/pkg/config"
	"github.com/ctihunt/workflowengine/pkg/database"
	"github.com/ctihunt/workflowengine/pkg/events"
	"github.com/ctihunt/workflowengine/pkg/llmgateway"
	"github.com/ctihunt/workflowengine/pkg/queue"
	"github.com/ctihunt/workflowengine/pkg/similarity"
	"github.com/ctihunt/workflowengine/pkg/stages"
	"github.com/ctihunt/workflowengine/pkg/stages/extract"
	"github.com/ctihunt/workflowengine/pkg/sweeper"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	}

	gin.SetMode(getEnv("GIN_MODE", "release"))
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(ctx, database.Config{
		DSN:             getEnv("DATABASE_URL", "postgres://localhost:5432/workflowengine"),
		MaxConns:        int32(getEnvInt("DB_MAX_CONNS", 20)),
		MinConns:        int32(getEnvInt("DB_MIN_CONNS", 2)),
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	})
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer dbClient.Pool.Close()
	log.Println("connected to PostgreSQL")

	store := catalog.NewPostgresStore(dbClient.Pool)
	simIndex := similarity.NewPostgresIndex(dbClient.Pool)
	publisher := events.NewPublisher(dbClient.Pool)

	registry, err := config.NewRegistry(filepath.Join(*configDir, "workflow.yaml"))
	if err != nil {
		log.Fatalf("load workflow config: %v", err)
	}

	gw := buildGateway()

	executors := []workflow.StageExecutor{
		&stages.OSDetect{Gateway: gw},
		&stages.JunkFilter{Gateway: gw},
		&stages.Rank{Gateway: gw},
		&extract.Supervisor{
			Gateway: gw,
			SubAgents: []extract.SubAgent{
				&extract.CmdlineExtract{Gateway: gw},
				&extract.ProcTreeExtract{Gateway: gw},
				&extract.HuntQueriesExtract{Gateway: gw},
			},
			QA: &extract.QA{Gateway: gw},
		},
		&stages.SigmaGen{Gateway: gw, CandidatesPerRun: getEnvInt("SIGMA_CANDIDATES_PER_RUN", 5)},
		&stages.SimilarityMatch{Gateway: gw, Index: simIndex},
	}

	deadline := time.Duration(getEnvInt("EXECUTION_DEADLINE_SECONDS", 1800)) * time.Second

	redisClient := redis.NewClient(&redis.Options{Addr: getEnv("REDIS_ADDR", "localhost:6379")})
	broker := queue.NewRedisBroker(redisClient)

	engine := workflow.New(store, broker, executors, registry, logger, deadline).WithNotifier(publisher)

	workerCount := getEnvInt("WORKER_COUNT", 4)
	orphanInterval := time.Duration(getEnvInt("ORPHAN_RECLAIM_INTERVAL_SECONDS", 60)) * time.Second
	pool := queue.NewPool(getEnv("PROCESS_ID", "workflowengine"), broker, engine, workerCount, store, orphanInterval)
	pool.Start(ctx)
	defer pool.Stop()

	sweep := sweeper.New(store, store, engine, registry, logger)
	if err := sweep.Start(ctx, getEnv("SWEEP_SCHEDULE", "*/5 * * * *")); err != nil {
		log.Fatalf("start sweeper: %v", err)
	}
	defer sweep.Stop()

	server := api.NewServer(engine)
	server.SetPool(pool)
	server.Router().GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := ":" + getEnv("HTTP_PORT", "8080")
	go func() {
		log.Printf("listening on %s", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

// buildGateway assembles the LLM Gateway from whichever provider credentials
// are present in the environment (§4.2 "LLM Gateway").
func buildGateway() llmgateway.Gateway {
	var backends []llmgateway.Backend
	limits := map[string]llmgateway.Limits{}

	defaultModel := getEnv("LLM_DEFAULT_MODEL", "claude-3-5-sonnet-20241022")

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		b := llmgateway.NewAnthropicBackend(apiKey, defaultModel)
		backends = append(backends, b)
		limits[b.Name()] = llmgateway.DefaultLimits()
	}

	if getEnv("BEDROCK_ENABLED", "") == "true" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			log.Fatalf("load AWS config for bedrock: %v", err)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		b := llmgateway.NewBedrockBackend(client, getEnv("BEDROCK_DEFAULT_MODEL", defaultModel))
		backends = append(backends, b)
		limits[b.Name()] = llmgateway.DefaultLimits()
	}

	if baseURL := os.Getenv("EMBEDDING_BASE_URL"); baseURL != "" {
		b, err := llmgateway.NewOpenAICompatBackend("embedding", baseURL, os.Getenv("EMBEDDING_API_KEY"), getEnv("EMBEDDING_MODEL", "text-embedding-3-small"))
		if err != nil {
			log.Fatalf("build embedding backend: %v", err)
		}
		backends = append(backends, b)
		limits[b.Name()] = llmgateway.DefaultLimits()
	}

	if len(backends) == 0 {
		log.Fatal("no LLM backend configured: set ANTHROPIC_API_KEY, BEDROCK_ENABLED=true, or EMBEDDING_BASE_URL")
	}

	requestTimeout := time.Duration(getEnvInt("LLM_REQUEST_TIMEOUT_SECONDS", 60)) * time.Second
	return llmgateway.New(backends, limits, requestTimeout)
}
