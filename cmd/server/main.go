// Command server boots the conversational knowledge-graph HTTP API: it
// wires a graph store, vector index, and LLM adapter into the chat
// pipeline and deferred processor, then serves its endpoints.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"convograph/internal/chatpipeline"
	"convograph/internal/config"
	"convograph/internal/httpapi"
	"convograph/internal/llm"
	"convograph/internal/observability"
	"convograph/internal/processor"
	"convograph/internal/store"
	"convograph/internal/store/memstore"
	"convograph/internal/store/postgres"
	"convograph/internal/vectorindex"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	graphStore, err := newGraphStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("construct graph store: %v", err)
	}
	defer graphStore.Close()

	llmAdapter := llm.NewAnthropic(cfg.LLM.APIKey, cfg.LLM.ChatModel)

	vectorAdapter, err := newVectorAdapter(ctx, cfg)
	if err != nil {
		log.Fatalf("construct vector index: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	pipeline := chatpipeline.New(graphStore, llmAdapter, vectorAdapter)
	proc := processor.NewWithRedisLock(graphStore, llmAdapter, cfg.Processor.IdleThreshold, cfg.Processor.BatchSize, redisClient, cfg.Processor.LockKey, cfg.Processor.LockTTL)
	server := httpapi.NewServer(pipeline, proc, graphStore, vectorAdapter)

	go runProcessorTicker(ctx, proc, cfg.Processor.IdleThreshold)

	addr := cfg.Host + ":" + portString(cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: server}

	go func() {
		log.Printf("listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	} else {
		log.Printf("server stopped")
	}
}

// newGraphStore selects memstore or postgres per cfg.Backend, mirroring the
// teacher's persistence/databases.NewManager backend switch.
func newGraphStore(ctx context.Context, cfg config.StoreConfig) (store.GraphStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return memstore.New(), nil
	case "postgres", "pg":
		pool, err := postgres.OpenPool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return postgres.New(ctx, pool)
	default:
		log.Fatalf("unsupported store backend: %s", cfg.Backend)
		return nil, nil
	}
}

// newVectorAdapter selects memory, qdrant, or none per cfg.Vector.Backend.
// The returned *vectorindex.Adapter is nil when vector recall is disabled,
// which the chat pipeline and httpapi treat as "no semantic recall".
func newVectorAdapter(ctx context.Context, cfg *config.Config) (*vectorindex.Adapter, error) {
	var index vectorindex.Index
	switch cfg.Vector.Backend {
	case "", "memory":
		index = vectorindex.NewMemory()
	case "none", "disabled":
		return nil, nil
	case "qdrant":
		q, err := vectorindex.NewQdrant(ctx, vectorindex.QdrantConfig{
			Host:       cfg.Vector.Host,
			Port:       cfg.Vector.Port,
			UseTLS:     cfg.Vector.UseTLS,
			APIKey:     cfg.Vector.APIKey,
			Collection: cfg.Vector.Collection,
			Dimensions: cfg.Vector.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		index = q
	default:
		log.Fatalf("unsupported vector backend: %s", cfg.Vector.Backend)
	}

	embedder := llm.NewHTTPEmbedder(cfg.LLM.EmbeddingHost, cfg.LLM.EmbeddingModel, cfg.LLM.APIKey)
	return vectorindex.NewAdapter(index, embedder), nil
}

func portString(p int) string {
	if p <= 0 {
		p = 8080
	}
	return strconv.Itoa(p)
}

func runProcessorTicker(ctx context.Context, proc *processor.Processor, idleThreshold time.Duration) {
	interval := idleThreshold
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := proc.Run(ctx); err != nil {
				log.Printf("processor tick: %v", err)
			}
		}
	}
}
