// container.go
package main

import (
	"context"
	"time"

	"github.com/break1145/GraphDo/pkg/agent"
	"github.com/break1145/GraphDo/pkg/agent/agentapi"
	"github.com/break1145/GraphDo/pkg/ai/extract"
	"github.com/break1145/GraphDo/pkg/ai/llm"
	"github.com/break1145/GraphDo/pkg/ai/llm/memoryx"
	"github.com/break1145/GraphDo/pkg/ai/llm/memoryx/memoryxinfra"
	aiopenai "github.com/break1145/GraphDo/pkg/ai/providers/openai"
	"github.com/break1145/GraphDo/pkg/config"
	"github.com/break1145/GraphDo/pkg/logx"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/break1145/GraphDo/pkg/memory/memoryapi"
	"github.com/break1145/GraphDo/pkg/memory/memoryinfra"
	"github.com/break1145/GraphDo/pkg/memory/memorysrv"
	"github.com/break1145/GraphDo/pkg/metrics"
	"github.com/break1145/GraphDo/pkg/search"
	"github.com/jmoiron/sqlx"
	"github.com/openai/openai-go/v3/option"
	"github.com/redis/go-redis/v9"
)

// pinger is implemented by every store and ledger backend
type pinger interface {
	Ping(ctx context.Context) error
}

// Container holds all application dependencies
type Container struct {
	// Config
	Config *config.Config

	// Infrastructure
	DB       *sqlx.DB
	SQLStore *memoryinfra.SQLStore
	Redis    *redis.Client
	Store    memory.Store
	Ledger   memoryx.Ledger
	Model    llm.LLM
	Searcher search.Searcher

	// Services
	Controller    *agent.Controller
	MemoryService *memorysrv.MemoryService

	// API Handlers
	AgentHandlers  *agentapi.AgentHandlers
	MemoryHandlers *memoryapi.MemoryHandlers
}

// NewContainer initializes the dependency injection container
func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing dependency container...")

	c := &Container{
		Config: cfg,
	}

	c.initInfrastructure()
	c.initServices()

	logx.Info("✅ Container initialized successfully")
	return c
}

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. Record store
	c.Store = memoryinfra.NewInstrumentedStore(c.openStore(ctx))

	// 2. Conversation ledger
	c.initLedger(ctx)

	// 3. Generation model
	c.initModel()

	// 4. Web search (optional)
	if c.Config.Search.Enabled {
		c.Searcher = search.NewTavilySearcher(
			c.Config.Search.TavilyAPIKey,
			search.WithURL(c.Config.Search.TavilyURL),
			search.WithMaxResults(c.Config.Search.MaxResults),
			search.WithCacheTTL(c.Config.Search.CacheTTL),
		)
		logx.Info("✅ Web search enrichment enabled")
	}

	logx.Info("✅ Infrastructure initialized")
}

// openStore connects the configured backend, falling back to the volatile
// store only when STORE_FALLBACK_MEMORY is set
func (c *Container) openStore(ctx context.Context) memory.Store {
	dbCfg := c.Config.Database

	if dbCfg.Backend == config.StoreBackendMemory {
		logx.Warn("⚠️  Using in-memory record store (data is lost on restart)")
		return memoryinfra.NewInMemoryStore()
	}

	store, db, err := memoryinfra.Open(ctx, dbCfg)
	if err == nil {
		c.DB = db
		c.SQLStore = store
		logx.Infof("✅ Record store connected (%s)", dbCfg.Backend)
		return store
	}

	if !dbCfg.FallbackToMemory {
		logx.Fatalf("Failed to open %s record store: %v", dbCfg.Backend, err)
	}
	logx.Warnf("⚠️  %s record store unavailable (%v), falling back to in-memory store", dbCfg.Backend, err)
	return memoryinfra.NewInMemoryStore()
}

func (c *Container) initLedger(ctx context.Context) {
	if c.Config.Ledger.Backend != config.LedgerBackendRedis {
		c.Ledger = memoryx.NewInMemoryLedger()
		logx.Warn("⚠️  Using in-memory conversation ledger (threads are lost on restart)")
		return
	}

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(ctx).Result(); err != nil {
		logx.Fatalf("Failed to connect to Redis: %v (Redis is required for LEDGER_BACKEND=redis)", err)
	}
	c.Ledger = memoryxinfra.NewRedisLedger(c.Redis, c.Config.Ledger.TTL)
	logx.Info("✅ Redis connected")
}

func (c *Container) initModel() {
	llmCfg := c.Config.LLM

	opts := []option.RequestOption{option.WithRequestTimeout(llmCfg.Timeout)}
	if llmCfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(llmCfg.BaseURL))
	}
	provider := aiopenai.NewOpenAIProvider(llmCfg.APIKey, opts...)

	c.Model = llm.NewClient(provider, modelDefaults(llmCfg)...)
	logx.Infof("✅ Generation model configured (%s)", llmCfg.Model)
}

// modelDefaults leaves temperature to the provider unless it is configured
func modelDefaults(cfg config.LLMConfig) []llm.Option {
	opts := []llm.Option{llm.WithModel(cfg.Model)}
	if cfg.Temperature != nil {
		opts = append(opts, llm.WithTemperature(float32(*cfg.Temperature)))
	}
	return opts
}

func (c *Container) initServices() {
	logx.Info("🗄️  Initializing services and handlers...")

	opts := []agent.Option{
		agent.WithMaxReconciles(c.Config.Agent.MaxReconciles),
		agent.WithTurnTimeout(c.Config.Agent.TurnTimeout),
		agent.WithLocale(c.Config.Agent.Locale),
	}
	if c.Searcher != nil {
		opts = append(opts, agent.WithSearcher(c.Searcher))
	}

	c.Controller = agent.NewController(
		c.Model,
		extract.NewExtractor(c.Model),
		c.Store,
		c.Ledger,
		opts...,
	)
	c.MemoryService = memorysrv.NewMemoryService(c.Store)

	// --- API Handlers ---
	c.AgentHandlers = agentapi.NewAgentHandlers(c.Controller, c.Config.Agent.TurnTimeout)
	c.MemoryHandlers = memoryapi.NewMemoryHandlers(c.MemoryService)

	logx.Info("✅ All services and handlers initialized")
}

// StartBackgroundServices starts background workers
func (c *Container) StartBackgroundServices(ctx context.Context) {
	if c.SQLStore == nil {
		return
	}
	logx.Info("🔄 Starting background services...")

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			metrics.UpdateDBPoolStats(c.SQLStore.Stats())
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	logx.Info("✅ DB pool metrics collector started")
}

// Cleanup closes all connections and stops workers
func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup completed")
}

// checks returns the named dependencies probed by /health
func (c *Container) checks() map[string]pinger {
	out := map[string]pinger{"store": c.Store}
	if p, ok := c.Ledger.(pinger); ok {
		out["ledger"] = p
	}
	return out
}
