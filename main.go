package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/marketplace-listing-agent/agent/agents/chat"
	"github.com/tanpawarit/marketplace-listing-agent/agent/agents/description"
	"github.com/tanpawarit/marketplace-listing-agent/agent/agents/listing"
	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
	"github.com/tanpawarit/marketplace-listing-agent/agent/llm/provider"
	"github.com/tanpawarit/marketplace-listing-agent/agent/memory"
	"github.com/tanpawarit/marketplace-listing-agent/agent/pipeline"
	"github.com/tanpawarit/marketplace-listing-agent/agent/prompt"
	"github.com/tanpawarit/marketplace-listing-agent/agent/tool"
	configx "github.com/tanpawarit/marketplace-listing-agent/pkg/config"
	logx "github.com/tanpawarit/marketplace-listing-agent/pkg/logger"
	_ "github.com/tanpawarit/marketplace-listing-agent/pkg/logger/autoload"
	marketplacex "github.com/tanpawarit/marketplace-listing-agent/pkg/marketplace"
	postgresx "github.com/tanpawarit/marketplace-listing-agent/pkg/postgres"
	redisx "github.com/tanpawarit/marketplace-listing-agent/pkg/redis"
	scraperx "github.com/tanpawarit/marketplace-listing-agent/pkg/scraper"
	searchx "github.com/tanpawarit/marketplace-listing-agent/pkg/search"
	storagex "github.com/tanpawarit/marketplace-listing-agent/pkg/storage"
)

const (
	memoryBackendRedis    = "redis"
	memoryBackendUpstash  = "upstash"
	memoryBackendInMemory = "inmemory"
)

type AppConfig struct {
	MemoryBackend    string `envconfig:"MEMORY_BACKEND" split_words:"true" default:"redis"`
	DurableMemory    bool   `envconfig:"DURABLE_MEMORY" split_words:"true" default:"false"`
	MetricsAddr      string `envconfig:"METRICS_ADDR" split_words:"true" default:":9090"`
	PricingRule      string `envconfig:"PRICING_RULE" split_words:"true" default:"{median} * 0.97"`
	PhotoParallelism int    `envconfig:"PHOTO_PARALLELISM" split_words:"true" default:"4"`
	ScrapePages      int    `envconfig:"SCRAPE_PAGES" split_words:"true" default:"5"`
	SellerCredential string `envconfig:"SELLER_CREDENTIAL" split_words:"true"`
}

func (c AppConfig) Validate() error {
	switch c.MemoryBackend {
	case memoryBackendRedis, memoryBackendUpstash, memoryBackendInMemory:
	default:
		return fmt.Errorf("%w: unsupported memory backend=%q", contractx.ErrValidation, c.MemoryBackend)
	}
	if c.DurableMemory && c.MemoryBackend == memoryBackendUpstash {
		return fmt.Errorf("%w: durable memory needs an enumerable backend, not upstash", contractx.ErrValidation)
	}
	return nil
}

func main() {
	listingPath := flag.String("listing", "", "run one listing request from a JSON file")
	conversationID := flag.String("conversation", "", "conversation id for -say")
	say := flag.String("say", "", "send one chat turn")
	describe := flag.String("describe", "", "generate a description, hashtags and call to action for a product title")
	flag.Parse()

	logger := logx.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("APP")
	llmCfg := configx.MustNew[llmx.Config]("LLM")
	pipelineCfg := configx.MustNew[pipeline.Config]("PIPELINE")
	memoryCfg := configx.MustNew[memory.Config]("MEMORY")
	reconcileCfg := configx.MustNew[memory.ReconcileConfig]("RECONCILE")
	marketplaceCfg := configx.MustNew[marketplacex.Config]("MARKETPLACE")
	searchCfg := configx.MustNew[searchx.Config]("SEARCH")
	scraperCfg := configx.MustNew[scraperx.Config]("SCRAPER")
	storageCfg := configx.MustNew[storagex.Config]("STORAGE")
	validationRules := configx.MustNew[tool.ValidationRules]("VALIDATION")

	prompts := prompt.LoadPromptSet()
	limiter := provider.Limiter(*llmCfg)
	gateway := func(purpose llmx.Purpose) llmx.Gateway {
		gw, err := provider.New(ctx, *llmCfg, purpose, limiter)
		if err != nil {
			logger.Fatal().Err(err).Str("purpose", string(purpose)).Msg("build llm gateway")
		}
		return gw
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := pipeline.NewPrometheusMetrics(registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("register pipeline metrics")
	}
	metricsServer := &http.Server{
		Addr:              appCfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	store, ephemeral, closeMemory := buildMemory(ctx, *appCfg, *memoryCfg)
	defer closeMemory()

	// The reconciler owns its own cancellation scope and stops after the main work.
	reconcileCtx, stopReconcile := context.WithCancel(context.Background())
	reconcileDone := make(chan struct{})
	if appCfg.DurableMemory && reconcileCfg.Enabled && ephemeral != nil {
		db := postgresx.MustNew(*configx.MustNew[postgresx.Config]("POSTGRES"))
		defer db.Close()
		if err := postgresx.Ping(ctx, db); err != nil {
			logger.Fatal().Err(err).Msg("postgres ping")
		}
		durable, err := memory.NewDurableStore(db, memory.WithConfig(*memoryCfg))
		if err != nil {
			logger.Fatal().Err(err).Msg("build durable memory store")
		}
		if err := durable.Init(ctx); err != nil {
			logger.Fatal().Err(err).Msg("init durable memory store")
		}
		reconciler, err := memory.NewReconciler(ephemeral, durable)
		if err != nil {
			logger.Fatal().Err(err).Msg("build reconciler")
		}
		go func() {
			defer close(reconcileDone)
			_ = reconciler.Run(reconcileCtx, reconcileCfg.Interval)
		}()
	} else {
		close(reconcileDone)
	}

	// Clients are built once and shared by every run.
	objects := storagex.NewMemoryStorage(storageCfg.PublicBaseURL)
	searchClient := searchx.MustNew(*searchCfg, nil)
	fetcher := scraperx.NewFetcher(*scraperCfg, nil)
	marketplaceClient := marketplacex.MustNew(*marketplaceCfg, nil)

	rule, err := tool.ParsePricingRule(appCfg.PricingRule)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse pricing rule")
	}
	listingGateway := gateway(llmx.PurposeListing)

	tools := tool.NewRegistry()
	must := func(name string, t any, err error) {
		if err != nil {
			logger.Fatal().Err(err).Str("tool", name).Msg("build tool")
		}
		tools.MustRegister(name, t)
	}
	photo, err := tool.NewPhotoCorrection(tool.PassthroughCorrector{}, objects, appCfg.PhotoParallelism)
	must(tool.NamePhotoCorrection, photo, err)
	vision, err := tool.NewVision(gateway(llmx.PurposeVision), objects, prompts.Vision)
	must(tool.NameVision, vision, err)
	reverse, err := tool.NewReverseImageSearch(searchClient)
	must(tool.NameReverseImageSearch, reverse, err)
	scraper, err := tool.NewWebScraper(searchClient, fetcher, appCfg.ScrapePages)
	must(tool.NameWebScraper, scraper, err)
	market, err := tool.NewMarketAnalysis(listingGateway, prompts.Market, rule)
	must(tool.NameMarketAnalysis, market, err)
	refine, err := tool.NewRefineContent(listingGateway, prompts.Refine)
	must(tool.NameRefineContent, refine, err)
	audience, err := tool.NewAudienceDefinition(listingGateway, prompts.Audience)
	must(tool.NameAudienceDefinition, audience, err)
	caption, err := tool.NewCaption(listingGateway, prompts.Caption, validationRules.MaxHashtags)
	must(tool.NameCaption, caption, err)
	must(tool.NameValidation, tool.NewValidation(*validationRules), nil)
	publishing, err := tool.NewPublishing(marketplaceClient)
	must(tool.NamePublishing, publishing, err)

	pipelineOpts := append(pipelineCfg.Options(),
		pipeline.WithLogger(logx.Component("pipeline")),
		pipeline.WithMetrics(metrics),
	)
	listingAgent, err := listing.NewFromRegistry(tools, pipelineOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("build listing agent")
	}
	descriptionAgent, err := description.New(gateway(llmx.PurposeDescription), description.PromptsFrom(prompts),
		description.WithMaxHashtags(validationRules.MaxHashtags))
	if err != nil {
		logger.Fatal().Err(err).Msg("build description agent")
	}
	chatAgent, err := chat.New(gateway(llmx.PurposeChat), store, prompts.Chat, chat.WithEntryTTL(memoryCfg.TTL))
	if err != nil {
		logger.Fatal().Err(err).Msg("build chat agent")
	}

	logger.Info().
		Strs("stages", listingAgent.StageNames()).
		Str("llm_provider", llmCfg.Provider).
		Str("memory_backend", appCfg.MemoryBackend).
		Msg("agents ready")

	exit := 0
	switch {
	case *listingPath != "":
		if err := runListing(ctx, listingAgent, *listingPath, appCfg.SellerCredential); err != nil {
			logger.Error().Err(err).Msg("listing run failed")
			exit = 1
		}
	case *say != "":
		reply, err := chatAgent.NextTurn(ctx, *conversationID, *say)
		if err != nil {
			logger.Error().Err(err).Msg("chat turn failed")
			exit = 1
			break
		}
		fmt.Println(reply)
	case *describe != "":
		if err := runDescription(ctx, descriptionAgent, *describe); err != nil {
			logger.Error().Err(err).Msg("description failed")
			exit = 1
		}
	default:
		logger.Info().Msg("waiting for shutdown signal")
		<-ctx.Done()
	}

	stopReconcile()
	<-reconcileDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info().Msg("shutdown complete")
	if exit != 0 {
		os.Exit(exit)
	}
}

// buildMemory returns the chat store and, when the backend is enumerable, its
// ephemeral view for reconciliation.
func buildMemory(ctx context.Context, app AppConfig, cfg memory.Config) (memory.Store, memory.Ephemeral, func()) {
	opts := []memory.Option{memory.WithConfig(cfg)}

	switch app.MemoryBackend {
	case memoryBackendUpstash:
		upCfg := configx.MustNew[memory.UpstashConfig]("UPSTASH_REDIS")
		store, err := memory.NewUpstashStore(*upCfg, nil, opts...)
		if err != nil {
			log.Fatal().Err(err).Msg("build upstash memory store")
		}
		return store, nil, func() {}
	case memoryBackendInMemory:
		store := memory.NewInMemoryStore(opts...)
		return store, store, func() {}
	default:
		client := redisx.MustNew(ctx, *configx.MustNew[redisx.Config]("REDIS"))
		store, err := memory.NewRedisStore(client, opts...)
		if err != nil {
			log.Fatal().Err(err).Msg("build redis memory store")
		}
		return store, store, func() { _ = client.Close() }
	}
}

func runListing(ctx context.Context, agent *listing.Agent, path, credential string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read listing request: %w", err)
	}
	var req listing.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("decode listing request: %w", err)
	}
	req.Credential = credential

	res := agent.Run(ctx, req)
	for _, s := range res.Stages {
		event := log.Info()
		if s.Err != nil {
			event = log.Warn().Str("kind", string(s.Err.Kind)).Err(s.Err)
		}
		event.
			Str("stage", s.Name).
			Str("status", string(s.Status)).
			Int("attempts", s.Attempts).
			Dur("duration", s.Duration).
			Msg("stage report")
	}

	out, err := listing.OutcomeOf(res)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(out)
}

func runDescription(ctx context.Context, agent *description.Agent, title string) error {
	text, err := agent.GenerateDescription(ctx, description.Product{Title: strings.TrimSpace(title)})
	if err != nil {
		return err
	}
	extra, err := agent.Finalize(ctx, text)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(struct {
		Description string `json:"description"`
		description.Copy
	}{text, extra})
}
