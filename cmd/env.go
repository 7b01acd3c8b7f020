package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/bulk"
	"github.com/sells-group/prospect-enricher/internal/config"
	"github.com/sells-group/prospect-enricher/internal/contacts"
	"github.com/sells-group/prospect-enricher/internal/cost"
	"github.com/sells-group/prospect-enricher/internal/domain"
	"github.com/sells-group/prospect-enricher/internal/enrich"
	"github.com/sells-group/prospect-enricher/internal/extract"
	"github.com/sells-group/prospect-enricher/internal/icebreaker"
	"github.com/sells-group/prospect-enricher/internal/importjob"
	"github.com/sells-group/prospect-enricher/internal/lease"
	"github.com/sells-group/prospect-enricher/internal/llm"
	"github.com/sells-group/prospect-enricher/internal/scrape"
	"github.com/sells-group/prospect-enricher/internal/store"
	anthropicpkg "github.com/sells-group/prospect-enricher/pkg/anthropic"
	"github.com/sells-group/prospect-enricher/pkg/firecrawl"
	"github.com/sells-group/prospect-enricher/pkg/gemini"
	"github.com/sells-group/prospect-enricher/pkg/jina"
	"github.com/sells-group/prospect-enricher/pkg/perplexity"
	"github.com/sells-group/prospect-enricher/pkg/rdap"
	"github.com/sells-group/prospect-enricher/pkg/traffic"
)

// appEnv holds the store and whichever pipeline pieces a command asked for.
// Orchestrator and Bulk are nil unless the enrichment clients were built.
type appEnv struct {
	Store        store.Store
	Tables       *config.Tables
	Validator    *domain.Validator
	Orchestrator *enrich.Orchestrator
	Bulk         *bulk.Coordinator
	Reconciler   *bulk.Reconciler
	Imports      *importjob.Runner
	Costs        *cost.Ledger
}

// Close logs accumulated LLM spend and releases resources held by the
// environment.
func (e *appEnv) Close() {
	if e.Costs != nil {
		e.Costs.Log()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "enricher.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func loadTables() (*config.Tables, error) {
	if cfg.TablesPath == "" {
		return config.DefaultTables(), nil
	}
	t, err := config.LoadTables(cfg.TablesPath)
	if err != nil {
		return nil, eris.Wrap(err, "load tables")
	}
	return t, nil
}

// initBase opens and migrates the store and builds the import runner, which
// needs no LLM keys. Callers should defer env.Close().
func initBase(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate("import"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	tables, err := loadTables()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &appEnv{
		Store:      st,
		Tables:     tables,
		Validator:  domain.NewValidator(tables),
		Reconciler: bulk.NewReconciler(st),
	}
	env.Imports = importjob.NewRunner(st, env.Validator, initTraffic(), initScheduler(), importjob.Config{
		BatchSize:      cfg.Import.BatchSize,
		Budget:         cfg.Import.Budget(),
		FlushEvery:     cfg.Import.FlushEvery,
		TrafficTimeout: time.Duration(cfg.Traffic.TimeoutSecs) * time.Second,
		Rates: importjob.Rates{
			IdentifyRate:       cfg.Import.IdentifyRate,
			LeadConversionRate: cfg.Import.LeadConversionRate,
			AvgDealValue:       cfg.Import.AvgDealValue,
		},
		MinTrafficProspect: cfg.Import.MinTrafficProspect,
	})
	return env, nil
}

// initEnv is initBase plus every enrichment client, the orchestrator, and
// the bulk coordinator.
func initEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate("enrichment"); err != nil {
		return nil, err
	}
	env, err := initBase(ctx)
	if err != nil {
		return nil, err
	}

	grounded, err := initGrounded(ctx, env.Tables)
	if err != nil {
		env.Close()
		return nil, err
	}
	rates := cfg.Cost
	if len(rates.Models) == 0 {
		rates = cost.DefaultRates()
	}
	calc := cost.NewCalculator(rates)
	env.Costs = cost.NewLedger()
	grounded = cost.NewMeter(grounded, cfg.LLM.GroundedProvider, calc, env.Costs)
	extractLLM := cost.NewMeter(
		llm.NewAnthropic(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.ExtractModel, cfg.Anthropic.MaxTokens),
		"anthropic", calc, env.Costs,
	)

	links := scrape.NewLinkExtractor(env.Tables.SocialHosts)
	direct := scrape.NewLocalScraper(cfg.Fetch.UserAgent, links)

	acqOpts := []scrape.AcquirerOption{scrape.WithGrounded(grounded)}
	if cfg.Jina.Key != "" {
		jc := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
		acqOpts = append(acqOpts, scrape.WithJina(scrape.NewJinaAdapter(jc, env.Tables.SocialHosts, cfg.Fetch.PerURLTimeout())))
	} else {
		zap.L().Info("jina key not set, reader fallback disabled")
	}
	if cfg.Firecrawl.Key != "" {
		fc := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
		acqOpts = append(acqOpts, scrape.WithFirecrawl(scrape.NewFirecrawlAdapter(fc, env.Tables.SocialHosts, cfg.Fetch.PerURLTimeout())))
	}
	acquirer := scrape.NewAcquirer(direct, scrape.AcquirerConfig{
		Paths:  cfg.Fetch.Paths,
		PerURL: cfg.Fetch.PerURLTimeout(),
		Budget: cfg.Fetch.Budget(),
	}, acqOpts...)

	limit := cfg.Contacts.MaxPerProspect
	if limit <= 0 {
		limit = contacts.DefaultCap
	}

	leases := lease.NewStoreLease(env.Store)
	env.Orchestrator = enrich.New(enrich.Deps{
		Store:      env.Store,
		Lease:      leases,
		Validator:  env.Validator,
		Acquirer:   acquirer,
		Social:     scrape.NewSocialAugmenter(direct, env.Tables.SocialHosts, cfg.Fetch.SocialTimeout()),
		Extractor:  extract.NewExtractor(extractLLM, env.Tables, cfg.Extract.WebsiteChars, cfg.Extract.SocialChars),
		Search:     extract.NewSearchFinder(grounded, rdap.NewClient(), env.Tables.LowValueDomains, cfg.Enrich.SearchQueryDelay()),
		Persister:  contacts.NewPersister(env.Store, contacts.RulesFromTables(env.Tables), limit),
		Icebreaker: icebreaker.NewGenerator(grounded),
	}, enrich.Config{
		Timeout:       cfg.Enrich.ProspectTimeout(),
		LeaseTTL:      cfg.Enrich.LeaseTTL(),
		SocialDefault: cfg.Enrich.SocialScrapingDefault,
	})
	env.Bulk = bulk.NewCoordinator(env.Store, leases, env.Orchestrator, bulk.Config{
		MinDelay:    time.Duration(cfg.Bulk.MinDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Bulk.MaxDelayMs) * time.Millisecond,
		MaxParallel: cfg.Bulk.MaxParallel,
		BufferSize:  cfg.Bulk.EventBufferSize,
	})

	zap.L().Info("enrichment pipeline ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("grounded_provider", cfg.LLM.GroundedProvider),
		zap.String("extract_model", cfg.Anthropic.ExtractModel),
		zap.Bool("firecrawl", cfg.Firecrawl.Key != ""),
	)
	return env, nil
}

// initGrounded builds the web-search-grounded client used by the acquisition
// fallback and the search finder.
func initGrounded(ctx context.Context, tables *config.Tables) (llm.Client, error) {
	switch cfg.LLM.GroundedProvider {
	case "perplexity":
		pc := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		return llm.NewPerplexity(pc, tables.LowValueDomains), nil
	default:
		gc, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:  cfg.Gemini.Key,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
		})
		if err != nil {
			return nil, eris.Wrap(err, "init gemini")
		}
		return llm.NewGemini(gc, cfg.Gemini.Model), nil
	}
}

// initTraffic returns nil without a key, so imports use the manual column.
func initTraffic() traffic.Client {
	if cfg.Traffic.Key == "" {
		return nil
	}
	return traffic.NewClient(cfg.Traffic.Key, cfg.Traffic.BaseURL,
		traffic.WithTimeout(time.Duration(cfg.Traffic.TimeoutSecs)*time.Second))
}

func initScheduler() importjob.Scheduler {
	switch cfg.Import.Scheduler {
	case "http":
		return importjob.NewHTTPScheduler(cfg.Import.ContinuationURL, cfg.Import.ContinuationToken)
	default:
		return importjob.NoopScheduler{}
	}
}
