package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/prospect-enricher/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Contacts   ContactsConfig   `yaml:"contacts" mapstructure:"contacts"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Bulk       BulkConfig       `yaml:"bulk" mapstructure:"bulk"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
	Traffic    TrafficConfig    `yaml:"traffic" mapstructure:"traffic"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Cost       cost.Rates       `yaml:"cost" mapstructure:"cost"`
	TablesPath string           `yaml:"tables_path" mapstructure:"tables_path"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings used for contact extraction.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	ExtractModel string `yaml:"extract_model" mapstructure:"extract_model"`
	MaxTokens    int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Gemini API settings used for grounded search.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader settings (acquisition fallback only).
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FirecrawlConfig holds Firecrawl scrape API settings. The stage is paid and
// runs only when a key is set.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// LLMConfig selects providers per call type.
type LLMConfig struct {
	// GroundedProvider answers web-search-grounded prompts: "gemini" or "perplexity".
	GroundedProvider string `yaml:"grounded_provider" mapstructure:"grounded_provider"`
}

// FetchConfig configures website content acquisition.
type FetchConfig struct {
	PerURLTimeoutSecs int      `yaml:"per_url_timeout_secs" mapstructure:"per_url_timeout_secs"`
	BudgetSecs        int      `yaml:"budget_secs" mapstructure:"budget_secs"`
	SocialTimeoutSecs int      `yaml:"social_timeout_secs" mapstructure:"social_timeout_secs"`
	UserAgent         string   `yaml:"user_agent" mapstructure:"user_agent"`
	Paths             []string `yaml:"paths" mapstructure:"paths"`
}

// PerURLTimeout returns the per-URL fetch timeout.
func (c FetchConfig) PerURLTimeout() time.Duration {
	return time.Duration(c.PerURLTimeoutSecs) * time.Second
}

// Budget returns the global acquisition budget.
func (c FetchConfig) Budget() time.Duration {
	return time.Duration(c.BudgetSecs) * time.Second
}

// SocialTimeout returns the social page fetch timeout.
func (c FetchConfig) SocialTimeout() time.Duration {
	return time.Duration(c.SocialTimeoutSecs) * time.Second
}

// ExtractConfig configures the contact extractor prompt budgets.
type ExtractConfig struct {
	WebsiteChars int `yaml:"website_chars" mapstructure:"website_chars"`
	SocialChars  int `yaml:"social_chars" mapstructure:"social_chars"`
}

// ContactsConfig configures contact persistence.
type ContactsConfig struct {
	MaxPerProspect int `yaml:"max_per_prospect" mapstructure:"max_per_prospect"`
}

// EnrichConfig configures the per-prospect orchestrator.
type EnrichConfig struct {
	ProspectTimeoutSecs   int `yaml:"prospect_timeout_secs" mapstructure:"prospect_timeout_secs"`
	LeaseTTLSecs          int `yaml:"lease_ttl_secs" mapstructure:"lease_ttl_secs"`
	SearchQueryDelayMs    int `yaml:"search_query_delay_ms" mapstructure:"search_query_delay_ms"`
	// SocialScrapingDefault applies when the social_scraping_enabled setting is unset.
	SocialScrapingDefault bool `yaml:"social_scraping_default" mapstructure:"social_scraping_default"`
}

// ProspectTimeout returns the wall-clock bound on a single prospect.
func (c EnrichConfig) ProspectTimeout() time.Duration {
	return time.Duration(c.ProspectTimeoutSecs) * time.Second
}

// LeaseTTL returns how long a lease is honored before it is considered stale.
func (c EnrichConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSecs) * time.Second
}

// SearchQueryDelay returns the pause between single-path search queries.
func (c EnrichConfig) SearchQueryDelay() time.Duration {
	return time.Duration(c.SearchQueryDelayMs) * time.Millisecond
}

// BulkConfig configures the bulk job coordinator.
type BulkConfig struct {
	MinDelayMs      int `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs      int `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	MaxParallel     int `yaml:"max_parallel" mapstructure:"max_parallel"`
	StaleLeaseMins  int `yaml:"stale_lease_mins" mapstructure:"stale_lease_mins"`
	EventBufferSize int `yaml:"event_buffer_size" mapstructure:"event_buffer_size"`
}

// ImportConfig configures the chunked import runner.
type ImportConfig struct {
	BatchSize          int     `yaml:"batch_size" mapstructure:"batch_size"`
	BudgetSecs         int     `yaml:"budget_secs" mapstructure:"budget_secs"`
	FlushEvery         int     `yaml:"flush_every" mapstructure:"flush_every"`
	Scheduler          string  `yaml:"scheduler" mapstructure:"scheduler"`
	ContinuationURL    string  `yaml:"continuation_url" mapstructure:"continuation_url"`
	ContinuationToken  string  `yaml:"continuation_token" mapstructure:"continuation_token"`
	IdentifyRate       float64 `yaml:"identify_rate" mapstructure:"identify_rate"`
	LeadConversionRate float64 `yaml:"lead_conversion_rate" mapstructure:"lead_conversion_rate"`
	AvgDealValue       float64 `yaml:"avg_deal_value" mapstructure:"avg_deal_value"`
	MinTrafficProspect int64   `yaml:"min_traffic_prospect" mapstructure:"min_traffic_prospect"`
}

// Budget returns the per-invocation execution budget.
func (c ImportConfig) Budget() time.Duration {
	return time.Duration(c.BudgetSecs) * time.Second
}

// TrafficConfig holds the traffic analytics API settings.
type TrafficConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TemporalConfig configures the Temporal import worker.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	ReadRPS     float64  `yaml:"read_rps" mapstructure:"read_rps"`
	ReadBurst   int      `yaml:"read_burst" mapstructure:"read_burst"`
	WriteRPS    float64  `yaml:"write_rps" mapstructure:"write_rps"`
	WriteBurst  int      `yaml:"write_burst" mapstructure:"write_burst"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"anthropic.key", "gemini.key", "perplexity.key", "jina.key", "firecrawl.key", "traffic.key", "import.continuation_token", "import.continuation_url"} {
		_ = v.BindEnv(key)
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enricher.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_rps", 20.0)
	v.SetDefault("server.read_burst", 40)
	v.SetDefault("server.write_rps", 2.0)
	v.SetDefault("server.write_burst", 5)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("anthropic.extract_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("llm.grounded_provider", "gemini")
	v.SetDefault("fetch.per_url_timeout_secs", 8)
	v.SetDefault("fetch.budget_secs", 60)
	v.SetDefault("fetch.social_timeout_secs", 10)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; ProspectEnricher/1.0)")
	v.SetDefault("fetch.paths", []string{"/contact", "/contact-us", "/about", "/about-us", "/team", "/our-team", "/"})
	v.SetDefault("extract.website_chars", 15000)
	v.SetDefault("extract.social_chars", 3000)
	v.SetDefault("contacts.max_per_prospect", 25)
	v.SetDefault("enrich.prospect_timeout_secs", 90)
	v.SetDefault("enrich.lease_ttl_secs", 600)
	v.SetDefault("enrich.search_query_delay_ms", 1500)
	v.SetDefault("bulk.min_delay_ms", 3000)
	v.SetDefault("bulk.max_delay_ms", 5000)
	v.SetDefault("bulk.max_parallel", 0)
	v.SetDefault("bulk.stale_lease_mins", 15)
	v.SetDefault("bulk.event_buffer_size", 64)
	v.SetDefault("import.batch_size", 10)
	v.SetDefault("import.budget_secs", 90)
	v.SetDefault("import.flush_every", 5)
	v.SetDefault("import.scheduler", "none")
	v.SetDefault("import.identify_rate", 0.20)
	v.SetDefault("import.lead_conversion_rate", 0.02)
	v.SetDefault("import.avg_deal_value", 2500.0)
	v.SetDefault("import.min_traffic_prospect", 0)
	v.SetDefault("traffic.timeout_secs", 10)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "prospect-import")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys a command mode depends on are present.
func (c *Config) Validate(mode string) error {
	var missing []string
	switch mode {
	case "enrichment":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key")
		}
		switch c.LLM.GroundedProvider {
		case "gemini":
			if c.Gemini.Key == "" {
				missing = append(missing, "gemini.key")
			}
		case "perplexity":
			if c.Perplexity.Key == "" {
				missing = append(missing, "perplexity.key")
			}
		default:
			return eris.Errorf("config: unknown llm.grounded_provider %q", c.LLM.GroundedProvider)
		}
	case "import":
		if c.Import.Scheduler == "http" && c.Import.ContinuationURL == "" {
			missing = append(missing, "import.continuation_url")
		}
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required keys for %s: %s", mode, strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
