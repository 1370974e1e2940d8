package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Port            string
	HTTPBindAddr    string
	APIEnabled      bool
	Environment     string
	LoggingConfig   LoggingConfig
	PostgresConfig  PostgresConfig
	Neo4jConfig     Neo4jConfig
	GraphConfig     GraphConfig
	RedisConfig     RedisConfig
	FareConfig      FareConfig
	SearchConfig    SearchConfig
	RefreshConfig   RefreshConfig
	WorkerConfig    WorkerConfig
	NTFYConfig      NTFYConfig
	AdminAuthConfig AdminAuthConfig
	WorkerEnabled   bool
	InitSchema      bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Enabled     bool
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	SSLRootCert string
}

// Neo4jConfig holds Neo4j connection configuration
type Neo4jConfig struct {
	URI                   string
	User                  string
	Password              string
	Database              string
	ConnectTimeout        time.Duration
	QueryTimeout          time.Duration
	MaxConnectionPoolSize int
}

// GraphConfig selects the route graph backend ("neo4j" or "memory").
type GraphConfig struct {
	Backend string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host                   string
	Port                   string
	Password               string
	DB                     int
	QueueGroup             string
	QueueStreamPrefix      string
	QueueBlockTimeout      time.Duration
	QueueVisibilityTimeout time.Duration
}

// FareConfig holds fare source configuration
type FareConfig struct {
	BaseURL           string
	Currency          string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	MaxRetries        int
	RatesURL          string
	RatesTTL          time.Duration
	BrowserCookies    bool
}

// Failure policies for per-candidate fare errors.
const (
	FailurePolicySkip = "skip"
	FailurePolicyFail = "fail"
)

// SearchConfig holds itinerary search configuration
type SearchConfig struct {
	Concurrency      int
	FailurePolicy    string
	CandidateTimeout time.Duration // 0 disables
	Timeout          time.Duration // 0 disables
	DefaultAdults    int
	DefaultBlacklist []string
}

// RefreshConfig holds route graph refresh configuration
type RefreshConfig struct {
	Enabled      bool
	Cron         string
	BaseAirports []string
}

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	Concurrency        int
	MaxRetries         int
	JobTimeout         time.Duration
	ShutdownTimeout    time.Duration
	SchedulerLockTTL   time.Duration
	SchedulerLockRenew time.Duration
	SchedulerLockKey   string
}

// NTFYConfig holds NTFY push notification configuration
type NTFYConfig struct {
	ServerURL string
	Topic     string
	Username  string
	Password  string
	Enabled   bool
}

// AdminAuthConfig holds admin authentication configuration
type AdminAuthConfig struct {
	Enabled  bool
	Username string
	Password string
	Token    string // Alternative: Bearer token auth
}

// fileOverlay is the optional TOML file named by CONFIG_FILE. It carries the
// list-valued settings that are awkward to keep in environment variables.
type fileOverlay struct {
	Refresh struct {
		Cron         string   `toml:"cron"`
		BaseAirports []string `toml:"base_airports"`
	} `toml:"refresh"`
	Search struct {
		FailurePolicy    string   `toml:"failure_policy"`
		DefaultBlacklist []string `toml:"default_blacklist"`
	} `toml:"search"`
	Fares struct {
		Currency string `toml:"currency"`
	} `toml:"fares"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	port := getEnv("PORT", "8080")
	httpBindAddr := getEnv("HTTP_BIND_ADDR", "")
	environment := getEnv("ENVIRONMENT", "development")
	apiEnabled, _ := strconv.ParseBool(getEnv("API_ENABLED", "true"))
	workerEnabled, _ := strconv.ParseBool(getEnv("WORKER_ENABLED", "true"))
	initSchema, _ := strconv.ParseBool(getEnv("INIT_SCHEMA", "true"))

	loggingConfig := LoggingConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	postgresEnabled, _ := strconv.ParseBool(getEnv("DB_ENABLED", "true"))
	postgresConfig := PostgresConfig{
		Enabled:     postgresEnabled,
		Host:        getEnv("DB_HOST", "postgres"),
		Port:        getEnv("DB_PORT", "5432"),
		User:        getEnv("DB_USER", "tripfinder"),
		Password:    getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "tripfinder"),
		SSLMode:     getEnv("DB_SSLMODE", "disable"),
		SSLRootCert: getEnv("DB_SSL_ROOT_CERT", ""),
	}

	neo4jPool, _ := strconv.Atoi(getEnv("NEO4J_MAX_POOL_SIZE", "50"))
	neo4jConfig := Neo4jConfig{
		URI:                   getEnv("NEO4J_URI", "bolt://neo4j:7687"),
		User:                  getEnv("NEO4J_USER", "neo4j"),
		Password:              getEnv("NEO4J_PASSWORD", ""),
		Database:              getEnv("NEO4J_DATABASE", "neo4j"),
		ConnectTimeout:        getDuration("NEO4J_CONNECT_TIMEOUT", 10*time.Second),
		QueryTimeout:          getDuration("NEO4J_QUERY_TIMEOUT", 30*time.Second),
		MaxConnectionPoolSize: neo4jPool,
	}

	graphConfig := GraphConfig{
		Backend: strings.ToLower(getEnv("GRAPH_BACKEND", "neo4j")),
	}

	redisConfig := RedisConfig{
		Host:                   getEnv("REDIS_HOST", "redis"),
		Port:                   getEnv("REDIS_PORT", "6379"),
		Password:               getEnv("REDIS_PASSWORD", ""),
		DB:                     0,
		QueueGroup:             getEnv("REDIS_QUEUE_GROUP", "tripfinder_workers"),
		QueueStreamPrefix:      getEnv("REDIS_QUEUE_STREAM_PREFIX", "tripfinder"),
		QueueBlockTimeout:      getDuration("REDIS_QUEUE_BLOCK_TIMEOUT", 5*time.Second),
		QueueVisibilityTimeout: getDuration("REDIS_QUEUE_VISIBILITY_TIMEOUT", 10*time.Minute),
	}

	rps, err := strconv.ParseFloat(getEnv("FARES_REQUESTS_PER_SECOND", "5"), 64)
	if err != nil || rps <= 0 {
		rps = 5
	}
	burst, _ := strconv.Atoi(getEnv("FARES_BURST", "5"))
	if burst < 1 {
		burst = 1
	}
	fareRetries, _ := strconv.Atoi(getEnv("FARES_MAX_RETRIES", "3"))
	browserCookies, _ := strconv.ParseBool(getEnv("FARES_BROWSER_COOKIES", "false"))
	fareConfig := FareConfig{
		BaseURL:           getEnv("FARES_BASE_URL", "https://www.ryanair.com"),
		Currency:          strings.ToUpper(getEnv("FARES_CURRENCY", "EUR")),
		RequestsPerSecond: rps,
		Burst:             burst,
		Timeout:           getDuration("FARES_TIMEOUT", 15*time.Second),
		MaxRetries:        fareRetries,
		RatesURL:          getEnv("FARES_RATES_URL", "https://api.frankfurter.app"),
		RatesTTL:          getDuration("FARES_RATES_TTL", 6*time.Hour),
		BrowserCookies:    browserCookies,
	}

	searchConcurrency, _ := strconv.Atoi(getEnv("SEARCH_CONCURRENCY", "10"))
	if searchConcurrency < 1 {
		searchConcurrency = 10
	}
	defaultAdults, _ := strconv.Atoi(getEnv("SEARCH_DEFAULT_ADULTS", "1"))
	if defaultAdults < 1 {
		defaultAdults = 1
	}
	searchConfig := SearchConfig{
		Concurrency:      searchConcurrency,
		FailurePolicy:    strings.ToLower(getEnv("SEARCH_FAILURE_POLICY", FailurePolicySkip)),
		CandidateTimeout: getDuration("SEARCH_CANDIDATE_TIMEOUT", 0),
		Timeout:          getDuration("SEARCH_TIMEOUT", 0),
		DefaultAdults:    defaultAdults,
		DefaultBlacklist: splitList(getEnv("SEARCH_DEFAULT_BLACKLIST", "")),
	}

	refreshEnabled, _ := strconv.ParseBool(getEnv("REFRESH_ENABLED", "true"))
	refreshConfig := RefreshConfig{
		Enabled:      refreshEnabled,
		Cron:         getEnv("REFRESH_CRON", "0 3 * * *"),
		BaseAirports: upperAll(splitList(getEnv("BASE_AIRPORTS", "SNN"))),
	}

	concurrency, _ := strconv.Atoi(getEnv("WORKER_CONCURRENCY", "1"))
	maxRetries, _ := strconv.Atoi(getEnv("WORKER_MAX_RETRIES", "3"))
	workerConfig := WorkerConfig{
		Concurrency:        concurrency,
		MaxRetries:         maxRetries,
		JobTimeout:         getDuration("WORKER_JOB_TIMEOUT", 2*time.Hour),
		ShutdownTimeout:    getDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),
		SchedulerLockTTL:   getDuration("SCHEDULER_LOCK_TTL", 30*time.Second),
		SchedulerLockRenew: getDuration("SCHEDULER_LOCK_RENEW", 10*time.Second),
		SchedulerLockKey:   getEnv("SCHEDULER_LOCK_KEY", "tripfinder:scheduler:leader"),
	}

	ntfyEnabled, _ := strconv.ParseBool(getEnv("NTFY_ENABLED", "false"))
	ntfyConfig := NTFYConfig{
		ServerURL: getEnv("NTFY_SERVER_URL", "https://ntfy.sh"),
		Topic:     getEnv("NTFY_TOPIC", ""),
		Username:  getEnv("NTFY_USERNAME", ""),
		Password:  getEnv("NTFY_PASSWORD", ""),
		Enabled:   ntfyEnabled,
	}

	// Admin authentication config
	adminAuthEnabled, _ := strconv.ParseBool(getEnv("ADMIN_AUTH_ENABLED", "false"))
	adminAuthConfig := AdminAuthConfig{
		Enabled:  adminAuthEnabled,
		Username: getEnv("ADMIN_AUTH_USERNAME", ""),
		Password: getEnv("ADMIN_AUTH_PASSWORD", ""),
		Token:    getEnv("ADMIN_AUTH_TOKEN", ""),
	}

	cfg := &Config{
		Port:            port,
		HTTPBindAddr:    httpBindAddr,
		APIEnabled:      apiEnabled,
		Environment:     environment,
		LoggingConfig:   loggingConfig,
		PostgresConfig:  postgresConfig,
		Neo4jConfig:     neo4jConfig,
		GraphConfig:     graphConfig,
		RedisConfig:     redisConfig,
		FareConfig:      fareConfig,
		SearchConfig:    searchConfig,
		RefreshConfig:   refreshConfig,
		WorkerConfig:    workerConfig,
		NTFYConfig:      ntfyConfig,
		AdminAuthConfig: adminAuthConfig,
		WorkerEnabled:   workerEnabled,
		InitSchema:      initSchema,
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile overlays non-empty values from a TOML file.
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var overlay fileOverlay
	if err := toml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if overlay.Refresh.Cron != "" {
		c.RefreshConfig.Cron = overlay.Refresh.Cron
	}
	if len(overlay.Refresh.BaseAirports) > 0 {
		c.RefreshConfig.BaseAirports = upperAll(overlay.Refresh.BaseAirports)
	}
	if overlay.Search.FailurePolicy != "" {
		c.SearchConfig.FailurePolicy = strings.ToLower(overlay.Search.FailurePolicy)
	}
	if len(overlay.Search.DefaultBlacklist) > 0 {
		c.SearchConfig.DefaultBlacklist = overlay.Search.DefaultBlacklist
	}
	if overlay.Fares.Currency != "" {
		c.FareConfig.Currency = strings.ToUpper(overlay.Fares.Currency)
	}
	return nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.SearchConfig.FailurePolicy {
	case FailurePolicySkip, FailurePolicyFail:
	default:
		return fmt.Errorf("invalid SEARCH_FAILURE_POLICY %q (want %q or %q)",
			c.SearchConfig.FailurePolicy, FailurePolicySkip, FailurePolicyFail)
	}
	switch c.GraphConfig.Backend {
	case "neo4j", "memory":
	default:
		return fmt.Errorf("invalid GRAPH_BACKEND %q (want neo4j or memory)", c.GraphConfig.Backend)
	}
	return nil
}

// LoadTestConfig loads test configuration
func LoadTestConfig() *Config {
	return &Config{
		PostgresConfig: PostgresConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "tripfinder"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME_TEST", "tripfinder_test"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RedisConfig: RedisConfig{
			Host:                   getEnv("REDIS_HOST", "localhost"),
			Port:                   getEnv("REDIS_PORT", "6379"),
			QueueGroup:             getEnv("REDIS_QUEUE_GROUP", "tripfinder_workers"),
			QueueStreamPrefix:      getEnv("REDIS_QUEUE_STREAM_PREFIX", "tripfinder"),
			QueueBlockTimeout:      5 * time.Second,
			QueueVisibilityTimeout: 2 * time.Minute,
		},
		Neo4jConfig: Neo4jConfig{
			URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
			User:     getEnv("NEO4J_USER", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", ""),
			Database: getEnv("NEO4J_DATABASE", "neo4j"),
		},
		GraphConfig: GraphConfig{Backend: "memory"},
		FareConfig: FareConfig{
			Currency:          "EUR",
			RequestsPerSecond: 100,
			Burst:             10,
			Timeout:           5 * time.Second,
		},
		SearchConfig: SearchConfig{
			Concurrency:   10,
			FailurePolicy: FailurePolicySkip,
			DefaultAdults: 1,
		},
		Environment: "test",
	}
}

// TestConfig returns a default test configuration
func TestConfig() *Config {
	cfg := LoadTestConfig()
	cfg.WorkerEnabled = false
	return cfg
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if len(strings.TrimSpace(value)) == 0 {
		return defaultValue
	}
	return strings.TrimSpace(value) // Trim whitespace before returning
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, defaultValue.String()))
	if err != nil {
		return defaultValue
	}
	return d
}

func splitList(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func upperAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToUpper(strings.TrimSpace(v)))
	}
	return out
}
