package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string

	SearchURL          string
	SearchUsername     string
	SearchPassword     string
	SearchBearerToken  string
	SearchInsecureTLS  bool
	SearchIndexPrefix  string
	SearchTemplateName string

	VectorEnabled    bool
	VectorDimensions int

	RewriteEnabled      bool
	RewriteProvider     string
	RewriteTimeout      time.Duration
	RewriteMaxQueryLen  int
	RewriteSynonymsFile string

	EmbedProvider string
	EmbedTimeout  time.Duration

	RerankEnabled       bool
	RerankTopK          int
	RerankTimeout       time.Duration
	RerankFreshnessDays int

	BoostSourceWeight float64
	BoostTagWeight    float64

	BreakerFailureThreshold int
	BreakerResetTimeout     time.Duration
	RetryRetries            int
	RetryMinTimeout         time.Duration
	RetryMaxTimeout         time.Duration
	RetryFactor             float64

	PIIRedactEmail  bool
	PIIRedactTokens bool
	PIIRedactPhone  bool

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIChatModel  string
	OpenAIEmbedModel string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string

	RedisAddrs    []string
	RedisPassword string

	BackstageURL   string
	BackstageToken string
	IngestPageSize int

	NATSURL     string
	NATSSubject string

	PostgresDSN string

	AdminAPIKey       string
	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int

	WorkerMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		SearchURL:          mustEnv("SEARCH_URL", "http://localhost:9200"),
		SearchUsername:     mustEnv("SEARCH_USERNAME", ""),
		SearchPassword:     mustEnv("SEARCH_PASSWORD", ""),
		SearchBearerToken:  mustEnv("SEARCH_BEARER_TOKEN", ""),
		SearchInsecureTLS:  mustEnvBool("SEARCH_INSECURE_TLS", false),
		SearchIndexPrefix:  mustEnv("SEARCH_INDEX_PREFIX", "portal"),
		SearchTemplateName: mustEnv("SEARCH_TEMPLATE_NAME", ""),

		VectorEnabled:    mustEnvBool("VECTOR_ENABLED", false),
		VectorDimensions: mustEnvInt("VECTOR_DIMENSIONS", 384),

		RewriteEnabled:      mustEnvBool("REWRITE_ENABLED", false),
		RewriteProvider:     strings.ToLower(mustEnv("REWRITE_PROVIDER", "")),
		RewriteTimeout:      mustEnvMillis("REWRITE_TIMEOUT_MS", 2000),
		RewriteMaxQueryLen:  mustEnvInt("REWRITE_MAX_QUERY_LEN", 512),
		RewriteSynonymsFile: mustEnv("REWRITE_SYNONYMS_FILE", ""),

		EmbedProvider: strings.ToLower(mustEnv("EMBED_PROVIDER", "hash")),
		EmbedTimeout:  mustEnvMillis("EMBED_TIMEOUT_MS", 1500),

		RerankEnabled:       mustEnvBool("RERANK_ENABLED", true),
		RerankTopK:          mustEnvInt("RERANK_TOP_K", 50),
		RerankTimeout:       mustEnvMillis("RERANK_TIMEOUT_MS", 300),
		RerankFreshnessDays: mustEnvInt("RERANK_FRESHNESS_DAYS", 30),

		BoostSourceWeight: mustEnvFloat("BOOST_SOURCE_WEIGHT", 2.0),
		BoostTagWeight:    mustEnvFloat("BOOST_TAG_WEIGHT", 1.5),

		BreakerFailureThreshold: mustEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerResetTimeout:     mustEnvMillis("BREAKER_RESET_TIMEOUT_MS", 30000),
		RetryRetries:            mustEnvInt("RETRY_RETRIES", 2),
		RetryMinTimeout:         mustEnvMillis("RETRY_MIN_TIMEOUT_MS", 100),
		RetryMaxTimeout:         mustEnvMillis("RETRY_MAX_TIMEOUT_MS", 1000),
		RetryFactor:             mustEnvFloat("RETRY_FACTOR", 2.0),

		PIIRedactEmail:  mustEnvBool("PII_REDACT_EMAIL", true),
		PIIRedactTokens: mustEnvBool("PII_REDACT_TOKENS", true),
		PIIRedactPhone:  mustEnvBool("PII_REDACT_PHONE", false),

		OpenAIAPIKey:     mustEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    mustEnv("OPENAI_BASE_URL", ""),
		OpenAIChatModel:  mustEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIEmbedModel: mustEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),

		RedisAddrs:    mustEnvList("REDIS_ADDRS"),
		RedisPassword: mustEnv("REDIS_PASSWORD", ""),

		BackstageURL:   mustEnv("BACKSTAGE_URL", "http://localhost:7007"),
		BackstageToken: mustEnv("BACKSTAGE_TOKEN", ""),
		IngestPageSize: mustEnvInt("INGEST_PAGE_SIZE", 500),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "search.reindex"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		AdminAPIKey:       mustEnv("ADMIN_API_KEY", ""),
		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 50),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 100),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 64),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

func mustEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvMillis reads an integer millisecond count. Negative values fall
// back to the default.
func mustEnvMillis(key string, fallbackMS int) time.Duration {
	ms := mustEnvInt(key, fallbackMS)
	if ms < 0 {
		ms = fallbackMS
	}
	return time.Duration(ms) * time.Millisecond
}

func mustEnvList(key string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
