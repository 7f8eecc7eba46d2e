package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MarcoPoloResearchLab/lantern/internal/codes"
	"github.com/MarcoPoloResearchLab/lantern/internal/ratelimit"
)

const (
	envPrefix             = "LANTERN"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "lantern.db"
	defaultLogLevel       = "info"
	defaultLogEncoding    = "json"
	defaultAllowedOrigins = "*"
	defaultCookieName     = "lantern_admin"
	defaultSessionTTL     = 168 * time.Hour
	defaultMaxCandidates  = 5000
	defaultLookupRPS      = 4.0
	defaultLookupBurst    = 8
	defaultPoolCap        = 3
	defaultPoolWindow     = 10
	defaultRedisKeyPrefix = "lantern:ratelimit"

	// BackendMemory keeps rate-limit counters in process.
	BackendMemory = "memory"
	// BackendRedis shares rate-limit counters across replicas.
	BackendRedis = "redis"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	LogEncoding    string
	AllowedOrigins []string
	SecureCookies  bool

	Hash codes.HashParams

	// LookupMaxCandidates bounds the oldest-first digest scan per lookup. Stories
	// beyond the bound cannot be resolved until it is raised; 0 removes it.
	LookupMaxCandidates int
	LookupGlobalRPS     float64
	LookupGlobalBurst   int

	PoolMaxApprovedNotes int
	PoolCandidateWindow  int

	AutoApproveStories bool
	AutoApproveNotes   bool

	RateLimitBackend string
	RedisAddress     string
	RedisPassword    string
	RedisKeyPrefix   string
	Policies         map[string]ratelimit.Policy

	AdminSigningSecret string
	AdminPasswordHash  string
	AdminCookieName    string
	AdminSessionTTL    time.Duration

	MetricsEnabled bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	defaultHash := codes.DefaultHashParams()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("http.secure_cookies", true)
	configViper.SetDefault("hash.memory_kib", defaultHash.MemoryKiB)
	configViper.SetDefault("hash.iterations", defaultHash.Iterations)
	configViper.SetDefault("hash.parallelism", defaultHash.Parallelism)
	configViper.SetDefault("lookup.max_candidates", defaultMaxCandidates)
	configViper.SetDefault("lookup.global_rps", defaultLookupRPS)
	configViper.SetDefault("lookup.global_burst", defaultLookupBurst)
	configViper.SetDefault("pool.max_approved_notes", defaultPoolCap)
	configViper.SetDefault("pool.candidate_window", defaultPoolWindow)
	configViper.SetDefault("moderation.auto_approve_stories", true)
	configViper.SetDefault("moderation.auto_approve_notes", true)
	configViper.SetDefault("ratelimit.backend", BackendMemory)
	configViper.SetDefault("redis.key_prefix", defaultRedisKeyPrefix)
	for name, policy := range ratelimit.DefaultPolicies() {
		configViper.SetDefault("ratelimit."+name+".max_requests", policy.MaxRequests)
		configViper.SetDefault("ratelimit."+name+".window", policy.Window)
	}
	configViper.SetDefault("admin.cookie_name", defaultCookieName)
	configViper.SetDefault("admin.session_ttl", defaultSessionTTL)
	configViper.SetDefault("metrics.enabled", true)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		LogEncoding:    configViper.GetString("log.encoding"),
		AllowedOrigins: splitList(configViper.GetStringSlice("cors.allowed_origins")),
		SecureCookies:  configViper.GetBool("http.secure_cookies"),
		Hash: codes.HashParams{
			MemoryKiB:   configViper.GetUint32("hash.memory_kib"),
			Iterations:  configViper.GetUint32("hash.iterations"),
			Parallelism: uint8(configViper.GetUint("hash.parallelism")),
		},
		LookupMaxCandidates:  configViper.GetInt("lookup.max_candidates"),
		LookupGlobalRPS:      configViper.GetFloat64("lookup.global_rps"),
		LookupGlobalBurst:    configViper.GetInt("lookup.global_burst"),
		PoolMaxApprovedNotes: configViper.GetInt("pool.max_approved_notes"),
		PoolCandidateWindow:  configViper.GetInt("pool.candidate_window"),
		AutoApproveStories:   configViper.GetBool("moderation.auto_approve_stories"),
		AutoApproveNotes:     configViper.GetBool("moderation.auto_approve_notes"),
		RateLimitBackend:     strings.ToLower(strings.TrimSpace(configViper.GetString("ratelimit.backend"))),
		RedisAddress:         configViper.GetString("redis.address"),
		RedisPassword:        configViper.GetString("redis.password"),
		RedisKeyPrefix:       configViper.GetString("redis.key_prefix"),
		Policies:             make(map[string]ratelimit.Policy),
		AdminSigningSecret:   configViper.GetString("admin.signing_secret"),
		AdminPasswordHash:    strings.TrimSpace(configViper.GetString("admin.password_hash")),
		AdminCookieName:      configViper.GetString("admin.cookie_name"),
		AdminSessionTTL:      configViper.GetDuration("admin.session_ttl"),
		MetricsEnabled:       configViper.GetBool("metrics.enabled"),
	}
	for name := range ratelimit.DefaultPolicies() {
		cfg.Policies[name] = ratelimit.Policy{
			Name:        name,
			MaxRequests: configViper.GetInt("ratelimit." + name + ".max_requests"),
			Window:      configViper.GetDuration("ratelimit." + name + ".window"),
		}
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AdminSigningSecret) == "" {
		return fmt.Errorf("admin.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.AdminCookieName) == "" {
		return fmt.Errorf("admin.cookie_name is required")
	}
	if c.Hash.Iterations == 0 || c.Hash.Parallelism == 0 {
		return fmt.Errorf("hash.iterations and hash.parallelism must be positive")
	}
	if c.Hash.MemoryKiB < 8*uint32(c.Hash.Parallelism) {
		return fmt.Errorf("hash.memory_kib must be at least 8 KiB per lane")
	}
	if c.LookupMaxCandidates < 0 {
		return fmt.Errorf("lookup.max_candidates must not be negative")
	}
	if c.LookupGlobalRPS <= 0 || c.LookupGlobalBurst < 1 {
		return fmt.Errorf("lookup.global_rps and lookup.global_burst must be positive")
	}
	for name, policy := range c.Policies {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("ratelimit.%s: %w", name, err)
		}
	}
	switch c.RateLimitBackend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddress) == "" {
			return fmt.Errorf("redis.address is required when ratelimit.backend is redis")
		}
	default:
		return fmt.Errorf("ratelimit.backend must be %q or %q", BackendMemory, BackendRedis)
	}
	if c.AdminSessionTTL <= 0 {
		return fmt.Errorf("admin.session_ttl must be positive")
	}
	return nil
}

// splitList accepts both list values and a single comma separated string,
// which is what environment variables provide.
func splitList(values []string) []string {
	var items []string
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
	}
	return items
}
