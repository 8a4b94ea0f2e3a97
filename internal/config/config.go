// Package config loads server configuration from the environment with
// envdecode and lets command-line flags override individual values.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggoodman/pipedrive-mcp-server-go/internal/jwtauth"
	"github.com/joeshaw/envdecode"
	"github.com/spf13/pflag"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the complete server configuration.
type Config struct {
	Pipedrive Pipedrive
	JWT       JWT
	Cache     Cache

	// Transport is "stdio" or "sse". ENV: MCP_TRANSPORT
	Transport string `env:"MCP_TRANSPORT,default=stdio"`
	// Port is the SSE listen port. ENV: MCP_PORT
	Port int `env:"MCP_PORT,default=3000"`
	// Endpoint is the path clients POST messages to. ENV: MCP_ENDPOINT
	Endpoint string `env:"MCP_ENDPOINT,default=/message"`

	// LogLevel is 0 (debug) through 3 (error). ENV: LOG_LEVEL
	LogLevel int `env:"LOG_LEVEL,default=1"`
	// LogFile, when set, receives logs through a rotating writer. ENV: LOG_FILE
	LogFile string `env:"LOG_FILE"`
	// MetricsAddr, when set, serves Prometheus metrics on its own listener. ENV: MCP_METRICS_ADDR
	MetricsAddr string `env:"MCP_METRICS_ADDR"`
}

// Pipedrive holds the downstream API settings.
type Pipedrive struct {
	APIToken      string `env:"PIPEDRIVE_API_TOKEN"`
	Domain        string `env:"PIPEDRIVE_DOMAIN"`
	BaseURL       string `env:"PIPEDRIVE_BASE_URL"`
	MinTimeMs     int    `env:"PIPEDRIVE_RATE_LIMIT_MIN_TIME_MS,default=250"`
	MaxConcurrent int    `env:"PIPEDRIVE_RATE_LIMIT_MAX_CONCURRENT,default=2"`
}

// JWT holds the bearer-token gate settings. The gate is enabled when Secret
// or JWKSURL is set, or when Issuer is set with an asymmetric algorithm.
type JWT struct {
	Secret    string `env:"MCP_JWT_SECRET"`
	Token     string `env:"MCP_JWT_TOKEN"`
	Algorithm string `env:"MCP_JWT_ALGORITHM,default=HS256"`
	Audience  string `env:"MCP_JWT_AUDIENCE"`
	Issuer    string `env:"MCP_JWT_ISSUER"`
	JWKSURL   string `env:"MCP_JWT_JWKS_URL"`
}

// Cache selects the reference-data cache backend.
type Cache struct {
	Backend  string        `env:"CACHE_BACKEND,default=none"`
	TTL      time.Duration `env:"CACHE_TTL,default=5m"`
	RedisURL string        `env:"REDIS_URL"`
}

// Enabled reports whether requests must carry a bearer token.
func (j JWT) Enabled() bool {
	return jwtauth.Config{
		Secret:      []byte(j.Secret),
		AllowedAlgs: j.Algorithms(),
		Issuer:      j.Issuer,
		JWKSURL:     j.JWKSURL,
	}.Enabled()
}

// Algorithms splits the comma-separated allow-list.
func (j JWT) Algorithms() []string {
	return jwtauth.ParseAlgorithms(j.Algorithm)
}

// MinTime is the configured call spacing.
func (p Pipedrive) MinTime() time.Duration {
	return time.Duration(p.MinTimeMs) * time.Millisecond
}

// APIBaseURL returns the override when set, otherwise the company domain's v1 root.
func (p Pipedrive) APIBaseURL() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	return "https://" + strings.TrimSuffix(p.Domain, "/") + "/api/v1"
}

// Load decodes the environment, applies flag overrides from args and
// validates the result. It returns pflag.ErrHelp when --help is given.
func Load(args []string) (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	fs := pflag.NewFlagSet("pipedrive-mcp-server", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected argument %q", ErrInvalid, fs.Arg(0))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BindFlags registers overrides on fs. Current field values are the defaults,
// so a flag only changes what it is given.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Pipedrive.BaseURL, "pipedrive-base-url", c.Pipedrive.BaseURL, "Pipedrive API base URL (default https://<domain>/api/v1)")
	fs.IntVar(&c.Pipedrive.MinTimeMs, "min-time-ms", c.Pipedrive.MinTimeMs, "minimum milliseconds between Pipedrive call starts")
	fs.IntVar(&c.Pipedrive.MaxConcurrent, "max-concurrent", c.Pipedrive.MaxConcurrent, "maximum concurrent Pipedrive calls")
	fs.StringVar(&c.Transport, "transport", c.Transport, "transport: stdio or sse")
	fs.IntVar(&c.Port, "port", c.Port, "SSE listen port")
	fs.StringVar(&c.Endpoint, "endpoint", c.Endpoint, "SSE message endpoint path")
	fs.StringVar(&c.JWT.Algorithm, "jwt-algorithm", c.JWT.Algorithm, "comma-separated accepted JWT algorithms")
	fs.StringVar(&c.JWT.Audience, "jwt-audience", c.JWT.Audience, "required JWT audience")
	fs.StringVar(&c.JWT.Issuer, "jwt-issuer", c.JWT.Issuer, "required JWT issuer")
	fs.StringVar(&c.JWT.JWKSURL, "jwt-jwks-url", c.JWT.JWKSURL, "JWKS URL for asymmetric JWT verification")
	fs.IntVar(&c.LogLevel, "log-level", c.LogLevel, "log level: 0 debug, 1 info, 2 warn, 3 error")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "also write logs to this rotating file")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve Prometheus metrics on this address")
	fs.StringVar(&c.Cache.Backend, "cache", c.Cache.Backend, "reference data cache: none, memory or redis")
	fs.DurationVar(&c.Cache.TTL, "cache-ttl", c.Cache.TTL, "reference data cache lifetime")
	fs.StringVar(&c.Cache.RedisURL, "redis-url", c.Cache.RedisURL, "redis URL for the redis cache")
}

// Validate checks required values and cross-field rules. Every problem is
// reported, each wrapping ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, a ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, a...)...))
	}

	if c.Pipedrive.APIToken == "" {
		bad("PIPEDRIVE_API_TOKEN environment variable is required")
	}
	if c.Pipedrive.Domain == "" && c.Pipedrive.BaseURL == "" {
		bad("PIPEDRIVE_DOMAIN environment variable is required (e.g., 'acme.pipedrive.com')")
	}
	if c.Pipedrive.MinTimeMs < 0 {
		bad("PIPEDRIVE_RATE_LIMIT_MIN_TIME_MS must not be negative, got %d", c.Pipedrive.MinTimeMs)
	}
	if c.Pipedrive.MaxConcurrent < 1 {
		bad("PIPEDRIVE_RATE_LIMIT_MAX_CONCURRENT must be at least 1, got %d", c.Pipedrive.MaxConcurrent)
	}

	switch c.Transport {
	case TransportStdio:
	case TransportSSE:
		if c.Port < 1 || c.Port > 65535 {
			bad("MCP_PORT must be between 1 and 65535, got %d", c.Port)
		}
		if strings.TrimSpace(c.Endpoint) == "" {
			bad("MCP_ENDPOINT must not be empty")
		}
	default:
		bad("MCP_TRANSPORT must be %q or %q, got %q", TransportStdio, TransportSSE, c.Transport)
	}

	if c.JWT.Enabled() {
		if c.JWT.Token == "" {
			bad("MCP_JWT_TOKEN environment variable is required when MCP_JWT_SECRET is set")
		}
		if len(c.JWT.Algorithms()) == 0 {
			bad("MCP_JWT_ALGORITHM must name at least one algorithm")
		}
	}

	if c.LogLevel < 0 || c.LogLevel > 3 {
		bad("LOG_LEVEL must be between 0 and 3, got %d", c.LogLevel)
	}

	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			bad("REDIS_URL is required when CACHE_BACKEND is %q", CacheRedis)
		}
	default:
		bad("CACHE_BACKEND must be one of %q, %q or %q, got %q", CacheNone, CacheMemory, CacheRedis, c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		bad("CACHE_TTL must not be negative, got %s", c.Cache.TTL)
	}

	return errors.Join(errs...)
}
