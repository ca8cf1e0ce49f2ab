// Package config loads service configuration from a YAML file, a .env file
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable holding the YAML config path.
const EnvConfigPath = "TALLYBOARD_CONFIG"

var ErrInvalid = errors.New("config: invalid configuration")

// Config is the full service configuration.
type Config struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Access   AccessConfig   `yaml:"access"`
	Roles    RolesConfig    `yaml:"roles"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Billing  BillingConfig  `yaml:"billing"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// AccessConfig tunes the decision engine. StrictCatalog panics on unknown
// features and belongs in development only.
type AccessConfig struct {
	StrictCatalog bool `yaml:"strict_catalog"`
}

// RolesConfig points clients at a role resolution authority. An empty URL
// means the authority runs in-process.
type RolesConfig struct {
	ResolverURL string        `yaml:"resolver_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

type JobsConfig struct {
	OverdueSchedule string        `yaml:"overdue_schedule"`
	InvoiceSchedule string        `yaml:"invoice_schedule"`
	InvoicePrefix   string        `yaml:"invoice_prefix"`
	RunTimeout      time.Duration `yaml:"run_timeout"`
}

type BillingConfig struct {
	PaymentSecret string `yaml:"payment_secret"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Env: "development",
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitRPS:    20,
			RateLimitBurst:  40,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			Issuer:   "tallyboard",
			TokenTTL: time.Hour,
		},
		Roles: RolesConfig{Timeout: 5 * time.Second},
		Jobs: JobsConfig{
			OverdueSchedule: "@every 15m",
			InvoiceSchedule: "0 3 * * *",
			InvoicePrefix:   "INV",
			RunTimeout:      5 * time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads .env (if present), then the YAML file named by
// TALLYBOARD_CONFIG (if set), then applies environment overrides.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads path over the defaults without consulting the environment.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	env := envReader{lookup: lookup}
	env.str("TALLYBOARD_ENV", &c.Env)
	env.str("TALLYBOARD_HTTP_ADDR", &c.Server.HTTPAddr)
	env.str("TALLYBOARD_GRPC_ADDR", &c.Server.GRPCAddr)
	env.list("TALLYBOARD_CORS_ORIGINS", &c.Server.CORSOrigins)
	env.float("TALLYBOARD_RATE_LIMIT_RPS", &c.Server.RateLimitRPS)
	env.int("TALLYBOARD_RATE_LIMIT_BURST", &c.Server.RateLimitBurst)
	env.str("TALLYBOARD_PG_DSN", &c.Database.DSN)
	env.str("TALLYBOARD_JWT_SECRET", &c.Auth.Secret)
	env.duration("TALLYBOARD_TOKEN_TTL", &c.Auth.TokenTTL)
	env.bool("TALLYBOARD_STRICT_CATALOG", &c.Access.StrictCatalog)
	env.str("TALLYBOARD_ROLES_URL", &c.Roles.ResolverURL)
	env.str("TALLYBOARD_INVOICE_PREFIX", &c.Jobs.InvoicePrefix)
	env.str("TALLYBOARD_PAYMENT_SECRET", &c.Billing.PaymentSecret)
	env.str("TALLYBOARD_LOG_LEVEL", &c.Log.Level)
	env.str("TALLYBOARD_LOG_FORMAT", &c.Log.Format)
	return env.err
}

// Validate reports missing or contradictory settings.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Auth.Secret) == "" {
		problems = append(problems, "auth.secret is required")
	} else if c.IsProduction() && len(c.Auth.Secret) < 32 {
		problems = append(problems, "auth.secret must be at least 32 bytes in production")
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, "auth.token_ttl must be positive")
	}
	if strings.TrimSpace(c.Server.HTTPAddr) == "" {
		problems = append(problems, "server.http_addr is required")
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		problems = append(problems, "server rate limit must not be negative")
	}
	if c.IsProduction() && c.Access.StrictCatalog {
		problems = append(problems, "access.strict_catalog is for development only")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction reports whether Env names a production deployment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (e *envReader) int(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) bool(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = d
	}
}
