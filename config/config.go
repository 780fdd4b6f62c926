package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Research  ResearchConfig  `mapstructure:"research"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address    string        `mapstructure:"address"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	RunTimeout time.Duration `mapstructure:"run_timeout"` // wall-clock budget for one detached run
}

// LLMConfig contains the text-generation provider configuration
type LLMConfig struct {
	APIKey      string           `mapstructure:"api_key"`
	BaseURL     string           `mapstructure:"base_url"`
	Temperature float64          `mapstructure:"temperature"`
	Timeout     time.Duration    `mapstructure:"timeout"`
	Routing     LLMRoutingConfig `mapstructure:"routing"`
}

// LLMRoutingConfig defines which model to use for each pipeline role
type LLMRoutingConfig struct {
	Planning  string `mapstructure:"planning"`
	Judging   string `mapstructure:"judging"`
	Synthesis string `mapstructure:"synthesis"`
	Fallback  string `mapstructure:"fallback"`
}

// Model returns the routed model for a role, falling back when unset.
func (r LLMRoutingConfig) Model(role string) string {
	var m string
	switch role {
	case "planning":
		m = r.Planning
	case "judging":
		m = r.Judging
	case "synthesis":
		m = r.Synthesis
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if l.Routing.Fallback == "" && l.Routing.Planning == "" {
		return fmt.Errorf("llm.routing.fallback or llm.routing.planning must be set")
	}
	return nil
}

// SearchConfig contains web search provider settings
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // serper or brave
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	Locale       string        `mapstructure:"locale"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "serper":
		if strings.TrimSpace(s.SerperAPIKey) == "" {
			return fmt.Errorf("search.serper_api_key required for serper provider")
		}
	case "brave":
		if strings.TrimSpace(s.BraveAPIKey) == "" {
			return fmt.Errorf("search.brave_api_key required for brave provider")
		}
	default:
		return fmt.Errorf("search.provider must be serper or brave")
	}
	return nil
}

// ExtractConfig contains content extraction settings
type ExtractConfig struct {
	Fetcher     string        `mapstructure:"fetcher"` // http or chromedp
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxChars    int           `mapstructure:"max_chars"`
	Parallelism int           `mapstructure:"parallelism"`
}

func (e ExtractConfig) Validate() error {
	if e.Fetcher != "http" && e.Fetcher != "chromedp" {
		return fmt.Errorf("extract.fetcher must be http or chromedp")
	}
	return nil
}

// DepthPolicy bounds one research run for a requested depth.
type DepthPolicy struct {
	MaxIterations  int `mapstructure:"max_iterations"`
	AxisCount      int `mapstructure:"axis_count"`
	ResultsPerAxis int `mapstructure:"results_per_axis"`
	MinCoverage    int `mapstructure:"min_coverage"`
}

// ResearchConfig contains pipeline policy settings
type ResearchConfig struct {
	Depths     map[string]DepthPolicy `mapstructure:"depths"`
	ExtractCap int                    `mapstructure:"extract_cap"` // extraction candidates per round
}

// PolicyFor resolves the depth policy for a requested depth, defaulting to standard.
func (r ResearchConfig) PolicyFor(depth string) DepthPolicy {
	if depth == "" {
		depth = "standard"
	}
	if p, ok := r.Depths[depth]; ok && p.MaxIterations > 0 {
		return p
	}
	if p, ok := r.Depths["standard"]; ok && p.MaxIterations > 0 {
		return p
	}
	return DepthPolicy{MaxIterations: 3, AxisCount: 4, ResultsPerAxis: 8, MinCoverage: 75}
}

func (r ResearchConfig) Validate() error {
	for name, p := range r.Depths {
		if p.MaxIterations <= 0 {
			return fmt.Errorf("research.depths.%s.max_iterations must be > 0", name)
		}
		if p.AxisCount <= 0 {
			return fmt.Errorf("research.depths.%s.axis_count must be > 0", name)
		}
		if p.MinCoverage < 0 || p.MinCoverage > 100 {
			return fmt.Errorf("research.depths.%s.min_coverage must be within 0-100", name)
		}
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a Postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port, or empty when Redis is not configured.
func (r RedisConfig) Addr() string {
	if strings.TrimSpace(r.Host) == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("server.address", ":10030")
	viper.SetDefault("server.run_timeout", 15*time.Minute)
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.timeout", 60*time.Second)
	viper.SetDefault("search.provider", "serper")
	viper.SetDefault("search.timeout", 30*time.Second)
	viper.SetDefault("extract.fetcher", "http")
	viper.SetDefault("extract.timeout", 30*time.Second)
	viper.SetDefault("extract.max_chars", 20000)
	viper.SetDefault("extract.parallelism", 4)
	viper.SetDefault("research.extract_cap", 5)
	viper.SetDefault("research.depths.quick", map[string]any{
		"max_iterations": 2, "axis_count": 3, "results_per_axis": 5, "min_coverage": 60,
	})
	viper.SetDefault("research.depths.standard", map[string]any{
		"max_iterations": 3, "axis_count": 4, "results_per_axis": 8, "min_coverage": 75,
	})
	viper.SetDefault("research.depths.exhaustive", map[string]any{
		"max_iterations": 5, "axis_count": 6, "results_per_axis": 10, "min_coverage": 85,
	})

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SCOUR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match (SCOUR_*)

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Search.Validate(); err != nil {
		panic(err)
	}
	if err := config.Extract.Validate(); err != nil {
		panic(err)
	}
	if err := config.Research.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Telemetry.Validate(); err != nil {
		panic(err)
	}
	return &config
}
