package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"market_sync/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		WSURL          string `yaml:"ws_url"`
		Token          string `yaml:"token"` // seeds the credential store when set
		HandshakeMS    int    `yaml:"handshake_timeout_ms"`
		PingIntervalMS int    `yaml:"ping_interval_ms"`
		ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
		WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	} `yaml:"server"`

	Reconnect struct {
		BaseDelayMS  int     `yaml:"base_delay_ms"`
		MaxDelaySec  int     `yaml:"max_delay_sec"`
		MaxRetries   int     `yaml:"max_retries"` // backoff exponent starts over after this many attempts
		DialsPerMin  float64 `yaml:"dials_per_min"`
		DialBurst    int     `yaml:"dial_burst"`
		CredentialMS int     `yaml:"credential_skew_ms"`
	} `yaml:"reconnect"`

	Trade struct {
		TimeoutMS      int `yaml:"timeout_ms"`
		OrphanWindowMS int `yaml:"orphan_window_ms"`
	} `yaml:"trade"`

	Engine struct {
		InboxSize int    `yaml:"inbox_size"`
		DumpFile  string `yaml:"dump_file"`
	} `yaml:"engine"`

	Storage struct {
		Path string `yaml:"path"` // empty means the per-user config dir
	} `yaml:"storage"`

	Metrics struct {
		Addr string `yaml:"addr"` // empty disables the /metrics endpoint
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
// A .env file in the working directory is loaded first, if present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML, applies env overrides and defaults, then validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	url := c.Server.WSURL
	if url == "" || (!strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://")) {
		return &domain.ConfigError{Field: "server.ws_url", Err: fmt.Errorf("invalid websocket URL %q", url)}
	}
	if c.Trade.TimeoutMS <= 0 {
		return &domain.ConfigError{Field: "trade.timeout_ms", Err: errors.New("must be positive")}
	}
	if c.Server.ReadTimeoutMS <= c.Server.PingIntervalMS {
		return &domain.ConfigError{Field: "server.read_timeout_ms", Err: errors.New("must exceed ping_interval_ms")}
	}
	if c.Reconnect.DialsPerMin <= 0 {
		return &domain.ConfigError{Field: "reconnect.dials_per_min", Err: errors.New("must be positive")}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}
	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("MARKET_SYNC_WS_URL"); url != "" {
		cfg.Server.WSURL = url
	}
	if token := os.Getenv("MARKET_SYNC_TOKEN"); token != "" {
		cfg.Server.Token = token
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
}

func setDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "market-sync"
	}
	if cfg.Server.HandshakeMS <= 0 {
		cfg.Server.HandshakeMS = 10_000
	}
	if cfg.Server.PingIntervalMS <= 0 {
		cfg.Server.PingIntervalMS = 30_000
	}
	if cfg.Server.ReadTimeoutMS <= 0 {
		cfg.Server.ReadTimeoutMS = 60_000
	}
	if cfg.Server.WriteTimeoutMS <= 0 {
		cfg.Server.WriteTimeoutMS = 10_000
	}
	if cfg.Reconnect.BaseDelayMS <= 0 {
		cfg.Reconnect.BaseDelayMS = 1_000
	}
	if cfg.Reconnect.MaxDelaySec <= 0 {
		cfg.Reconnect.MaxDelaySec = 60
	}
	if cfg.Reconnect.MaxRetries <= 0 {
		cfg.Reconnect.MaxRetries = 10
	}
	if cfg.Reconnect.DialsPerMin <= 0 {
		cfg.Reconnect.DialsPerMin = 12
	}
	if cfg.Reconnect.DialBurst <= 0 {
		cfg.Reconnect.DialBurst = 3
	}
	if cfg.Trade.TimeoutMS <= 0 {
		cfg.Trade.TimeoutMS = 10_000
	}
	if cfg.Trade.OrphanWindowMS <= 0 {
		cfg.Trade.OrphanWindowMS = 2 * cfg.Trade.TimeoutMS
	}
	if cfg.Engine.InboxSize <= 0 {
		cfg.Engine.InboxSize = 256
	}
	if cfg.Engine.DumpFile == "" {
		cfg.Engine.DumpFile = "panic_dump.json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Convenience accessors for the *_ms / *_sec fields.
func (c *Config) HandshakeTimeout() time.Duration {
	return ms(c.Server.HandshakeMS)
}

func (c *Config) PingInterval() time.Duration {
	return ms(c.Server.PingIntervalMS)
}

func (c *Config) ReadTimeout() time.Duration {
	return ms(c.Server.ReadTimeoutMS)
}

func (c *Config) WriteTimeout() time.Duration {
	return ms(c.Server.WriteTimeoutMS)
}

func (c *Config) BaseDelay() time.Duration {
	return ms(c.Reconnect.BaseDelayMS)
}

func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Reconnect.MaxDelaySec) * time.Second
}

func (c *Config) CredentialSkew() time.Duration {
	return ms(c.Reconnect.CredentialMS)
}

func (c *Config) TradeTimeout() time.Duration {
	return ms(c.Trade.TimeoutMS)
}

func (c *Config) OrphanWindow() time.Duration {
	return ms(c.Trade.OrphanWindowMS)
}
