package adaptercfg

import (
    "errors"
    "fmt"
    "os"
    "strings"

    "gopkg.in/yaml.v3"
)

type Config struct {
    Server   ServerConfig   `yaml:"server"`
    Broker   BrokerConfig   `yaml:"broker"`
    Traction TractionConfig `yaml:"traction"`
    Registry RegistryConfig `yaml:"registry"`
    Sessions SessionsConfig `yaml:"sessions"`
    Crypto   CryptoConfig   `yaml:"crypto"`
    Journal  JournalConfig  `yaml:"journal"`
    Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
    Listen string `yaml:"listen"`
}

type BrokerConfig struct {
    Addr     string `yaml:"addr"`
    Username string `yaml:"username"`
    Password string `yaml:"password"`
    DB       int    `yaml:"db"`
    KeyPrefix string `yaml:"key_prefix"`
    Topic    string `yaml:"topic"`
    ConsumerGroup string `yaml:"consumer_group"`
    ConsumerName  string `yaml:"consumer_name"`
    ReadCount int   `yaml:"read_count"`
    BlockMs   int   `yaml:"block_ms"`
    RejectStream string `yaml:"reject_stream"`
    MaxInFlight  int    `yaml:"max_in_flight"`
    // Fallbacks applied when a command omits the matching header.
    DefaultTenantID string `yaml:"default_tenant_id"`
    DefaultWalletID string `yaml:"default_wallet_id"`
}

type TractionConfig struct {
    APIBase string `yaml:"api_base"`
    // Tenant API key used to request a ledger token when a session has none.
    APIKey           string `yaml:"api_key"`
    RequestTimeoutMs int    `yaml:"request_timeout_ms"`
    PollIntervalMs   int    `yaml:"poll_interval_ms"`
    PollTimeoutMs    int    `yaml:"poll_timeout_ms"`
}

type RegistryConfig struct {
    APIBase          string `yaml:"api_base"`
    RequestTimeoutMs int    `yaml:"request_timeout_ms"`
}

type SessionsConfig struct {
    MaxEntries int `yaml:"max_entries"`
    TTLSeconds int `yaml:"ttl_seconds"`
}

type CryptoConfig struct {
    // Base64 (raw) 32-byte symmetric key for token sealing.
    Key     string `yaml:"key"`
    KeyFile string `yaml:"key_file"`
}

type JournalConfig struct {
    Enabled bool   `yaml:"enabled"`
    DSN     string `yaml:"dsn"`
    MaxConns int   `yaml:"max_conns"`
}

type LoggingConfig struct {
    Level  string `yaml:"level"`
    Buffer int    `yaml:"buffer"`
    Output string `yaml:"output"`
}

// KnownTopics is the closed set of command streams the adapter may attach to.
var KnownTopics = []string{"showcase-cmd", "showcase-cmd-test"}

func Load(path string) (*Config, error) {
    b, err := os.ReadFile(path)
    if err != nil {
        return nil, err
    }
    var cfg Config
    if err := yaml.Unmarshal(b, &cfg); err != nil {
        return nil, err
    }
    if cfg.Server.Listen == "" {
        cfg.Server.Listen = ":7710"
    }
    // Env overrides for secrets
    if v := os.Getenv("ADAPTER_BROKER_PASSWORD"); v != "" {
        cfg.Broker.Password = v
    }
    if v := os.Getenv("ADAPTER_BROKER_PASSWORD_FILE"); v != "" {
        if b, err := os.ReadFile(v); err == nil { cfg.Broker.Password = strings.TrimSpace(string(b)) }
    }
    if v := os.Getenv("ADAPTER_CRYPTO_KEY"); v != "" {
        cfg.Crypto.Key = v
    }
    if v := os.Getenv("ADAPTER_TRACTION_API_KEY"); v != "" {
        cfg.Traction.APIKey = v
    }
    if v := os.Getenv("ADAPTER_JOURNAL_DSN"); v != "" {
        cfg.Journal.DSN = v
    }
    if cfg.Crypto.Key == "" && cfg.Crypto.KeyFile != "" {
        b, err := os.ReadFile(cfg.Crypto.KeyFile)
        if err != nil { return nil, fmt.Errorf("read crypto key_file: %w", err) }
        cfg.Crypto.Key = strings.TrimSpace(string(b))
    }
    // A consumer without a sealing key cannot read any token header; fail at
    // startup rather than per message.
    if cfg.Crypto.Key == "" {
        return nil, errors.New("crypto key not configured")
    }
    // Defaults for the broker consumer
    if cfg.Broker.Topic == "" { cfg.Broker.Topic = "showcase-cmd" }
    if cfg.Broker.ConsumerGroup == "" { cfg.Broker.ConsumerGroup = "showcase-adapter" }
    if cfg.Broker.ReadCount <= 0 { cfg.Broker.ReadCount = 10 }
    if cfg.Broker.BlockMs <= 0 { cfg.Broker.BlockMs = 5000 }
    if cfg.Broker.RejectStream == "" { cfg.Broker.RejectStream = cfg.Broker.Topic + ":rejected" }
    if cfg.Broker.MaxInFlight <= 0 { cfg.Broker.MaxInFlight = 8 }
    if !knownTopic(cfg.Broker.Topic) {
        return nil, fmt.Errorf("unknown topic %q", cfg.Broker.Topic)
    }
    // Defaults for HTTP clients and polling
    if cfg.Traction.RequestTimeoutMs <= 0 { cfg.Traction.RequestTimeoutMs = 30000 }
    if cfg.Registry.RequestTimeoutMs <= 0 { cfg.Registry.RequestTimeoutMs = 30000 }
    if cfg.Traction.PollIntervalMs <= 0 { cfg.Traction.PollIntervalMs = 2000 }
    if cfg.Traction.PollTimeoutMs <= 0 { cfg.Traction.PollTimeoutMs = 120000 }
    // Defaults for the session cache
    if cfg.Sessions.MaxEntries <= 0 { cfg.Sessions.MaxEntries = 25 }
    if cfg.Sessions.TTLSeconds <= 0 { cfg.Sessions.TTLSeconds = 600 }
    if cfg.Journal.Enabled && cfg.Journal.MaxConns <= 0 { cfg.Journal.MaxConns = 4 }
    return &cfg, nil
}

func knownTopic(name string) bool {
    for _, t := range KnownTopics {
        if t == name { return true }
    }
    return false
}

func (c *Config) String() string {
    return fmt.Sprintf("listen=%s topic=%s", c.Server.Listen, c.Broker.Topic)
}
