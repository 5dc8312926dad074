// Package config builds the node's runtime Config from flags, environment
// variables (VELTAROS_ prefix), and defaults, via spf13/viper bound to
// spf13/pflag.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Network NetworkConfig
	API     APIConfig
	Log     LogConfig
	Storage StorageConfig
}

type NetworkConfig struct {
	ListenAddr     string
	Nethash        string
	CurrentVersion string
	MinVersion     string
	OS             string
	Port           int

	Seeds []string // "ip:port" entries; the frozen whitelist

	MaxUpdatePeers     int
	RefreshInterval    time.Duration
	BanManagerInterval time.Duration
	WriteQueueDepth    int
	OutboundTimeout    time.Duration
}

type APIConfig struct {
	Enabled      bool
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	AllowedOrigins  []string
	APIKey          string
	RateLimitPerSec float64
	RateLimitBurst  float64
}

type LogConfig struct {
	Level  string // debug|info|warn|error
	Format string // json|text
}

type StorageConfig struct {
	DataDir        string
	PeerDBPath     string
	BlockStorePath string
	NonceStorePath string
}

func defaults(v *viper.Viper) {
	v.SetDefault("network.listenAddr", "0.0.0.0:4000")
	v.SetDefault("network.nethash", "veltaros-mainnet")
	v.SetDefault("network.currentVersion", "1.0.0")
	v.SetDefault("network.minVersion", "1.0.0")
	v.SetDefault("network.os", "linux")
	v.SetDefault("network.port", 4000)
	v.SetDefault("network.seeds", []string{})
	v.SetDefault("network.maxUpdatePeers", 20)
	v.SetDefault("network.refreshInterval", 10*time.Minute)
	v.SetDefault("network.banManagerInterval", time.Minute)
	v.SetDefault("network.writeQueueDepth", 128)
	v.SetDefault("network.outboundTimeout", 5*time.Second)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listenAddr", "127.0.0.1:8080")
	v.SetDefault("api.readTimeout", 10*time.Second)
	v.SetDefault("api.writeTimeout", 10*time.Second)
	v.SetDefault("api.idleTimeout", 60*time.Second)
	v.SetDefault("api.allowedOrigins", []string{})
	v.SetDefault("api.apiKey", "")
	v.SetDefault("api.rateLimitPerSec", 5.0)
	v.SetDefault("api.rateLimitBurst", 20.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("storage.dataDir", "data")
	v.SetDefault("storage.peerDbPath", "data/peers.db")
	v.SetDefault("storage.blockStorePath", "data/blocks.json")
	v.SetDefault("storage.nonceStorePath", "data/nonces.json")
}

// Parsed wraps the resolved Config returned by ParseNodeFlags.
type Parsed struct {
	Config Config
}

// ParseNodeFlags builds a pflag.FlagSet for the node binary, binds it and
// the environment into viper, and returns the resolved, validated Config.
func ParseNodeFlags(args []string) (Parsed, error) {
	fs := pflag.NewFlagSet("veltaros-node", pflag.ContinueOnError)

	fs.String("network.listenAddr", "", "P2P/HTTP listen address (ip:port)")
	fs.String("network.nethash", "", "Network hash identifying this chain")
	fs.String("network.currentVersion", "", "This node's advertised version")
	fs.String("network.minVersion", "", "Minimum acceptable peer version")
	fs.String("network.os", "", "OS string advertised to peers")
	fs.Int("network.port", 0, "Port advertised to peers")
	fs.StringSlice("network.seeds", nil, "Comma-separated seed peers (ip:port,ip:port,...)")
	fs.Int("network.maxUpdatePeers", 0, "Maximum peers accepted per refresh cycle")
	fs.Duration("network.refreshInterval", 0, "Peer-exchange refresh interval")
	fs.Duration("network.banManagerInterval", 0, "Ban-expiry sweep interval")

	fs.Bool("api.enabled", true, "Enable the HTTP API")
	fs.String("api.listenAddr", "", "HTTP API listen address (ip:port)")
	fs.String("api.apiKey", "", "Optional API key; no endpoint of the node requires it")
	fs.StringSlice("api.allowedOrigins", nil, "Comma-separated allowed CORS origins")

	fs.String("log.level", "", "Log level: debug|info|warn|error")
	fs.String("log.format", "", "Log format: json|text")

	fs.String("storage.dataDir", "", "Data directory for node storage")

	if err := fs.Parse(args); err != nil {
		return Parsed{}, err
	}

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("VELTAROS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAll(v, fs, []string{
		"network.listenAddr", "network.nethash", "network.currentVersion", "network.minVersion",
		"network.os", "network.port", "network.seeds", "network.maxUpdatePeers",
		"network.refreshInterval", "network.banManagerInterval", "api.enabled", "api.listenAddr",
		"api.apiKey", "api.allowedOrigins", "log.level", "log.format", "storage.dataDir",
	})

	cfg := Config{
		Network: NetworkConfig{
			ListenAddr:         v.GetString("network.listenAddr"),
			Nethash:            v.GetString("network.nethash"),
			CurrentVersion:     v.GetString("network.currentVersion"),
			MinVersion:         v.GetString("network.minVersion"),
			OS:                 v.GetString("network.os"),
			Port:               v.GetInt("network.port"),
			Seeds:              v.GetStringSlice("network.seeds"),
			MaxUpdatePeers:     v.GetInt("network.maxUpdatePeers"),
			RefreshInterval:    v.GetDuration("network.refreshInterval"),
			BanManagerInterval: v.GetDuration("network.banManagerInterval"),
			WriteQueueDepth:    v.GetInt("network.writeQueueDepth"),
			OutboundTimeout:    v.GetDuration("network.outboundTimeout"),
		},
		API: APIConfig{
			Enabled:         v.GetBool("api.enabled"),
			ListenAddr:      v.GetString("api.listenAddr"),
			ReadTimeout:     v.GetDuration("api.readTimeout"),
			WriteTimeout:    v.GetDuration("api.writeTimeout"),
			IdleTimeout:     v.GetDuration("api.idleTimeout"),
			AllowedOrigins:  v.GetStringSlice("api.allowedOrigins"),
			APIKey:          v.GetString("api.apiKey"),
			RateLimitPerSec: v.GetFloat64("api.rateLimitPerSec"),
			RateLimitBurst:  v.GetFloat64("api.rateLimitBurst"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Storage: StorageConfig{
			DataDir:        v.GetString("storage.dataDir"),
			PeerDBPath:     v.GetString("storage.peerDbPath"),
			BlockStorePath: v.GetString("storage.blockStorePath"),
			NonceStorePath: v.GetString("storage.nonceStorePath"),
		},
	}

	if err := validate(cfg); err != nil {
		return Parsed{}, err
	}
	return Parsed{Config: cfg}, nil
}

func bindAll(v *viper.Viper, fs *pflag.FlagSet, keys []string) {
	for _, k := range keys {
		_ = v.BindPFlag(k, fs.Lookup(k))
	}
}

func validate(cfg Config) error {
	if cfg.Network.ListenAddr == "" {
		return errors.New("network.listenAddr must not be empty")
	}
	if cfg.Network.Nethash == "" {
		return errors.New("network.nethash must not be empty")
	}
	if cfg.Network.MaxUpdatePeers <= 0 || cfg.Network.MaxUpdatePeers > 4096 {
		return errors.Errorf("network.maxUpdatePeers out of range: %d", cfg.Network.MaxUpdatePeers)
	}
	if cfg.Network.Port <= 0 {
		return errors.New("network.port must be > 0")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Errorf("invalid log.level: %q", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return errors.Errorf("invalid log.format: %q", cfg.Log.Format)
	}

	if cfg.API.Enabled && cfg.API.ListenAddr == "" {
		return errors.New("api.listenAddr must not be empty when api.enabled=true")
	}
	if cfg.Storage.DataDir == "" {
		return errors.New("storage.dataDir must not be empty")
	}
	return nil
}
