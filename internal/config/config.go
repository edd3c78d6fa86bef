package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"depthscope/internal/chain"
)

// ChainConfig describes how to reach one chain.
type ChainConfig struct {
	Endpoints []string `mapstructure:"endpoints"`
	Multicall string   `mapstructure:"multicall"`
	StateView string   `mapstructure:"state-view"`
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Listen          string
	LogLevel        string
	RequestTimeout  time.Duration
	StreamInterval  time.Duration
	CacheTTL        time.Duration
	StaleWindow     time.Duration
	CacheBackend    string
	CacheMaxEntries int
	RedisAddr       string
	Chains          map[int64]ChainConfig
}

// Load merges config file, environment variables, and flags into Config.
// Chains come from the config file's `chains` table; a single chain can also
// be supplied entirely through the chain-id/endpoints flags.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEPTHSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("log-level", "info")
	v.SetDefault("request-timeout", 15*time.Second)
	v.SetDefault("stream-interval", 3*time.Second)
	v.SetDefault("cache-ttl", 5*time.Second)
	v.SetDefault("stale-window", 5*time.Minute)
	v.SetDefault("cache-backend", "memory")
	v.SetDefault("cache-max-entries", 1024)
	v.SetDefault("redis-addr", "localhost:6379")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Listen:          v.GetString("listen"),
		LogLevel:        v.GetString("log-level"),
		RequestTimeout:  v.GetDuration("request-timeout"),
		StreamInterval:  v.GetDuration("stream-interval"),
		CacheTTL:        v.GetDuration("cache-ttl"),
		StaleWindow:     v.GetDuration("stale-window"),
		CacheBackend:    v.GetString("cache-backend"),
		CacheMaxEntries: v.GetInt("cache-max-entries"),
		RedisAddr:       v.GetString("redis-addr"),
	}

	chains, err := loadChains(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Chains = chains

	return cfg, nil
}

func loadChains(v *viper.Viper) (map[int64]ChainConfig, error) {
	chains := make(map[int64]ChainConfig)

	if v.IsSet("chains") {
		raw := make(map[string]ChainConfig)
		if err := v.UnmarshalKey("chains", &raw); err != nil {
			return nil, fmt.Errorf("parse chains: %w", err)
		}
		for key, chainCfg := range raw {
			chainID, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("chain id %q: %w", key, err)
			}
			chains[chainID] = normalize(chainCfg)
		}
	}

	// flag-supplied single chain overrides the file entry for that id
	if v.IsSet("chain-id") && v.IsSet("endpoints") {
		chainID := v.GetInt64("chain-id")
		chains[chainID] = normalize(ChainConfig{
			Endpoints: v.GetStringSlice("endpoints"),
			Multicall: v.GetString("multicall"),
			StateView: v.GetString("state-view"),
		})
	}

	return chains, nil
}

func normalize(cfg ChainConfig) ChainConfig {
	cleaned := make([]string, 0, len(cfg.Endpoints))
	for _, endpoint := range cfg.Endpoints {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint != "" {
			cleaned = append(cleaned, endpoint)
		}
	}
	cfg.Endpoints = cleaned
	if cfg.Multicall == "" {
		cfg.Multicall = chain.DefaultMulticallAddress
	}
	return cfg
}
