package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"depthscope/internal/cache"
	"depthscope/internal/chain"
	"depthscope/internal/config"
	"depthscope/internal/depth"
	"depthscope/internal/server"
)

func main() {
	root := &cobra.Command{
		Use:          "depthscope",
		Short:        "AMM pool depth as an order book",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the depth API over HTTP and WebSocket",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "listen address")
	serveCmd.Flags().Int64("chain-id", 0, "chain id for flag-supplied endpoints")
	serveCmd.Flags().StringSlice("endpoints", nil, "RPC endpoints (comma-separated)")
	serveCmd.Flags().String("multicall", "", "aggregator contract address")
	serveCmd.Flags().String("state-view", "", "state-view contract address for wide pool identifiers")
	serveCmd.Flags().Duration("request-timeout", 15*time.Second, "per-request upstream timeout")
	serveCmd.Flags().Duration("stream-interval", 3*time.Second, "websocket push interval")
	serveCmd.Flags().Duration("cache-ttl", 5*time.Second, "depth cache fresh window")
	serveCmd.Flags().Duration("stale-window", 5*time.Minute, "stale-on-failure window")
	serveCmd.Flags().String("cache-backend", "memory", "depth cache backend (memory, redis)")
	serveCmd.Flags().Int("cache-max-entries", 1024, "memory cache soft entry cap")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "redis address for the redis backend")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	depthCmd := &cobra.Command{
		Use:   "depth",
		Short: "Run one depth query and print the result",
		RunE:  runDepth,
	}

	depthCmd.Flags().Int64("chain-id", 0, "chain id")
	depthCmd.Flags().StringSlice("endpoints", nil, "RPC endpoints (comma-separated)")
	depthCmd.Flags().String("multicall", "", "aggregator contract address")
	depthCmd.Flags().String("state-view", "", "state-view contract address for wide pool identifiers")
	depthCmd.Flags().String("pool", "", "pool address or 32-byte pool identifier")
	depthCmd.Flags().Float64("usd-price", 0, "USD reference price of the base token")
	depthCmd.Flags().Int("max-levels", 0, "levels per side, 0 means unlimited")
	depthCmd.Flags().Float64("precision", 0, "price bucket width, 0 disables subdivision")
	depthCmd.Flags().String("dex", "", "venue hint forwarded to alternate providers")
	depthCmd.Flags().String("token0", "", "token0 address (wide pool identifiers)")
	depthCmd.Flags().String("token1", "", "token1 address (wide pool identifiers)")
	depthCmd.Flags().Int("tick-spacing", 0, "tick spacing (wide pool identifiers)")
	depthCmd.Flags().Duration("request-timeout", 15*time.Second, "upstream timeout")
	depthCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(depthCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain is required (config file or --chain-id/--endpoints)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, closeAll, err := buildBackends(cfg.Chains, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	store, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}

	svc := depth.NewService(backends, store, depth.ServiceOptions{
		TTL:         cfg.CacheTTL,
		StaleWindow: cfg.StaleWindow,
		Logger:      logger,
	})

	srv := server.New(svc, cfg.Listen, server.Options{
		RequestTimeout: cfg.RequestTimeout,
		StreamInterval: cfg.StreamInterval,
		Logger:         logger,
	})

	logger.Info("depthscope start",
		zap.String("listen", cfg.Listen),
		zap.Int("chains", len(cfg.Chains)),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Duration("cache_ttl", cfg.CacheTTL),
	)

	return srv.Run(ctx)
}

func runDepth(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain is required (config file or --chain-id/--endpoints)")
	}

	pool, _ := cmd.Flags().GetString("pool")
	usdPrice, _ := cmd.Flags().GetFloat64("usd-price")
	maxLevels, _ := cmd.Flags().GetInt("max-levels")
	precision, _ := cmd.Flags().GetFloat64("precision")
	dex, _ := cmd.Flags().GetString("dex")
	token0, _ := cmd.Flags().GetString("token0")
	token1, _ := cmd.Flags().GetString("token1")
	tickSpacing, _ := cmd.Flags().GetInt("tick-spacing")
	chainID, _ := cmd.Flags().GetInt64("chain-id")

	backends, closeAll, err := buildBackends(cfg.Chains, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	svc := depth.NewService(backends, cache.NewMemoryStore(0, nil), depth.ServiceOptions{Logger: logger})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	result, source, err := svc.Depth(ctx, depth.Request{
		ChainID:     chainID,
		Pool:        pool,
		USDPrice:    usdPrice,
		MaxLevels:   maxLevels,
		Precision:   precision,
		Dex:         dex,
		Token0:      token0,
		Token1:      token1,
		TickSpacing: tickSpacing,
	})
	if err != nil {
		return err
	}

	out := struct {
		Result interface{} `json:"result"`
		Source string      `json:"source"`
	}{Result: result, Source: string(source)}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func buildBackends(chains map[int64]config.ChainConfig, logger *zap.Logger) (map[int64]depth.BackendConfig, func(), error) {
	backends := make(map[int64]depth.BackendConfig, len(chains))
	clients := make([]*chain.Client, 0, len(chains))
	closeAll := func() {
		for _, client := range clients {
			client.Close()
		}
	}

	for chainID, chainCfg := range chains {
		if len(chainCfg.Endpoints) == 0 {
			closeAll()
			return nil, nil, fmt.Errorf("chain %d: endpoints are required", chainID)
		}
		client, err := chain.NewClient(chainCfg.Endpoints, common.HexToAddress(chainCfg.Multicall), logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("chain %d: %w", chainID, err)
		}
		clients = append(clients, client)

		backends[chainID] = depth.BackendConfig{
			Reader:    client,
			StateView: common.HexToAddress(chainCfg.StateView),
		}
	}

	return backends, closeAll, nil
}

func buildStore(cfg config.Config, logger *zap.Logger) (cache.Store, error) {
	switch cfg.CacheBackend {
	case "", "memory":
		return cache.NewMemoryStore(cfg.CacheMaxEntries, nil), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return cache.NewRedisStore(client, cfg.StaleWindow, logger), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
