package depth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"depthscope/internal/cache"
	"depthscope/internal/chain"
	"depthscope/internal/dex"
	"depthscope/internal/model"
)

const (
	defaultTTL         = 5 * time.Second
	defaultStaleWindow = 5 * time.Minute
	defaultV4Spacing   = 60
)

// BackendConfig wires one chain into the service. StateView is the singleton
// state-view contract used for wide pool identifiers; leaving it zero makes
// those identifiers unsupported on that chain.
type BackendConfig struct {
	Reader    chain.Reader
	StateView common.Address
}

// ServiceOptions tune the Service. Zero values select defaults.
type ServiceOptions struct {
	TTL         time.Duration
	StaleWindow time.Duration
	Quote       QuoteStrategy
	Alternate   Provider
	Logger      *zap.Logger
}

type backend struct {
	reader    chain.Reader
	stateView common.Address
	detector  *dex.Detector
	state     *dex.StateFetcher
	metadata  *dex.MetadataFetcher
	scanner   *BitmapScanner
	ticks     *TickLoader
}

// Service orchestrates a depth query: validate, consult the cache, detect the
// pool type, fetch state, build the ladder, store. Concurrent identical
// requests share one computation.
type Service struct {
	backends    map[int64]*backend
	store       cache.Store
	ttl         time.Duration
	staleWindow time.Duration
	quote       QuoteStrategy
	alternate   Provider
	logger      *zap.Logger
	group       singleflight.Group
}

func NewService(backends map[int64]BackendConfig, store cache.Store, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	staleWindow := opts.StaleWindow
	if staleWindow <= 0 {
		staleWindow = defaultStaleWindow
	}
	quote := opts.Quote
	if quote == nil {
		quote = NewSymbolTableStrategy()
	}

	wired := make(map[int64]*backend, len(backends))
	for chainID, cfg := range backends {
		wired[chainID] = &backend{
			reader:    cfg.Reader,
			stateView: cfg.StateView,
			detector:  dex.NewDetector(cfg.Reader),
			state:     dex.NewStateFetcher(cfg.Reader),
			metadata:  dex.NewMetadataFetcher(cfg.Reader, nil, logger),
			scanner:   NewBitmapScanner(cfg.Reader, logger),
			ticks:     NewTickLoader(cfg.Reader, logger),
		}
	}

	return &Service{
		backends:    wired,
		store:       store,
		ttl:         ttl,
		staleWindow: staleWindow,
		quote:       quote,
		alternate:   opts.Alternate,
		logger:      logger,
	}
}

// Depth answers one query. The source tag reports whether the result came
// from the fresh cache, a live computation, or the stale-on-failure window.
func (s *Service) Depth(ctx context.Context, req Request) (model.DepthResult, model.Source, error) {
	b, err := s.validate(req)
	if err != nil {
		return model.DepthResult{}, "", err
	}

	key := cache.Key{
		ChainID:   req.ChainID,
		Pool:      req.Pool,
		MaxLevels: req.MaxLevels,
		Precision: req.Precision,
		Dex:       req.Dex,
	}

	cached, age, hit := s.store.Get(ctx, key)
	if hit && age <= s.ttl {
		return cached, model.SourceCache, nil
	}

	value, err, _ := s.group.Do(key.String(), func() (interface{}, error) {
		result, err := s.compute(ctx, b, req)
		if err != nil {
			return nil, err
		}
		s.store.Put(ctx, key, result)
		return result, nil
	})
	if err == nil {
		return value.(model.DepthResult), model.SourceRPC, nil
	}

	var reqErr *model.RequestError
	if errors.As(err, &reqErr) && reqErr.Code != model.ErrCodeUpstreamUnavailable {
		return model.DepthResult{}, "", err
	}

	// Upstream trouble: a recent enough cache entry beats an error, and an
	// alternate estimator beats giving up.
	if hit && age <= s.staleWindow {
		s.logger.Warn("serving stale depth",
			zap.String("pool", req.Pool),
			zap.Duration("age", age),
			zap.Error(err))
		return cached, model.SourceStaleCache, nil
	}
	if s.alternate != nil {
		result, altErr := s.alternate.Depth(ctx, req)
		if altErr == nil {
			s.store.Put(ctx, key, result)
			return result, model.SourceRPC, nil
		}
		s.logger.Warn("alternate depth provider failed",
			zap.String("pool", req.Pool),
			zap.Error(altErr))
	}
	if reqErr != nil {
		return model.DepthResult{}, "", err
	}
	return model.DepthResult{}, "", model.NewUpstreamUnavailable(err.Error())
}

func (s *Service) validate(req Request) (*backend, error) {
	if !dex.IsAddress(req.Pool) && !dex.IsPoolID(req.Pool) {
		return nil, model.NewInvalidInput("pool", fmt.Sprintf("malformed pool identifier: %s", req.Pool))
	}
	if req.USDPrice <= 0 || math.IsNaN(req.USDPrice) || math.IsInf(req.USDPrice, 0) {
		return nil, model.NewInvalidInput("usd_price", "usd price must be a positive finite number")
	}
	if req.MaxLevels < 0 {
		return nil, model.NewInvalidInput("max_levels", "max levels must be >= 0")
	}
	if req.Precision < 0 || math.IsNaN(req.Precision) || math.IsInf(req.Precision, 0) {
		return nil, model.NewInvalidInput("precision", "precision must be >= 0 and finite")
	}

	b, ok := s.backends[req.ChainID]
	if !ok {
		return nil, model.NewUnsupported(fmt.Sprintf("chain %d has no configured endpoints", req.ChainID))
	}

	if dex.IsPoolID(req.Pool) {
		if b.stateView == (common.Address{}) {
			return nil, model.NewUnsupported(fmt.Sprintf("chain %d has no state-view contract for wide pool identifiers", req.ChainID))
		}
		if !dex.IsAddress(req.Token0) {
			return nil, model.NewInvalidInput("token0", "token0 address is required for wide pool identifiers")
		}
		if !dex.IsAddress(req.Token1) {
			return nil, model.NewInvalidInput("token1", "token1 address is required for wide pool identifiers")
		}
		if req.TickSpacing < 0 {
			return nil, model.NewInvalidInput("tick_spacing", "tick spacing must be >= 0")
		}
	}

	return b, nil
}

func (s *Service) compute(ctx context.Context, b *backend, req Request) (model.DepthResult, error) {
	poolType, err := b.detector.Detect(ctx, req.Pool)
	if err != nil {
		return model.DepthResult{}, err
	}

	switch poolType {
	case model.PoolTypeV2:
		return s.computeV2(ctx, b, req)
	case model.PoolTypeV3:
		return s.computeV3(ctx, b, req)
	case model.PoolTypeV4:
		return s.computeV4(ctx, b, req)
	default:
		return model.DepthResult{}, model.NewUnsupported(fmt.Sprintf("pool type %s", poolType))
	}
}

func (s *Service) computeV2(ctx context.Context, b *backend, req Request) (model.DepthResult, error) {
	pool := common.HexToAddress(req.Pool)
	state, err := b.state.FetchV2State(ctx, pool)
	if err != nil {
		return model.DepthResult{}, model.NewUpstreamUnavailable(err.Error())
	}

	meta0, meta1, err := s.tokenPair(ctx, b, state.Token0, state.Token1)
	if err != nil {
		return model.DepthResult{}, err
	}

	r0 := bigToFloat(state.Reserve0)
	r1 := bigToFloat(state.Reserve1)
	ratio := (r1 / math.Pow(10, float64(meta1.Decimals))) / (r0 / math.Pow(10, float64(meta0.Decimals)))
	baseIsToken0 := s.baseIsToken0(meta0, meta1, ratio, req.USDPrice)

	baseMeta, quoteMeta := meta0, meta1
	if !baseIsToken0 {
		baseMeta, quoteMeta = meta1, meta0
	}

	bids, asks := BuildConstantProduct(ConstantProductParams{
		Reserve0:      r0,
		Reserve1:      r1,
		BaseIsToken0:  baseIsToken0,
		BaseDecimals:  baseMeta.Decimals,
		QuoteDecimals: quoteMeta.Decimals,
		BasePriceUSD:  req.USDPrice,
		Levels:        req.MaxLevels,
	})

	return assemble(bids, asks, req.USDPrice, baseMeta, quoteMeta, model.PoolTypeV2), nil
}

func (s *Service) computeV3(ctx context.Context, b *backend, req Request) (model.DepthResult, error) {
	pool := common.HexToAddress(req.Pool)
	state, err := b.state.FetchV3State(ctx, pool)
	if err != nil {
		return model.DepthResult{}, model.NewUpstreamUnavailable(err.Error())
	}

	meta0, meta1, err := s.tokenPair(ctx, b, state.Token0, state.Token1)
	if err != nil {
		return model.DepthResult{}, err
	}

	ticks, err := b.scanner.ScanV3(ctx, pool, state.TickSpacing)
	if err != nil {
		return model.DepthResult{}, model.NewUpstreamUnavailable(err.Error())
	}
	liquidity, err := b.ticks.LoadV3(ctx, pool, ticks)
	if err != nil {
		return model.DepthResult{}, model.NewUpstreamUnavailable(err.Error())
	}

	return s.buildConcentrated(req, state, meta0, meta1, ticks, liquidity, model.PoolTypeV3), nil
}

func (s *Service) computeV4(ctx context.Context, b *backend, req Request) (model.DepthResult, error) {
	poolID, err := poolIDBytes(req.Pool)
	if err != nil {
		return model.DepthResult{}, model.NewInvalidInput("pool", err.Error())
	}
	spacing := req.TickSpacing
	if spacing == 0 {
		spacing = defaultV4Spacing
	}
	token0 := common.HexToAddress(req.Token0)
	token1 := common.HexToAddress(req.Token1)

	state, err := b.state.FetchV4State(ctx, b.stateView, poolID, token0, token1, spacing)
	if err != nil {
		return model.DepthResult{}, model.NewUpstreamUnavailable(err.Error())
	}

	meta0, meta1, err := s.tokenPair(ctx, b, state.Token0, state.Token1)
	if err != nil {
		return model.DepthResult{}, err
	}

	ticks, err := b.scanner.ScanV4(ctx, b.stateView, poolID, state.TickSpacing)
	if err != nil {
		return model.DepthResult{}, model.NewUpstreamUnavailable(err.Error())
	}
	liquidity, err := b.ticks.LoadV4(ctx, b.stateView, poolID, ticks)
	if err != nil {
		return model.DepthResult{}, model.NewUpstreamUnavailable(err.Error())
	}

	return s.buildConcentrated(req, state, meta0, meta1, ticks, liquidity, model.PoolTypeV4), nil
}

func (s *Service) buildConcentrated(req Request, state model.PoolState, meta0, meta1 model.TokenMeta, ticks []int, liquidity map[int]model.TickLiquidity, poolType model.PoolType) model.DepthResult {
	ratio := RatioFromSqrtX96(state.SqrtPriceX96, meta0.Decimals, meta1.Decimals)
	baseIsToken0 := s.baseIsToken0(meta0, meta1, ratio, req.USDPrice)

	baseMeta, quoteMeta := meta0, meta1
	if !baseIsToken0 {
		baseMeta, quoteMeta = meta1, meta0
	}

	bids, asks := BuildConcentrated(ConcentratedParams{
		CurrentTick:     state.Tick,
		ActiveLiquidity: bigToFloat(state.Liquidity),
		Ticks:           ticks,
		TickLiquidity:   liquidity,
		BaseIsToken0:    baseIsToken0,
		BaseDecimals:    baseMeta.Decimals,
		QuoteDecimals:   quoteMeta.Decimals,
		BasePriceUSD:    req.USDPrice,
		MaxLevels:       req.MaxLevels,
		Precision:       req.Precision,
	})

	return assemble(bids, asks, req.USDPrice, baseMeta, quoteMeta, poolType)
}

func (s *Service) tokenPair(ctx context.Context, b *backend, addr0, addr1 string) (model.TokenMeta, model.TokenMeta, error) {
	token0 := common.HexToAddress(addr0)
	token1 := common.HexToAddress(addr1)
	metas, err := b.metadata.FetchTokenMetas(ctx, []common.Address{token0, token1})
	if err != nil {
		return model.TokenMeta{}, model.TokenMeta{}, model.NewUpstreamUnavailable(err.Error())
	}
	return metas[token0], metas[token1], nil
}

// baseIsToken0 asks the quote strategy. The fallback prices are derived under
// the token0-as-base hypothesis: price0 is the caller's USD reference and
// price1 follows from the pool's own exchange ratio.
func (s *Service) baseIsToken0(meta0, meta1 model.TokenMeta, ratio, usdPrice float64) bool {
	price0 := usdPrice
	price1 := 0.0
	if ratio > 0 && !math.IsInf(ratio, 0) && !math.IsNaN(ratio) {
		price1 = usdPrice / ratio
	}
	return s.quote.BaseIsToken0(meta0.Symbol, meta1.Symbol, price0, price1)
}

func assemble(bids, asks []model.DepthLevel, usdPrice float64, baseMeta, quoteMeta model.TokenMeta, poolType model.PoolType) model.DepthResult {
	if bids == nil {
		bids = []model.DepthLevel{}
	}
	if asks == nil {
		asks = []model.DepthLevel{}
	}
	return model.DepthResult{
		Bids:          bids,
		Asks:          asks,
		CurrentPrice:  usdPrice,
		BaseSymbol:    baseMeta.Symbol,
		QuoteSymbol:   quoteMeta.Symbol,
		BaseDecimals:  baseMeta.Decimals,
		QuoteDecimals: quoteMeta.Decimals,
		PoolType:      poolType,
	}
}

func poolIDBytes(identifier string) ([32]byte, error) {
	var id [32]byte
	raw, err := hexutil.Decode(identifier)
	if err != nil {
		return id, fmt.Errorf("decode pool identifier: %w", err)
	}
	if len(raw) != 32 {
		return id, fmt.Errorf("pool identifier is %d bytes, want 32", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	return f
}
