package model

import "math/big"

// PoolState is a point-in-time snapshot of the on-chain fields a depth
// computation needs. Concentrated pools fill SqrtPriceX96/Tick/Liquidity,
// constant-product pools fill Reserve0/Reserve1.
type PoolState struct {
	Token0       string
	Token1       string
	SqrtPriceX96 *big.Int
	Tick         int
	Liquidity    *big.Int
	TickSpacing  int
	Fee          uint32
	Reserve0     *big.Int
	Reserve1     *big.Int
}

// TickLiquidity is the liquidity boundary at one initialized tick.
type TickLiquidity struct {
	LiquidityGross *big.Int
	LiquidityNet   *big.Int
}
