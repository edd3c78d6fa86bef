package depth

import "strings"

// QuoteStrategy decides which side of a pair is the quote asset. baseIsToken0
// is true when token0 is the asset being priced.
type QuoteStrategy interface {
	BaseIsToken0(symbol0, symbol1 string, price0USD, price1USD float64) bool
}

// defaultQuoteSymbols are assets conventionally used as the pricing side of a
// pair: stables first, then the wrapped natives and BTC.
var defaultQuoteSymbols = []string{
	"USDT", "USDC", "DAI", "BUSD", "FDUSD", "TUSD", "USDP", "USDD",
	"WETH", "WBNB", "WMATIC", "WAVAX", "WFTM", "WBTC",
}

// SymbolTableStrategy assigns the quote side from a known-symbol table. When
// exactly one side matches the table that side is the quote. Ambiguous or
// unmatched pairs fall back to USD price: the token worth less than a dollar
// is assumed to be the one being priced.
type SymbolTableStrategy struct {
	quotes map[string]bool
}

func NewSymbolTableStrategy(extra ...string) *SymbolTableStrategy {
	quotes := make(map[string]bool, len(defaultQuoteSymbols)+len(extra))
	for _, s := range defaultQuoteSymbols {
		quotes[s] = true
	}
	for _, s := range extra {
		quotes[strings.ToUpper(s)] = true
	}
	return &SymbolTableStrategy{quotes: quotes}
}

func (s *SymbolTableStrategy) BaseIsToken0(symbol0, symbol1 string, price0USD, price1USD float64) bool {
	q0 := s.quotes[strings.ToUpper(symbol0)]
	q1 := s.quotes[strings.ToUpper(symbol1)]
	if q0 != q1 {
		// Exactly one side is a known quote asset; the other is the base.
		return q1
	}
	if price0USD < 1 && price1USD >= 1 {
		return true
	}
	if price1USD < 1 && price0USD >= 1 {
		return false
	}
	// No signal either way; price token0 in units of token1.
	return true
}
