package model

// TokenMeta holds ERC20 metadata for one side of a pool.
type TokenMeta struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}
