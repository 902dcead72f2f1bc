package domain

import "time"

// MergeResult records the outcome of a merge of complementary tokens into collateral.
type MergeResult struct {
	MarketID     string
	Amount       float64
	TxHash       string
	GasUsedPOL   float64
	USDCReceived float64
	Success      bool
	Error        string
	ExecutedAt   time.Time
}
