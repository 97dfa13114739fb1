package models

import "time"

// NetworthSnapshot is one append-only point of the net-worth time series.
// FiatValue is nil when the fiat feed was unavailable at snapshot time; an
// incomplete snapshot is preferred over a missing one.
type NetworthSnapshot struct {
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	EthValue  float64   `json:"ethValue" db:"eth_value"`
	FiatValue *float64  `json:"fiatValue,omitempty" db:"fiat_value"`
}
