package models

import "time"

// Position is the off-chain mirror of an account's lending state, refreshed
// after every submitted transaction. The chain is authoritative.
type Position struct {
	Account   string    `json:"account"`
	Asset     string    `json:"asset"`
	Balance   uint64    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AmountRequest struct {
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

type RepayRequest struct {
	Asset string `json:"asset"`
}

// Loan mirrors the on-chain loan record.
type Loan struct {
	Account      string `json:"account"`
	Asset        string `json:"asset"`
	Principal    uint64 `json:"principal"`
	RateBps      uint64 `json:"rate_bps"`
	Tier         string `json:"tier"`
	OriginatedAt int64  `json:"originated_at"`
	Active       bool   `json:"active"`
	RepaidAt     int64  `json:"repaid_at,omitempty"`
	InterestPaid uint64 `json:"interest_paid,omitempty"`
}

type RepayQuote struct {
	Principal uint64 `json:"principal"`
	Interest  uint64 `json:"interest"`
	Total     uint64 `json:"total"`
}
