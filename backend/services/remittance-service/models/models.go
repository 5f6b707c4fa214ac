package models

// Transfer mirrors the chaincode transfer record for API responses and
// the Postgres mirror table.
type Transfer struct {
	ID          uint64 `json:"id"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Asset       string `json:"asset"`
	Amount      uint64 `json:"amount"`
	Fee         uint64 `json:"fee"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	Status      string `json:"status"`
}

type InitiateRequest struct {
	Recipient   string `json:"recipient"`
	Asset       string `json:"asset"`
	Amount      uint64 `json:"amount"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

type QuoteResponse struct {
	Amount uint64 `json:"amount"`
	Fee    uint64 `json:"fee"`
	Total  uint64 `json:"total"`
}
