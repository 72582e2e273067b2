package market

import (
	"time"
)

// Quote is one row of a same-day spot snapshot.
type Quote struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	ChangePct float64   `json:"change_pct"` // percent, 1.5 means +1.5%
	Industry  string    `json:"industry,omitempty"`
	Concepts  []string  `json:"concepts,omitempty"`
	ListDate  time.Time `json:"list_date,omitempty"`
}

// Snapshot is the whole-market spot table.
type Snapshot struct {
	AsOf   time.Time `json:"as_of"`
	Source string    `json:"source"`
	Cache  string    `json:"cache,omitempty"` // "" for a live fetch
	Quotes []Quote   `json:"quotes"`
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Quotes)
}

// HasIndustry reports whether any quote carries an industry label.
func (s *Snapshot) HasIndustry() bool {
	if s == nil {
		return false
	}
	for _, q := range s.Quotes {
		if q.Industry != "" {
			return true
		}
	}
	return false
}

// StockBasic is a code/name pair from the listing table.
type StockBasic struct {
	TSCode string `json:"ts_code"`
	Name   string `json:"name"`
}

// Index proxies used for the regime grade and relative strength.
const (
	IndexSSE     = "sh000001" // exchange composite
	IndexSZSE    = "sz399106" // SZ composite
	IndexChiNext = "sz399006"
)

// RegimeIndices lists the three index proxies in a fixed order.
var RegimeIndices = []string{IndexSSE, IndexSZSE, IndexChiNext}
