package candidates

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/ashare/market"
)

var excludedName = regexp.MustCompile(`ST|\*ST|退`)

// Entry is one symbol of the dynamic universe.
type Entry struct {
	Code     string  `json:"code"`
	Name     string  `json:"name,omitempty"`
	Industry string  `json:"industry,omitempty"`
	Amount   float64 `json:"amount"`
}

// Universe filters the snapshot into the dynamic universe: no ST or
// delisting names, price within [PriceMin, PriceMax], listed at least
// NewStockDays before opt.Now, then the top DynamicPoolSize by amount. With
// RestrictToMainline it keeps only the MainlineTopN industries by summed
// amount; a snapshot without industries is left unrestricted.
func Universe(snap *market.Snapshot, opt Options) []Entry {
	if snap.Len() == 0 {
		return nil
	}
	now := opt.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var quotes []market.Quote
	for _, q := range snap.Quotes {
		if excludedName.MatchString(strings.ToUpper(q.Name)) {
			continue
		}
		if q.Price < opt.PriceMin || q.Price > opt.PriceMax {
			continue
		}
		if !q.ListDate.IsZero() && int(today.Sub(q.ListDate).Hours()/24) < opt.NewStockDays {
			continue
		}
		quotes = append(quotes, q)
	}
	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].Amount > quotes[j].Amount })
	if opt.DynamicPoolSize > 0 && len(quotes) > opt.DynamicPoolSize {
		quotes = quotes[:opt.DynamicPoolSize]
	}

	if opt.RestrictToMainline {
		quotes = restrictMainline(quotes, max(1, opt.MainlineTopN))
	}

	out := make([]Entry, len(quotes))
	for i, q := range quotes {
		out[i] = Entry{Code: q.Code, Name: q.Name, Industry: q.Industry, Amount: q.Amount}
	}
	return out
}

// Mainline returns the top n industries of quotes by summed amount.
func Mainline(quotes []market.Quote, n int) []string {
	sums := make(map[string]float64)
	for _, q := range quotes {
		if q.Industry != "" {
			sums[q.Industry] += q.Amount
		}
	}
	names := make([]string, 0, len(sums))
	for k := range sums {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if sums[names[i]] != sums[names[j]] {
			return sums[names[i]] > sums[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func restrictMainline(quotes []market.Quote, n int) []market.Quote {
	top := Mainline(quotes, n)
	if len(top) == 0 {
		return quotes
	}
	keep := make(map[string]bool, len(top))
	for _, name := range top {
		keep[name] = true
	}
	var out []market.Quote
	for _, q := range quotes {
		if keep[q.Industry] {
			out = append(out, q)
		}
	}
	return out
}
