package regime

import (
	"fmt"
	"math"
	"sort"

	"github.com/rustyeddy/ashare/market"
)

// DefaultTheme names the theme used when nothing can be derived.
const DefaultTheme = "行业轮动"

const maxThemes = 2

// Theme is one leading group of the day.
type Theme struct {
	Name      string   `json:"name"`
	Source    string   `json:"source"` // industry, concept, movers, default
	MeanChg   float64  `json:"mean_chg"`
	Count     int      `json:"count"`
	AmountSum float64  `json:"amount_sum"`
	Strength  float64  `json:"strength"` // 0..1
	Evidence  []string `json:"evidence"`
}

// Themes returns up to two themes from the snapshot: the industries with
// the highest mean change, else concept boards, else the top movers by
// code. With no snapshot it returns the single default theme.
func Themes(snap *market.Snapshot) []Theme {
	if snap.Len() == 0 {
		return []Theme{defaultTheme()}
	}
	if snap.HasIndustry() {
		return topGroups(snap, "industry", func(q market.Quote) []string {
			if q.Industry == "" {
				return nil
			}
			return []string{q.Industry}
		})
	}
	if out := topGroups(snap, "concept", func(q market.Quote) []string { return q.Concepts }); len(out) > 0 {
		return out
	}
	return topMovers(snap)
}

// Strength maps a mean change in percent to 0..1; +5% or more is 1.
func Strength(meanChg float64) float64 {
	return math.Max(0, math.Min(1, meanChg/5))
}

// StrengthOf returns the strength of the theme named name, 0 when absent.
func StrengthOf(themes []Theme, name string) float64 {
	for _, t := range themes {
		if t.Name == name {
			return t.Strength
		}
	}
	return 0
}

func topGroups(snap *market.Snapshot, source string, keys func(market.Quote) []string) []Theme {
	type agg struct {
		sum, amount float64
		n           int
	}
	groups := make(map[string]*agg)
	for _, q := range snap.Quotes {
		if math.IsNaN(q.ChangePct) {
			continue
		}
		for _, k := range keys(q) {
			g, ok := groups[k]
			if !ok {
				g = &agg{}
				groups[k] = g
			}
			g.sum += q.ChangePct
			g.amount += q.Amount
			g.n++
		}
	}

	out := make([]Theme, 0, len(groups))
	for name, g := range groups {
		mean := g.sum / float64(g.n)
		out = append(out, Theme{
			Name:      name,
			Source:    source,
			MeanChg:   mean,
			Count:     g.n,
			AmountSum: g.amount,
			Strength:  Strength(mean),
			Evidence:  []string{fmt.Sprintf("均值涨跌幅 %.2f%%，%d只", mean, g.n)},
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MeanChg != out[j].MeanChg {
			return out[i].MeanChg > out[j].MeanChg
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > maxThemes {
		out = out[:maxThemes]
	}
	return out
}

func topMovers(snap *market.Snapshot) []Theme {
	quotes := append([]market.Quote(nil), snap.Quotes...)
	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].ChangePct > quotes[j].ChangePct })
	var out []Theme
	for _, q := range quotes {
		if len(out) == maxThemes {
			break
		}
		if math.IsNaN(q.ChangePct) {
			continue
		}
		out = append(out, Theme{
			Name:     "主题-" + q.Code,
			Source:   "movers",
			MeanChg:  q.ChangePct,
			Count:    1,
			Strength: Strength(q.ChangePct),
			Evidence: []string{fmt.Sprintf("近1日涨跌幅 %.2f%%", q.ChangePct)},
		})
	}
	if len(out) == 0 {
		return []Theme{defaultTheme()}
	}
	return out
}

func defaultTheme() Theme {
	return Theme{Name: DefaultTheme, Source: "default", Evidence: []string{"缺少板块口径"}}
}
