package regime

import (
	"testing"

	"github.com/rustyeddy/ashare/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThemesByIndustry(t *testing.T) {
	t.Parallel()

	snap := &market.Snapshot{Quotes: []market.Quote{
		{Code: "1", Industry: "半导体", ChangePct: 4, Amount: 10},
		{Code: "2", Industry: "半导体", ChangePct: 2, Amount: 20},
		{Code: "3", Industry: "银行", ChangePct: 0.5, Amount: 50},
		{Code: "4", Industry: "光伏", ChangePct: 6, Amount: 5},
		{Code: "5", ChangePct: 9},
	}}

	themes := Themes(snap)
	require.Len(t, themes, 2)
	assert.Equal(t, "光伏", themes[0].Name)
	assert.Equal(t, 1.0, themes[0].Strength)
	assert.Equal(t, "半导体", themes[1].Name)
	assert.Equal(t, 2, themes[1].Count)
	assert.InDelta(t, 30, themes[1].AmountSum, 1e-12)
	assert.InDelta(t, 0.6, themes[1].Strength, 1e-12)
	assert.Equal(t, "industry", themes[1].Source)

	assert.InDelta(t, 0.6, StrengthOf(themes, "半导体"), 1e-12)
	assert.Zero(t, StrengthOf(themes, "银行"))
}

func TestThemesFallbacks(t *testing.T) {
	t.Parallel()

	concepts := &market.Snapshot{Quotes: []market.Quote{
		{Code: "1", Concepts: []string{"AI", "算力"}, ChangePct: 3},
		{Code: "2", Concepts: []string{"AI"}, ChangePct: 1},
	}}
	th := Themes(concepts)
	require.Len(t, th, 2)
	assert.Equal(t, "算力", th[0].Name)
	assert.Equal(t, "concept", th[0].Source)

	movers := &market.Snapshot{Quotes: []market.Quote{
		{Code: "600000", ChangePct: 1}, {Code: "000001", ChangePct: 5}, {Code: "300750", ChangePct: -2},
	}}
	th = Themes(movers)
	require.Len(t, th, 2)
	assert.Equal(t, "主题-000001", th[0].Name)
	assert.Equal(t, "主题-600000", th[1].Name)

	th = Themes(nil)
	require.Len(t, th, 1)
	assert.Equal(t, DefaultTheme, th[0].Name)
}
