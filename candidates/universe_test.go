package candidates

import (
	"testing"
	"time"

	"github.com/rustyeddy/ashare/indicators"
	"github.com/rustyeddy/ashare/market"
	"github.com/stretchr/testify/assert"
)

func indicatorsWithSlope(s *float64) indicators.Snapshot {
	return indicators.Snapshot{Slope20: s}
}

func TestUniverse(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC)
	snap := &market.Snapshot{Quotes: []market.Quote{
		{Code: "1", Name: "甲科技", Price: 20, Amount: 9e9, Industry: "电子"},
		{Code: "2", Name: "*ST乙", Price: 5, Amount: 8e9, Industry: "电子"},
		{Code: "3", Name: "丙退", Price: 5, Amount: 8e9, Industry: "电子"},
		{Code: "4", Name: "st丁", Price: 5, Amount: 8e9, Industry: "电子"},
		{Code: "5", Name: "戊股份", Price: 1.5, Amount: 7e9, Industry: "电子"},
		{Code: "6", Name: "己新股", Price: 30, Amount: 7e9, Industry: "电子", ListDate: now.AddDate(0, 0, -10)},
		{Code: "7", Name: "庚银行", Price: 6, Amount: 6e9, Industry: "银行"},
		{Code: "8", Name: "辛电力", Price: 6, Amount: 1e9, Industry: "电力"},
		{Code: "9", Name: "壬医药", Price: 60, Amount: 5e9, Industry: "医药", ListDate: now.AddDate(-3, 0, 0)},
	}}
	opt := Options{PriceMin: 2, PriceMax: 500, NewStockDays: 60, DynamicPoolSize: 200, Now: now}

	got := Universe(snap, opt)
	codes := make([]string, len(got))
	for i, e := range got {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{"1", "7", "9", "8"}, codes)

	opt.DynamicPoolSize = 2
	assert.Len(t, Universe(snap, opt), 2)

	opt.DynamicPoolSize = 200
	opt.RestrictToMainline = true
	opt.MainlineTopN = 2
	got = Universe(snap, opt)
	codes = codes[:0]
	for _, e := range got {
		codes = append(codes, e.Code)
	}
	assert.Equal(t, []string{"1", "7"}, codes)

	assert.Nil(t, Universe(nil, opt))
}

func TestMainlineWithoutIndustry(t *testing.T) {
	t.Parallel()

	snap := &market.Snapshot{Quotes: []market.Quote{
		{Code: "1", Name: "a", Price: 10, Amount: 3},
		{Code: "2", Name: "b", Price: 10, Amount: 2},
	}}
	got := Universe(snap, Options{PriceMax: 100, RestrictToMainline: true, MainlineTopN: 1})
	assert.Len(t, got, 2)
}

func TestLiquidityGrade(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "A", LiquidityGrade(2e9))
	assert.Equal(t, "B", LiquidityGrade(1e9))
	assert.Equal(t, "C", LiquidityGrade(9.99e8))
}
