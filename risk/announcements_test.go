package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func titles(ts ...string) []Announcement {
	out := make([]Announcement, len(ts))
	for i, t := range ts {
		out[i] = Announcement{Title: t}
	}
	return out
}

func TestClassifyAnnouncements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		items    []Announcement
		level    string
		evidence []string
	}{
		{"none", titles("2025年半年度报告"), LevelLow, []string{}},
		{"one", titles("关于股东减持计划的公告", "股东再次减持"), LevelMedium, []string{"减持"}},
		{"two", titles("股票交易异常波动公告", "限售股解禁提示"), LevelHigh, []string{"解禁", "异常波动"}},
		{"many keeps first two", titles("减持 解禁 问询 立案"), LevelHigh, []string{"减持", "解禁"}},
		{"empty", nil, LevelLow, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := ClassifyAnnouncements(tt.items)
			assert.Equal(t, tt.level, a.Level)
			assert.Equal(t, tt.evidence, a.Evidence)
		})
	}
}

func TestClassifyEvents(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	events := []CorporateEvent{
		{Kind: "除权除息", Date: now.AddDate(0, 0, 3)},
		{Kind: "解禁", Date: now.AddDate(0, 0, 30)},
		{Kind: "分红", Date: now.AddDate(0, 0, -2)},
	}

	a := ClassifyEvents(events, now)
	assert.Equal(t, LevelMedium, a.Level)
	assert.Equal(t, []string{"除权除息@2026-01-08"}, a.Evidence)

	assert.Equal(t, LevelLow, ClassifyEvents(events[1:], now).Level)
}

type stubSource struct {
	items []Announcement
	err   error
}

func (s stubSource) Announcements(context.Context, string, time.Time, time.Time) ([]Announcement, error) {
	return s.items, s.err
}

func TestAssessAnnouncements(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()

	a := AssessAnnouncements(ctx, nil, "600000", now, true)
	assert.Empty(t, a.Level)
	assert.Equal(t, "no_source", a.Reason)

	failing := stubSource{err: errors.New("timeout")}
	assert.Empty(t, AssessAnnouncements(ctx, failing, "600000", now, true).Level)
	assert.Equal(t, LevelMedium, AssessAnnouncements(ctx, failing, "600000", now, false).Level)

	ok := stubSource{items: titles("关于收到问询函的公告")}
	a = AssessAnnouncements(ctx, ok, "600000", now, true)
	assert.Equal(t, LevelMedium, a.Level)
	assert.Equal(t, "ok", a.Reason)
}
