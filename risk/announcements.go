package risk

import (
	"context"
	"strings"
	"time"
)

// Risk levels. An empty level means unknown.
const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

// AnnouncementKeywords mark a title as a risk disclosure.
var AnnouncementKeywords = []string{"减持", "解禁", "异常波动", "风险提示", "问询", "立案", "下修", "预亏", "失败"}

// EventHorizon is how far ahead corporate events count as risk.
const EventHorizon = 15 * 24 * time.Hour

type Announcement struct {
	Title  string `json:"title"`
	Date   string `json:"date"`
	Type   string `json:"type,omitempty"`
	URL    string `json:"url,omitempty"`
	Source string `json:"source,omitempty"`
}

// AnnouncementSource lists a symbol's announcements in [from, to].
type AnnouncementSource interface {
	Announcements(ctx context.Context, symbol string, from, to time.Time) ([]Announcement, error)
}

type CorporateEvent struct {
	Kind string    `json:"kind"`
	Date time.Time `json:"date"`
}

// EventSource lists a symbol's scheduled corporate events in [from, to].
type EventSource interface {
	Events(ctx context.Context, symbol string, from, to time.Time) ([]CorporateEvent, error)
}

// Assessment is the announcement or event risk of one symbol.
type Assessment struct {
	Level    string         `json:"risk_level,omitempty"`
	Evidence []string       `json:"evidence"`
	Items    []Announcement `json:"list,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// ClassifyAnnouncements grades titles by risk keywords: two or more distinct
// hits is high, one is medium, none is low. Evidence holds the first two.
func ClassifyAnnouncements(items []Announcement) Assessment {
	titles := make([]string, len(items))
	for i, it := range items {
		titles[i] = it.Title
	}
	text := strings.Join(titles, "\n")

	var hits []string
	for _, kw := range AnnouncementKeywords {
		if strings.Contains(text, kw) {
			hits = append(hits, kw)
		}
	}
	a := Assessment{Level: LevelLow, Evidence: []string{}, Items: items}
	switch {
	case len(hits) >= 2:
		a.Level = LevelHigh
	case len(hits) == 1:
		a.Level = LevelMedium
	}
	if len(hits) > 2 {
		hits = hits[:2]
	}
	if hits != nil {
		a.Evidence = hits
	}
	return a
}

// ClassifyEvents is medium when any event falls within EventHorizon of now,
// low otherwise.
func ClassifyEvents(events []CorporateEvent, now time.Time) Assessment {
	a := Assessment{Level: LevelLow, Evidence: []string{}}
	until := now.Add(EventHorizon)
	for _, e := range events {
		if e.Date.Before(truncateDay(now)) || e.Date.After(until) {
			continue
		}
		a.Evidence = append(a.Evidence, e.Kind+"@"+e.Date.Format(time.DateOnly))
	}
	if len(a.Evidence) > 0 {
		a.Level = LevelMedium
	}
	return a
}

// AssessAnnouncements fetches the last 30 days from src. A nil source or a
// failed fetch leaves the level unknown in strict mode; outside strict mode a
// failed fetch is medium.
func AssessAnnouncements(ctx context.Context, src AnnouncementSource, symbol string, now time.Time, strict bool) Assessment {
	if src == nil {
		return Assessment{Evidence: []string{}, Reason: "no_source"}
	}
	items, err := src.Announcements(ctx, symbol, now.AddDate(0, 0, -30), now)
	if err != nil {
		a := Assessment{Evidence: []string{}, Reason: "fetch_failed", Error: err.Error()}
		if !strict {
			a.Level = LevelMedium
		}
		return a
	}
	a := ClassifyAnnouncements(items)
	a.Reason = "ok"
	return a
}

// AssessEvents fetches events up to EventHorizon ahead. A nil source or a
// failed fetch leaves the level unknown.
func AssessEvents(ctx context.Context, src EventSource, symbol string, now time.Time) Assessment {
	if src == nil {
		return Assessment{Evidence: []string{}, Reason: "no_source"}
	}
	events, err := src.Events(ctx, symbol, truncateDay(now), now.Add(EventHorizon))
	if err != nil {
		return Assessment{Evidence: []string{}, Reason: "fetch_failed", Error: err.Error()}
	}
	a := ClassifyEvents(events, now)
	a.Reason = "ok"
	return a
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
