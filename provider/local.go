package provider

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/ashare/market"
	"github.com/rustyeddy/ashare/pkg/errs"
	"github.com/rustyeddy/ashare/risk"
)

// Local reads bars and reference tables from a directory tree:
//
//	bars/daily/ts_code=600000.SH.csv[.xz]
//	bars/5min/ts_code=600000.SH/20260106.csv[.xz]
//	snapshot.csv
//	stock_basic.csv
//	announcements/ts_code=600000.SH.json
//	events/ts_code=600000.SH.json
type Local struct {
	root string
	loc  *time.Location
	norm market.Normalizer
}

func NewLocal(o Options) (*Local, error) {
	if o.Root == "" {
		return nil, errs.Config("provider local", "data root is required")
	}
	return &Local{root: o.Root, loc: o.location(), norm: o.normalizer()}, nil
}

func (l *Local) Name() string { return "local" }

func (l *Local) DailyPath(symbol string) string {
	return filepath.Join(l.root, "bars", "daily", fileCode(symbol)+".csv")
}

func (l *Local) IntradayPath(symbol string, day time.Time) string {
	return filepath.Join(l.root, "bars", "5min", fileCode(symbol), day.Format("20060102")+".csv")
}

func (l *Local) readFrame(path, symbol string) (market.RawFrame, string, error) {
	rc, err := openMaybeXZ(path)
	if err != nil {
		return market.RawFrame{}, "", err
	}
	defer rc.Close()
	return readBars(rc, TSCode(symbol), l.Name(), l.loc)
}

func (l *Local) Daily(ctx context.Context, symbol string, start, end time.Time) (market.Frame, error) {
	const op = "local daily"
	raw, hint, err := l.readFrame(l.DailyPath(symbol), symbol)
	if err != nil {
		return market.Frame{}, errs.Provider(op, fmt.Errorf("%s: %w", symbol, err))
	}
	f, err := l.norm.Daily(raw, hint)
	if err != nil {
		return market.Frame{}, err
	}
	return inRange(f, start, end), nil
}

// Intraday returns the 5-minute session of day. A missing session is
// errs.ErrDataInsufficient.
func (l *Local) Intraday(ctx context.Context, symbol string, day time.Time) (market.Frame, error) {
	raw, hint, err := l.readFrame(l.IntradayPath(symbol, day), symbol)
	if errors.Is(err, os.ErrNotExist) {
		return market.Frame{}, errs.Insufficient("local intraday", "%s: no 5min bars on %s", symbol, day.Format(time.DateOnly))
	}
	if err != nil {
		return market.Frame{}, errs.Provider("local intraday", fmt.Errorf("%s: %w", symbol, err))
	}
	return l.norm.Minute(raw, hint)
}

func (l *Local) readTable(name string) ([]string, [][]string, time.Time, error) {
	path := filepath.Join(l.root, name)
	rc, err := openMaybeXZ(path)
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	defer rc.Close()

	var mod time.Time
	if fi, err := os.Stat(path); err == nil {
		mod = fi.ModTime()
	} else if fi, err := os.Stat(path + ".xz"); err == nil {
		mod = fi.ModTime()
	}

	cr := csv.NewReader(rc)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, mod, nil
	}
	if err != nil {
		return nil, nil, mod, err
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")))
	}
	rows, err := cr.ReadAll()
	return header, rows, mod, err
}

func columns(header []string) func(rec []string, col string) string {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[h] = i
	}
	return func(rec []string, col string) string {
		i, ok := pos[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
}

// Snapshot reads snapshot.csv: code, name, price, amount, change_pct and
// optional industry, concepts (";"-separated) and list_date.
func (l *Local) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	const op = "local snapshot"
	header, rows, mod, err := l.readTable("snapshot.csv")
	if err != nil {
		return nil, errs.Provider(op, err)
	}
	col := columns(header)
	snap := &market.Snapshot{AsOf: mod.In(l.loc), Source: l.Name()}
	for _, rec := range rows {
		q := market.Quote{
			Code:      col(rec, "code"),
			Name:      col(rec, "name"),
			Price:     parseNum(col(rec, "price")),
			Amount:    parseNum(col(rec, "amount")),
			ChangePct: parseNum(col(rec, "change_pct")),
			Industry:  col(rec, "industry"),
		}
		if q.Code == "" {
			continue
		}
		if c := col(rec, "concepts"); c != "" {
			q.Concepts = strings.Split(c, ";")
		}
		if d := col(rec, "list_date"); d != "" {
			if t, err := parseTime(d, l.loc); err == nil {
				q.ListDate = t
			}
		}
		snap.Quotes = append(snap.Quotes, q)
	}
	return snap, nil
}

// StockBasic reads stock_basic.csv. A missing file is an empty table.
func (l *Local) StockBasic(ctx context.Context) ([]market.StockBasic, error) {
	header, rows, _, err := l.readTable("stock_basic.csv")
	if errors.Is(err, os.ErrNotExist) {
		return []market.StockBasic{}, nil
	}
	if err != nil {
		return nil, errs.Provider("local stock_basic", err)
	}
	col := columns(header)
	out := make([]market.StockBasic, 0, len(rows))
	for _, rec := range rows {
		out = append(out, market.StockBasic{TSCode: col(rec, "ts_code"), Name: col(rec, "name")})
	}
	return out, nil
}

func (l *Local) Health(ctx context.Context) Health {
	h := Health{Name: l.Name()}
	dir := filepath.Join(l.root, "bars", "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		h.Reason = fmt.Sprintf("directory missing: %s", dir)
		return h
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "ts_code=") {
			h.OK = true
			return h
		}
	}
	h.Reason = "no daily bar files"
	return h
}

// HasAnnouncements reports whether the tree carries an announcements
// directory. Without one the local provider is not an announcement source.
func (l *Local) HasAnnouncements() bool {
	fi, err := os.Stat(filepath.Join(l.root, "announcements"))
	return err == nil && fi.IsDir()
}

func (l *Local) HasEvents() bool {
	fi, err := os.Stat(filepath.Join(l.root, "events"))
	return err == nil && fi.IsDir()
}

// readJSON leaves v untouched when path does not exist.
func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Announcements lists the symbol's announcements dated in [from, to]. A
// symbol without a file has none.
func (l *Local) Announcements(ctx context.Context, symbol string, from, to time.Time) ([]risk.Announcement, error) {
	var all []risk.Announcement
	if err := readJSON(filepath.Join(l.root, "announcements", fileCode(symbol)+".json"), &all); err != nil {
		return nil, errs.Provider("local announcements", err)
	}
	out := []risk.Announcement{}
	for _, a := range all {
		t, err := parseTime(a.Date, l.loc)
		if err != nil {
			continue
		}
		if !t.Before(dayStart(from)) && !t.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Events lists scheduled corporate events in [from, to].
func (l *Local) Events(ctx context.Context, symbol string, from, to time.Time) ([]risk.CorporateEvent, error) {
	var all []risk.CorporateEvent
	if err := readJSON(filepath.Join(l.root, "events", fileCode(symbol)+".json"), &all); err != nil {
		return nil, errs.Provider("local events", err)
	}
	out := []risk.CorporateEvent{}
	for _, e := range all {
		if !e.Date.Before(dayStart(from)) && !e.Date.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
