package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/rustyeddy/ashare/market"
	"github.com/rustyeddy/ashare/pkg/errs"
	"github.com/rustyeddy/ashare/risk"
)

var cst = time.FixedZone("CST", 8*3600)

func TestSymbolForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, ts, sina, secid string
	}{
		{"600000", "600000.SH", "sh600000", "1.600000"},
		{"000001", "000001.SZ", "sz000001", "0.000001"},
		{"sh000001", "000001.SH", "sh000001", "1.000001"},
		{"300750.sz", "300750.SZ", "sz300750", "0.300750"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.ts, TSCode(tt.in))
			assert.Equal(t, tt.sina, SinaCode(tt.in))
			id, err := SecID(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.secid, id)
		})
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"eastmoney", "fixture", "local", "sina"}, Names())

	_, err := New("bloomberg", Options{})
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = New("local", Options{})
	assert.ErrorIs(t, err, errs.ErrConfig)

	p, err := New(" Fixture ", Options{})
	require.NoError(t, err)
	assert.Equal(t, market.SourceFixture, p.Name())
}

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func writeXZ(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := xz.NewWriter(f)
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func TestLocalDaily(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	l, err := NewLocal(Options{Root: root, Location: cst})
	require.NoError(t, err)

	write(t, l.DailyPath("600000"), "\ufefftrade_date,open,high,low,close,vol,amount\n"+
		"20260107,10.1,10.3,10.0,10.2,200,\n"+
		"20260106,10.0,10.2,9.9,10.1,100,101000\n"+
		"20260108,10.2,10.4,10.1,10.3,300,309000\n")

	f, err := l.Daily(context.Background(), "600000", time.Date(2026, 1, 6, 0, 0, 0, 0, cst), time.Date(2026, 1, 7, 0, 0, 0, 0, cst))
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	assert.Equal(t, "600000.SH", f.Meta.Symbol)
	assert.Equal(t, int64(10000), f.Bars[0].Volume, "vol column is in hands")
	assert.Equal(t, 6, f.Bars[0].Time.Day())
	assert.Equal(t, 7, f.Bars[1].Time.Day())
	assert.True(t, f.Meta.AmountIsEstimated)

	_, err = l.Daily(context.Background(), "000002", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, errs.ErrProvider)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocalIntradayXZ(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	l, err := NewLocal(Options{Root: root, Location: cst})
	require.NoError(t, err)
	day := time.Date(2026, 1, 6, 0, 0, 0, 0, cst)

	writeXZ(t, l.IntradayPath("600000", day)+".xz", "datetime,open,high,low,close,volume\n"+
		"2026-01-06 09:25:00,10,10,10,10,500\n"+
		"2026-01-06 09:35:00,10,10.1,9.9,10.05,1000\n"+
		"2026-01-06 09:40:00,10.05,10.2,10,10.1,1200\n")

	f, err := l.Intraday(context.Background(), "600000", day)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, 1, f.Meta.DroppedOutside)
	assert.Equal(t, int64(1000), f.Bars[0].Volume)

	_, err = l.Intraday(context.Background(), "600000", day.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, errs.ErrDataInsufficient)
}

func TestLocalTablesAndHealth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()
	l, err := NewLocal(Options{Root: root, Location: cst})
	require.NoError(t, err)

	h := l.Health(ctx)
	assert.False(t, h.OK)
	assert.NotEmpty(t, h.Reason)

	_, err = l.Snapshot(ctx)
	assert.ErrorIs(t, err, errs.ErrProvider)

	basics, err := l.StockBasic(ctx)
	require.NoError(t, err)
	assert.Empty(t, basics)

	write(t, l.DailyPath("600000"), "date,open,high,low,close,volume\n2026-01-06,1,1,1,1,0\n")
	write(t, filepath.Join(root, "snapshot.csv"), "code,name,price,amount,change_pct,industry,concepts,list_date\n"+
		"600000,浦发银行,10.5,9e8,1.2,银行,国企改革;高股息,1999-11-10\n"+
		"000001,平安银行,11,8e8,-0.5,银行,,\n")
	write(t, filepath.Join(root, "stock_basic.csv"), "ts_code,name\n600000.SH,浦发银行\n")

	assert.True(t, l.Health(ctx).OK)

	snap, err := l.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Quotes, 2)
	assert.Equal(t, []string{"国企改革", "高股息"}, snap.Quotes[0].Concepts)
	assert.Equal(t, 1999, snap.Quotes[0].ListDate.Year())
	assert.InDelta(t, -0.5, snap.Quotes[1].ChangePct, 1e-9)

	basics, err = l.StockBasic(ctx)
	require.NoError(t, err)
	assert.Equal(t, []market.StockBasic{{TSCode: "600000.SH", Name: "浦发银行"}}, basics)
}

func TestLocalAnnouncementsAndEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()
	l, err := NewLocal(Options{Root: root, Location: cst})
	require.NoError(t, err)
	assert.False(t, l.HasAnnouncements())

	write(t, filepath.Join(root, "announcements", "ts_code=600000.SH.json"),
		`[{"title":"关于股东减持计划的公告","date":"2026-01-05"},{"title":"年度报告","date":"2025-10-01"}]`)
	write(t, filepath.Join(root, "events", "ts_code=600000.SH.json"),
		`[{"kind":"dividend","date":"2026-01-12T00:00:00+08:00"}]`)
	assert.True(t, l.HasAnnouncements())
	assert.True(t, l.HasEvents())

	now := time.Date(2026, 1, 6, 15, 0, 0, 0, cst)
	items, err := l.Announcements(ctx, "600000", now.AddDate(0, 0, -30), now)
	require.NoError(t, err)
	require.Len(t, items, 1)

	a := risk.AssessAnnouncements(ctx, l, "600000", now, true)
	assert.Equal(t, risk.LevelMedium, a.Level)

	none, err := l.Announcements(ctx, "000001", now.AddDate(0, 0, -30), now)
	require.NoError(t, err)
	assert.Empty(t, none)

	evs, err := l.Events(ctx, "600000", now, now.Add(risk.EventHorizon))
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestFixtureDeterministic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := NewFixture(Options{Seed: 7, Symbols: 12, Location: cst})
	start := time.Date(2025, 12, 1, 0, 0, 0, 0, cst)
	end := time.Date(2026, 1, 9, 0, 0, 0, 0, cst)

	a, err := f.Daily(ctx, "600000", start, end)
	require.NoError(t, err)
	b, err := f.Daily(ctx, "600000", time.Time{}, end)
	require.NoError(t, err)
	require.NotZero(t, a.Len())
	assert.Equal(t, a.Last(), b.Last())
	assert.Equal(t, market.SourceFixture, a.Meta.Source)

	m, err := f.Intraday(ctx, "600000", end)
	require.NoError(t, err)
	assert.Equal(t, 48, m.Len())
	assert.InDelta(t, a.Last().Close, m.Last().Close, 1e-9)

	_, err = f.Intraday(ctx, "600000", time.Date(2026, 1, 10, 0, 0, 0, 0, cst))
	assert.ErrorIs(t, err, errs.ErrDataInsufficient)

	strict := NewFixture(Options{StrictRealData: true, Location: cst})
	_, err = strict.Daily(ctx, "600000", start, end)
	assert.ErrorIs(t, err, errs.ErrBadData)
	_, err = strict.Snapshot(ctx)
	assert.ErrorIs(t, err, errs.ErrBadData)
	assert.False(t, strict.Health(ctx).OK)
}

type memKV struct {
	m   map[string]string
	ttl map[string]time.Duration
}

func newMemKV() *memKV {
	return &memKV{m: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (k *memKV) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := k.m[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (k *memKV) Set(ctx context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		k.m[key] = string(v)
	case string:
		k.m[key] = v
	}
	k.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

type spot struct {
	Fixture
	calls int
	fail  error
}

func (s *spot) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	return &market.Snapshot{Source: "spot", Quotes: []market.Quote{{Code: "600000", Price: 10}}}, nil
}

func TestSnapshotCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := newMemKV()
	up := &spot{Fixture: *NewFixture(Options{Location: cst})}
	c := NewSnapshotCache(up, kv, Options{Location: cst})
	now := time.Date(2026, 1, 6, 10, 0, 0, 0, cst)
	c.now = func() time.Time { return now }

	assert.Equal(t, 90*time.Minute, c.TTL(now))

	s1, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, s1.Cache)
	s2, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, s2.Cache)
	assert.Equal(t, 1, up.calls)

	// next session: the fresh key moves on, the upstream fails, stale is served
	now = time.Date(2026, 1, 6, 13, 30, 0, 0, cst)
	up.fail = errors.New("timeout")
	s3, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, CacheStale, s3.Cache)
	assert.Equal(t, 2, up.calls)

	empty := NewSnapshotCache(up, newMemKV(), Options{Location: cst})
	_, err = empty.Snapshot(ctx)
	assert.EqualError(t, err, "timeout")
}
