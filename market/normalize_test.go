package market

import (
	"math"
	"testing"
	"time"

	"github.com/rustyeddy/ashare/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2026, 1, d, 15, 0, 0, 0, time.UTC)
}

func raw(rows ...RawBar) RawFrame {
	return RawFrame{Symbol: "600519", Source: "local", Rows: rows}
}

func bar(t time.Time, o, h, l, c, v float64) RawBar {
	return RawBar{Time: t, Open: o, High: h, Low: l, Close: c, Volume: v, Amount: math.NaN(), Turnover: math.NaN()}
}

func TestNormalizeDailySortsAndDedupes(t *testing.T) {
	t.Parallel()

	first := bar(day(6), 10, 11, 9, 10.5, 100)
	dup := bar(day(6), 10, 12, 9, 11.5, 200)
	earlier := bar(day(5), 9, 10, 8, 9.5, 100)

	f, err := NormalizeDaily(raw(first, earlier, dup), "share")
	require.NoError(t, err)

	require.Len(t, f.Bars, 2)
	assert.Equal(t, 5, f.Bars[0].Time.Day())
	assert.Equal(t, 0, f.Bars[0].Time.Hour())
	assert.Equal(t, 11.5, f.Bars[1].Close, "duplicate date keeps last row")
	assert.Equal(t, 1, f.Meta.DroppedDuplicates)
	assert.Equal(t, 2, f.Meta.Rows)
	for i := 1; i < len(f.Bars); i++ {
		assert.True(t, f.Bars[i].Time.After(f.Bars[i-1].Time))
	}
}

func TestNormalizeDailyUnitsAndAmount(t *testing.T) {
	t.Parallel()

	r := bar(day(5), 10, 12, 9, 11, 3)
	f, err := NormalizeDaily(raw(r), "hand")
	require.NoError(t, err)

	b := f.Bars[0]
	assert.Equal(t, int64(300), b.Volume)
	assert.Equal(t, UnitShare, f.Meta.VolumeUnit)
	assert.True(t, f.Meta.AmountIsEstimated)
	assert.InDelta(t, (12.0+9.0+11.0)/3.0*300, b.Amount, 1e-9)
	assert.Equal(t, 1.0, b.AdjFactor)

	r.Amount = 5000
	f, err = NormalizeDaily(raw(r), "share")
	require.NoError(t, err)
	assert.False(t, f.Meta.AmountIsEstimated)
	assert.Equal(t, 5000.0, f.Bars[0].Amount)
}

func TestNormalizeUnitRoundTrip(t *testing.T) {
	t.Parallel()

	in := raw(
		bar(day(5), 10, 12, 9, 11, 3),
		bar(day(6), 11, 12, 10, 11.5, 7),
	)
	once, err := NormalizeDaily(in, "hand")
	require.NoError(t, err)

	twice, err := NormalizeDaily(once.Raw(), "share")
	require.NoError(t, err)
	assert.Equal(t, once.Bars, twice.Bars)
}

func TestNormalizeDailyBadData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rows []RawBar
		hint string
	}{
		{"unknown unit", []RawBar{bar(day(5), 10, 11, 9, 10, 1)}, "unknown"},
		{"low above open", []RawBar{bar(day(5), 10, 11, 10.5, 10.8, 1)}, "share"},
		{"close above high", []RawBar{bar(day(5), 10, 11, 9, 11.2, 1)}, "share"},
		{"non positive price", []RawBar{bar(day(5), 0, 11, 0, 10, 1)}, "share"},
		{"negative volume", []RawBar{bar(day(5), 10, 11, 9, 10, -1)}, "share"},
		{"nan close", []RawBar{bar(day(5), 10, 11, 9, math.NaN(), 1)}, "share"},
		{"missing date", []RawBar{bar(time.Time{}, 10, 11, 9, 10, 1)}, "share"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NormalizeDaily(raw(tt.rows...), tt.hint)
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrBadData)
		})
	}
}

func TestNormalizerStrictRefusesFixtures(t *testing.T) {
	t.Parallel()

	in := raw(bar(day(5), 10, 11, 9, 10, 1))
	in.Source = SourceFixture

	_, err := Normalizer{StrictRealData: true}.Daily(in, "share")
	assert.ErrorIs(t, err, errs.ErrBadData)

	_, err = Normalizer{}.Daily(in, "share")
	assert.NoError(t, err)
}

func TestNormalizeMinuteDropsOutsideSession(t *testing.T) {
	t.Parallel()

	at := func(h, m int) time.Time { return time.Date(2026, 1, 6, h, m, 0, 0, time.UTC) }
	in := raw(
		bar(at(9, 25), 10, 10, 10, 10, 1),
		bar(at(9, 35), 10, 10.2, 9.9, 10.1, 1),
		bar(at(12, 0), 10, 10, 10, 10, 1),
		bar(at(14, 58), 10, 10.1, 9.9, 10, 1),
		bar(at(15, 5), 10, 10, 10, 10, 1),
	)

	f, err := NormalizeMinute(in, "hand")
	require.NoError(t, err)
	require.Len(t, f.Bars, 2)
	assert.Equal(t, 3, f.Meta.DroppedOutside)
	assert.Equal(t, Freq5Min, f.Meta.Freq)
	assert.Equal(t, int64(100), f.Bars[0].Volume)
}
