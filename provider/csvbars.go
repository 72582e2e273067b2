package provider

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/rustyeddy/ashare/market"
)

// column aliases accepted in bar files
var barColumns = map[string]string{
	"date":          "time",
	"trade_date":    "time",
	"datetime":      "time",
	"time":          "time",
	"day":           "time",
	"open":          "open",
	"high":          "high",
	"low":           "low",
	"close":         "close",
	"volume":        "volume",
	"vol":           "vol",
	"amount":        "amount",
	"turnover":      "turnover",
	"turnover_rate": "turnover",
	"adj_factor":    "adj",
}

var timeLayouts = []string{
	time.DateTime,
	"2006-01-02 15:04",
	"20060102 150405",
	"20060102150405",
	time.DateOnly,
	"20060102",
	time.RFC3339,
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range timeLayouts {
		if t, err := time.ParseInLocation(l, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func parseNum(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// openMaybeXZ opens path, or path+".xz" through an xz reader when the
// plain file is absent.
func openMaybeXZ(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	zf, err := os.Open(path + ".xz")
	if err != nil {
		return nil, err
	}
	r, err := xz.NewReader(zf)
	if err != nil {
		zf.Close()
		return nil, fmt.Errorf("xz %s: %w", path, err)
	}
	return struct {
		io.Reader
		io.Closer
	}{r, zf}, nil
}

// readBars parses a bar CSV into a raw frame and returns the volume unit
// hint: a "vol" column is in hands, "volume" in shares.
func readBars(r io.Reader, symbol, source string, loc *time.Location) (market.RawFrame, string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return market.RawFrame{Symbol: symbol, Source: source}, "", nil
	}
	if err != nil {
		return market.RawFrame{}, "", err
	}

	cols := map[string]int{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if c, ok := barColumns[h]; ok {
			if _, dup := cols[c]; !dup {
				cols[c] = i
			}
		}
	}
	for _, need := range []string{"time", "open", "high", "low", "close"} {
		if _, ok := cols[need]; !ok {
			return market.RawFrame{}, "", fmt.Errorf("missing column %q", need)
		}
	}
	hint := "share"
	volCol, ok := cols["volume"]
	if !ok {
		if volCol, ok = cols["vol"]; ok {
			hint = "hand"
		}
	}

	get := func(rec []string, name string) float64 {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return math.NaN()
		}
		return parseNum(rec[i])
	}

	raw := market.RawFrame{Symbol: symbol, Source: source}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return market.RawFrame{}, "", err
		}
		t, err := parseTime(rec[cols["time"]], loc)
		if err != nil {
			return market.RawFrame{}, "", err
		}
		vol := 0.0
		if ok && volCol < len(rec) {
			vol = parseNum(rec[volCol])
		}
		raw.Rows = append(raw.Rows, market.RawBar{
			Time:      t,
			Open:      get(rec, "open"),
			High:      get(rec, "high"),
			Low:       get(rec, "low"),
			Close:     get(rec, "close"),
			Volume:    vol,
			Amount:    get(rec, "amount"),
			Turnover:  get(rec, "turnover"),
			AdjFactor: get(rec, "adj"),
		})
	}
	return raw, hint, nil
}

// BarsHeader is the layout WriteBars emits. Volume is in shares.
var BarsHeader = []string{"datetime", "open", "high", "low", "close", "volume", "amount", "turnover"}

// WriteBars writes f in the layout the local provider reads.
func WriteBars(w io.Writer, f market.Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(BarsHeader); err != nil {
		return err
	}
	num := func(x float64) string {
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	for _, b := range f.Bars {
		if err := cw.Write([]string{
			b.Time.Format(time.DateTime),
			num(b.Open), num(b.High), num(b.Low), num(b.Close),
			strconv.FormatInt(b.Volume, 10),
			num(b.Amount), num(b.Turnover),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
