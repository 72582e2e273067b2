package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/ashare/market"
	"github.com/rustyeddy/ashare/pkg/errs"
)

const (
	eastmoneyKlineURL = "https://push2his.eastmoney.com"
	eastmoneyListURL  = "https://push2.eastmoney.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	kltDaily = "101"
	klt5Min  = "5"

	// A-share main boards plus ChiNext and STAR.
	listFilter = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23"
	listPage   = 6000
)

// Eastmoney serves klines (volume in hands) and the spot list.
type Eastmoney struct {
	klineURL string
	listURL  string
	adjust   string
	client   *http.Client
	loc      *time.Location
	norm     market.Normalizer
}

func NewEastmoney(o Options) *Eastmoney {
	e := &Eastmoney{
		klineURL: o.KlineURL,
		listURL:  o.ListURL,
		adjust:   o.DailyAdjust,
		client:   o.client(),
		loc:      o.location(),
		norm:     o.normalizer(),
	}
	if e.klineURL == "" {
		e.klineURL = eastmoneyKlineURL
	}
	if e.listURL == "" {
		e.listURL = eastmoneyListURL
	}
	return e
}

func (e *Eastmoney) Name() string { return "eastmoney" }

func (e *Eastmoney) get(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://quote.eastmoney.com/")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

type klineResponse struct {
	Data *struct {
		Code   string   `json:"code"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

func (e *Eastmoney) fqt() string {
	if e.adjust == AdjustNone {
		return "0"
	}
	return "1"
}

func (e *Eastmoney) klines(ctx context.Context, symbol, klt string, beg, end time.Time) (market.RawFrame, error) {
	secid, err := SecID(symbol)
	if err != nil {
		return market.RawFrame{}, err
	}
	q := url.Values{}
	q.Set("secid", secid)
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56,f57,f61")
	q.Set("klt", klt)
	q.Set("fqt", e.fqt())
	q.Set("beg", "0")
	q.Set("end", "20500101")
	if !beg.IsZero() {
		q.Set("beg", beg.Format("20060102"))
	}
	if !end.IsZero() {
		q.Set("end", end.Format("20060102"))
	}

	var resp klineResponse
	if err := e.get(ctx, e.klineURL+"/api/qt/stock/kline/get?"+q.Encode(), &resp); err != nil {
		return market.RawFrame{}, err
	}
	raw := market.RawFrame{Symbol: TSCode(symbol), Source: e.Name()}
	if resp.Data == nil {
		return raw, nil
	}
	for _, line := range resp.Data.Klines {
		bar, err := e.parseKline(line)
		if err != nil {
			return market.RawFrame{}, err
		}
		raw.Rows = append(raw.Rows, bar)
	}
	return raw, nil
}

// parseKline reads "date,open,close,high,low,volume,amount[,turnover]".
func (e *Eastmoney) parseKline(line string) (market.RawBar, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 7 {
		return market.RawBar{}, fmt.Errorf("kline %q: want at least 7 fields", line)
	}
	t, err := parseTime(parts[0], e.loc)
	if err != nil {
		return market.RawBar{}, err
	}
	bar := market.RawBar{
		Time:      t,
		Open:      parseNum(parts[1]),
		Close:     parseNum(parts[2]),
		High:      parseNum(parts[3]),
		Low:       parseNum(parts[4]),
		Volume:    parseNum(parts[5]),
		Amount:    parseNum(parts[6]),
		Turnover:  math.NaN(),
		AdjFactor: math.NaN(),
	}
	if len(parts) > 7 {
		bar.Turnover = parseNum(parts[7])
	}
	return bar, nil
}

func (e *Eastmoney) Daily(ctx context.Context, symbol string, start, end time.Time) (market.Frame, error) {
	raw, err := e.klines(ctx, symbol, kltDaily, start, end)
	if err != nil {
		return market.Frame{}, errs.Provider("eastmoney daily", fmt.Errorf("%s: %w", symbol, err))
	}
	f, err := e.norm.Daily(raw, string(market.UnitHand))
	if err != nil {
		return market.Frame{}, err
	}
	return inRange(f, start, end), nil
}

func (e *Eastmoney) Intraday(ctx context.Context, symbol string, day time.Time) (market.Frame, error) {
	raw, err := e.klines(ctx, symbol, klt5Min, day, day)
	if err != nil {
		return market.Frame{}, errs.Provider("eastmoney intraday", fmt.Errorf("%s: %w", symbol, err))
	}
	if len(raw.Rows) == 0 {
		return market.Frame{}, errs.Insufficient("eastmoney intraday", "%s: no 5min bars on %s", symbol, day.Format(time.DateOnly))
	}
	return e.norm.Minute(raw, string(market.UnitHand))
}

type listResponse struct {
	Data *struct {
		Total int              `json:"total"`
		Diff  []map[string]any `json:"diff"`
	} `json:"data"`
}

// num reads a list field; "-" and missing fields are NaN.
func num(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		return parseNum(x)
	}
	return math.NaN()
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

// Snapshot pulls the whole A-share list: f12 code, f14 name, f2 price,
// f3 change percent, f6 amount, f100 industry, f26 listing date.
func (e *Eastmoney) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	q := url.Values{}
	q.Set("pn", "1")
	q.Set("pz", strconv.Itoa(listPage))
	q.Set("po", "1")
	q.Set("np", "1")
	q.Set("fltt", "2")
	q.Set("invt", "2")
	q.Set("fid", "f3")
	q.Set("fs", listFilter)
	q.Set("fields", "f2,f3,f6,f12,f14,f26,f100")

	var resp listResponse
	if err := e.get(ctx, e.listURL+"/api/qt/clist/get?"+q.Encode(), &resp); err != nil {
		return nil, errs.Provider("eastmoney snapshot", err)
	}
	snap := &market.Snapshot{AsOf: time.Now().In(e.loc), Source: e.Name()}
	if resp.Data == nil {
		return snap, nil
	}
	for _, row := range resp.Data.Diff {
		qt := market.Quote{
			Code:      text(row["f12"]),
			Name:      text(row["f14"]),
			Price:     num(row["f2"]),
			ChangePct: num(row["f3"]),
			Amount:    num(row["f6"]),
			Industry:  text(row["f100"]),
		}
		if qt.Industry == "-" {
			qt.Industry = ""
		}
		if d := text(row["f26"]); len(d) == 8 {
			if t, err := time.ParseInLocation("20060102", d, e.loc); err == nil {
				qt.ListDate = t
			}
		}
		if qt.Code != "" {
			snap.Quotes = append(snap.Quotes, qt)
		}
	}
	return snap, nil
}

func (e *Eastmoney) StockBasic(ctx context.Context) ([]market.StockBasic, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.StockBasic, 0, len(snap.Quotes))
	for _, q := range snap.Quotes {
		out = append(out, market.StockBasic{TSCode: TSCode(q.Code), Name: q.Name})
	}
	return out, nil
}

// Health fetches one bar of the exchange composite.
func (e *Eastmoney) Health(ctx context.Context) Health {
	h := Health{Name: e.Name()}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	end := time.Now().In(e.loc)
	raw, err := e.klines(ctx, market.IndexSSE, kltDaily, end.AddDate(0, 0, -10), end)
	switch {
	case err != nil:
		h.Reason = err.Error()
	case len(raw.Rows) == 0:
		h.Reason = "empty kline response"
	default:
		h.OK = true
	}
	return h
}
