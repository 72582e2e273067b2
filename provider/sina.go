package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/rustyeddy/ashare/market"
	"github.com/rustyeddy/ashare/pkg/errs"
)

const (
	sinaQuoteURL = "http://hq.sinajs.cn"
	sinaBatch    = 800
)

var sinaLine = regexp.MustCompile(`var hq_str_(\w+)="([^"]*)"`)

// Sina quotes a fixed code list. It serves the snapshot only; the
// response body is GBK.
type Sina struct {
	baseURL string
	codes   []string
	client  *http.Client
	loc     *time.Location
}

func NewSina(o Options) *Sina {
	s := &Sina{baseURL: o.QuoteURL, codes: o.Codes, client: o.client(), loc: o.location()}
	if s.baseURL == "" {
		s.baseURL = sinaQuoteURL
	}
	return s
}

func (s *Sina) Name() string { return "sina" }

func (s *Sina) Daily(context.Context, string, time.Time, time.Time) (market.Frame, error) {
	return market.Frame{}, unsupported(s.Name(), "daily")
}

func (s *Sina) Intraday(context.Context, string, time.Time) (market.Frame, error) {
	return market.Frame{}, unsupported(s.Name(), "intraday")
}

func (s *Sina) fetch(ctx context.Context, codes []string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/list="+strings.Join(codes, ","), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Referer", "http://finance.sina.com.cn/")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(transform.NewReader(resp.Body, simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// parseQuotes reads name,open,prev_close,price,high,low,bid,ask,volume,amount,...
func parseQuotes(body string) []market.Quote {
	var out []market.Quote
	for _, m := range sinaLine.FindAllStringSubmatch(body, -1) {
		fields := strings.Split(m[2], ",")
		if len(fields) < 10 {
			continue
		}
		price, prev := parseNum(fields[3]), parseNum(fields[2])
		q := market.Quote{
			Code:   PlainCode(m[1]),
			Name:   fields[0],
			Price:  price,
			Amount: parseNum(fields[9]),
		}
		if prev > 0 && price > 0 {
			q.ChangePct = (price - prev) / prev * 100
		}
		out = append(out, q)
	}
	return out
}

func (s *Sina) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	const op = "sina snapshot"
	if len(s.codes) == 0 {
		return nil, errs.Provider(op, fmt.Errorf("no codes configured"))
	}
	snap := &market.Snapshot{AsOf: time.Now().In(s.loc), Source: s.Name()}
	for i := 0; i < len(s.codes); i += sinaBatch {
		batch := s.codes[i:min(i+sinaBatch, len(s.codes))]
		list := make([]string, len(batch))
		for j, c := range batch {
			list[j] = SinaCode(c)
		}
		body, err := s.fetch(ctx, list)
		if err != nil {
			return nil, errs.Provider(op, err)
		}
		snap.Quotes = append(snap.Quotes, parseQuotes(body)...)
	}
	return snap, nil
}

func (s *Sina) StockBasic(ctx context.Context) ([]market.StockBasic, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.StockBasic, 0, len(snap.Quotes))
	for _, q := range snap.Quotes {
		out = append(out, market.StockBasic{TSCode: TSCode(q.Code), Name: q.Name})
	}
	return out, nil
}

func (s *Sina) Health(ctx context.Context) Health {
	h := Health{Name: s.Name()}
	if len(s.codes) == 0 {
		h.Reason = "no codes configured"
		return h
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	body, err := s.fetch(ctx, []string{SinaCode(s.codes[0])})
	switch {
	case err != nil:
		h.Reason = err.Error()
	case len(parseQuotes(body)) == 0:
		h.Reason = "empty quote response"
	default:
		h.OK = true
	}
	return h
}
