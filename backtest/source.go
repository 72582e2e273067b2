package backtest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/ashare/market"
)

// Bars supplies canonical daily and 5-minute frames. A missing minute
// session is an empty frame or an error wrapping errs.ErrDataInsufficient.
type Bars interface {
	Daily(ctx context.Context, symbol string, start, end time.Time) (market.Frame, error)
	Intraday(ctx context.Context, symbol string, day time.Time) (market.Frame, error)
}

// Universe returns the ranked candidate list for a day. A nil list with a
// nil error means no list exists for that day.
type Universe interface {
	Candidates(day time.Time) ([]string, error)
}

// CandidateDir reads <dir>/candidate_pool_<YYYYMMDD>.csv files with a
// ts_code column.
type CandidateDir string

func (d CandidateDir) Path(day time.Time) string {
	return filepath.Join(string(d), fmt.Sprintf("candidate_pool_%s.csv", day.Format("20060102")))
}

func (d CandidateDir) Candidates(day time.Time) ([]string, error) {
	f, err := os.Open(d.Path(day))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.Path(day), err)
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == "ts_code" {
			col = i
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%s: no ts_code column", d.Path(day))
	}

	out := []string{}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", d.Path(day), err)
		}
		if col < len(rec) && strings.TrimSpace(rec[col]) != "" {
			out = append(out, strings.TrimSpace(rec[col]))
		}
	}
	return out, nil
}

// WriteCandidates writes a candidate_pool file for day.
func (d CandidateDir) WriteCandidates(day time.Time, codes []string) error {
	if err := os.MkdirAll(string(d), 0o755); err != nil {
		return err
	}
	f, err := os.Create(d.Path(day))
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"ts_code"})
	for _, c := range codes {
		_ = w.Write([]string{c})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// StaticUniverse serves the same candidates every day.
type StaticUniverse []string

func (u StaticUniverse) Candidates(time.Time) ([]string, error) { return u, nil }
