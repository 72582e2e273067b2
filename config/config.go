package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/ashare/backtest"
	"github.com/rustyeddy/ashare/candidates"
	"github.com/rustyeddy/ashare/market"
	"github.com/rustyeddy/ashare/pkg/errs"
	"github.com/rustyeddy/ashare/provider"
	"github.com/rustyeddy/ashare/recommend"
)

// Config represents the complete engine configuration
type Config struct {
	Timezone       string `json:"timezone" yaml:"timezone"`
	DataProvider   string `json:"data_provider" yaml:"data_provider"`
	StrictRealData bool   `json:"strict_real_data" yaml:"strict_real_data"`
	RequestTimeout string `json:"request_timeout" yaml:"request_timeout"` // e.g. "20s"
	DataRoot       string `json:"data_root" yaml:"data_root"`
	OutDir         string `json:"out_dir" yaml:"out_dir"`
	ChatDB         string `json:"chat_db" yaml:"chat_db"`

	Universe   UniverseConfig   `json:"universe" yaml:"universe"`
	Fees       backtest.Fees    `json:"fees" yaml:"fees"`
	Experiment ExperimentConfig `json:"experiment" yaml:"experiment"`
	Bars       BarsConfig       `json:"bars" yaml:"bars"`
	Redis      RedisConfig      `json:"redis" yaml:"redis"`
	Archive    ArchiveConfig    `json:"archive" yaml:"archive"`
	Server     ServerConfig     `json:"server" yaml:"server"`
}

// UniverseConfig holds the candidate filters and the tradeable minimums
type UniverseConfig struct {
	PriceMin               float64 `json:"price_min" yaml:"price_min"`
	PriceMax               float64 `json:"price_max" yaml:"price_max"`
	NewStockDays           int     `json:"new_stock_days" yaml:"new_stock_days"`
	DynamicPoolSize        int     `json:"dynamic_pool_size" yaml:"dynamic_pool_size"`
	RestrictToMainline     bool    `json:"restrict_to_mainline" yaml:"restrict_to_mainline"`
	MainlineTopN           int     `json:"mainline_top_n" yaml:"mainline_top_n"`
	MinAvgAmount           float64 `json:"min_avg_amount" yaml:"min_avg_amount"`
	MaxPerIndustry         int     `json:"max_per_industry" yaml:"max_per_industry"`
	TradeableMinUniverse   int     `json:"tradeable_min_universe" yaml:"tradeable_min_universe"`
	TradeableMinCandidates int     `json:"tradeable_min_candidates" yaml:"tradeable_min_candidates"`
}

// ExperimentConfig drives backtests and sizes trade plans
type ExperimentConfig struct {
	CandidateSize int     `json:"candidate_size" yaml:"candidate_size"`
	InitialCash   float64 `json:"initial_cash" yaml:"initial_cash"`
	RunID         string  `json:"run_id" yaml:"run_id"`
	RequireTrades bool    `json:"require_trades" yaml:"require_trades"`
	UniverseDir   string  `json:"universe_dir,omitempty" yaml:"universe_dir,omitempty"`
	ResultsDir    string  `json:"results_dir,omitempty" yaml:"results_dir,omitempty"`
	JournalDB     string  `json:"journal_db,omitempty" yaml:"journal_db,omitempty"`
	// Strategies maps a backtest strategy name to its params.
	Strategies map[string]map[string]any `json:"strategies,omitempty" yaml:"strategies,omitempty"`
}

type BarsConfig struct {
	DailyAdj string `json:"daily_adj" yaml:"daily_adj"` // "qfq" or "none"
	MinFreq  string `json:"min_freq" yaml:"min_freq"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string `json:"-" yaml:"-"`
	DB       int    `json:"db" yaml:"db"`
}

type ArchiveConfig struct {
	DSN string `json:"-" yaml:"-"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LoadEnv reads .env style files into the process environment. Missing
// files are skipped and variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env %s: %w", f, err)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a file (YAML or JSON), applies
// environment overrides and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Config("config", "read config file: %v", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, errs.Config("config", "parse config (tried YAML and JSON): %v", err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is LoadFromFile for a non-empty path and the environment applied
// to Default otherwise.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	cfg := Default()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON otherwise)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides file values with the GP_* variables and the
// provider, strictness and timezone variables. Unparseable values are
// config errors.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var bad []string
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				bad = append(bad, key)
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				bad = append(bad, key)
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, ok := parseBool(v)
			if !ok {
				bad = append(bad, key)
				return
			}
			*dst = b
		}
	}

	u := &c.Universe
	num("GP_MIN_AVG_AMOUNT", &u.MinAvgAmount)
	num("GP_PRICE_MIN", &u.PriceMin)
	num("GP_PRICE_MAX", &u.PriceMax)
	integer("GP_NEW_STOCK_DAYS", &u.NewStockDays)
	integer("GP_DYNAMIC_POOL_SIZE", &u.DynamicPoolSize)
	flag("GP_RESTRICT_MAINLINE", &u.RestrictToMainline)
	integer("GP_MAINLINE_TOP_N", &u.MainlineTopN)
	integer("GP_MAX_PER_INDUSTRY", &u.MaxPerIndustry)
	integer("GP_TRADEABLE_MIN_UNIVERSE", &u.TradeableMinUniverse)
	integer("GP_TRADEABLE_MIN_CANDIDATES", &u.TradeableMinCandidates)
	str("DATA_PROVIDER", &c.DataProvider)
	flag("STRICT_REAL_DATA", &c.StrictRealData)
	// A TZ of the ":path" form names a file, not a zone.
	if tz := strings.TrimSpace(getenv("TZ")); tz != "" && !strings.HasPrefix(tz, ":") {
		c.Timezone = tz
	}
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("ARCHIVE_DSN", &c.Archive.DSN)

	if len(bad) > 0 {
		return errs.Config("config", "invalid environment values: %s", strings.Join(bad, ", "))
	}
	return nil
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	}
	return false, false
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return errs.Config("config", format, args...)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil && c.Timezone != market.DefaultTimezone {
		return fail("unknown timezone %q", c.Timezone)
	}
	if c.DataProvider == "" {
		return fail("data_provider is required")
	}
	if _, err := c.Timeout(); err != nil {
		return fail("request_timeout: %v", err)
	}
	u := c.Universe
	if u.PriceMin < 0 || u.PriceMax <= 0 {
		return fail("universe price bounds must be positive")
	}
	if u.PriceMax <= u.PriceMin {
		return fail("universe.price_max must be greater than price_min")
	}
	if u.NewStockDays < 0 || u.DynamicPoolSize <= 0 || u.MainlineTopN <= 0 || u.MaxPerIndustry <= 0 {
		return fail("universe sizes must be positive")
	}
	if u.MinAvgAmount < 0 {
		return fail("universe.min_avg_amount must not be negative")
	}
	if u.TradeableMinUniverse < 0 || u.TradeableMinCandidates < 0 {
		return fail("tradeable minimums must not be negative")
	}
	f := c.Fees
	for name, r := range map[string]float64{
		"commission_rate":   f.CommissionRate,
		"commission_cap":    f.CommissionCap,
		"transfer_fee_rate": f.TransferFeeRate,
		"stamp_duty_rate":   f.StampDutyRate,
	} {
		if r < 0 || r >= 1 {
			return fail("fees.%s must be between 0 and 1", name)
		}
	}
	if f.SlippageBps < 0 || f.MinCommission < 0 {
		return fail("fees slippage_bps and min_commission must not be negative")
	}
	if c.Experiment.InitialCash <= 0 {
		return fail("experiment.initial_cash must be positive")
	}
	if c.Experiment.CandidateSize <= 0 {
		return fail("experiment.candidate_size must be positive")
	}
	if c.Bars.DailyAdj != provider.AdjustQFQ && c.Bars.DailyAdj != provider.AdjustNone {
		return fail("bars.daily_adj must be 'qfq' or 'none'")
	}
	if c.Bars.MinFreq != "5min" {
		return fail("bars.min_freq must be '5min'")
	}
	return nil
}

// Timeout parses RequestTimeout. Empty means the provider default.
func (c *Config) Timeout() (time.Duration, error) {
	if c.RequestTimeout == "" {
		return provider.DefaultTimeout, nil
	}
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}

func (c *Config) Location() *time.Location {
	return market.LoadLocation(c.Timezone)
}

// ProviderOptions are the adapter options implied by the config.
func (c *Config) ProviderOptions(log *slog.Logger) provider.Options {
	timeout, _ := c.Timeout()
	return provider.Options{
		Root:           c.DataRoot,
		DailyAdjust:    c.Bars.DailyAdj,
		StrictRealData: c.StrictRealData,
		Timeout:        timeout,
		Location:       c.Location(),
		Logger:         log,
	}
}

// RecommendOptions wires p into the orchestrator options. Announcement
// and event sources, the archive and the clock are left to the caller.
func (c *Config) RecommendOptions(p provider.Provider, log *slog.Logger) recommend.Options {
	u := c.Universe
	return recommend.Options{
		Provider: p,
		Candidates: candidates.Options{
			PriceMin:           u.PriceMin,
			PriceMax:           u.PriceMax,
			NewStockDays:       u.NewStockDays,
			DynamicPoolSize:    u.DynamicPoolSize,
			RestrictToMainline: u.RestrictToMainline,
			MainlineTopN:       u.MainlineTopN,
			MinAvgAmount:       u.MinAvgAmount,
			Logger:             log,
		},
		MaxPerIndustry: u.MaxPerIndustry,
		MinUniverse:    u.TradeableMinUniverse,
		MinCandidates:  u.TradeableMinCandidates,
		InitialCash:    c.Experiment.InitialCash,
		StrictRealData: c.StrictRealData,
		Location:       c.Location(),
		OutDir:         c.OutDir,
		Logger:         log,
	}
}

// BacktestConfig is the engine config for [start, end]. files are the
// config files hashed into the manifest.
func (c *Config) BacktestConfig(start, end time.Time, log *slog.Logger, files ...string) backtest.Config {
	results := c.Experiment.ResultsDir
	if results == "" && c.OutDir != "" {
		results = filepath.Join(c.OutDir, "backtest")
	}
	return backtest.Config{
		RunID:         c.Experiment.RunID,
		Start:         start,
		End:           end,
		InitialCash:   c.Experiment.InitialCash,
		Fees:          c.Fees,
		RequireTrades: c.Experiment.RequireTrades,
		ResultsDir:    results,
		ConfigFiles:   files,
		Logger:        log,
	}
}

// Default returns a configuration with the documented defaults
func Default() *Config {
	return &Config{
		Timezone:       market.DefaultTimezone,
		DataProvider:   "eastmoney",
		StrictRealData: true,
		RequestTimeout: "20s",
		DataRoot:       "./data",
		OutDir:         "./outputs",
		ChatDB:         "./outputs/chat.db",
		Universe: UniverseConfig{
			PriceMin:               2,
			PriceMax:               500,
			NewStockDays:           60,
			DynamicPoolSize:        200,
			RestrictToMainline:     true,
			MainlineTopN:           2,
			MinAvgAmount:           5e8,
			MaxPerIndustry:         recommend.DefaultMaxPerIndustry,
			TradeableMinUniverse:   recommend.DefaultMinUniverse,
			TradeableMinCandidates: recommend.DefaultMinCandidates,
		},
		Fees: backtest.DefaultFees(),
		Experiment: ExperimentConfig{
			CandidateSize: 20,
			InitialCash:   recommend.DefaultInitialCash,
			RunID:         "default",
		},
		Bars: BarsConfig{
			DailyAdj: provider.AdjustQFQ,
			MinFreq:  "5min",
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}
