package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"sentiment-trading-bot/internal/backtest"
	"sentiment-trading-bot/internal/executor"
	"sentiment-trading-bot/internal/feed"
	"sentiment-trading-bot/internal/fusion"
	"sentiment-trading-bot/internal/risk"
	"sentiment-trading-bot/internal/sentiment"
	"sentiment-trading-bot/internal/ta"
)

const (
	DataSourceCSV  = "CSV"
	DataSourceKite = "KITE"
)

// ErrInvalidConfiguration is returned for any configuration that must not be
// evaluated. It is always fatal.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// cronParser accepts the seconds field used by the scheduler.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Config struct {
	Mode     string   `yaml:"mode"`
	Universe []string `yaml:"universe"`
	Schedule struct {
		EvalCron string `yaml:"eval_cron"`
		EODCron  string `yaml:"eod_cron"`
		Timezone string `yaml:"timezone"`
	} `yaml:"schedule"`
	Fusion struct {
		SentimentWeight float64       `yaml:"sentiment_weight"`
		TechnicalWeight float64       `yaml:"technical_weight"`
		BuyThreshold    float64       `yaml:"buy_threshold"`
		SellThreshold   float64       `yaml:"sell_threshold"`
		SignalTTL       time.Duration `yaml:"signal_ttl"`
	} `yaml:"fusion"`
	Indicators struct {
		RSIPeriod int     `yaml:"rsi_period"`
		SMAShort  int     `yaml:"sma_short"`
		SMALong   int     `yaml:"sma_long"`
		MACDFast  int     `yaml:"macd_fast"`
		MACDSlow  int     `yaml:"macd_slow"`
		BBWindow  int     `yaml:"bb_window"`
		BBStdDev  float64 `yaml:"bb_stddev"`
		Lookback  int     `yaml:"lookback"`
	} `yaml:"indicators"`
	Sentiment struct {
		Staleness time.Duration `yaml:"staleness"`
		Scale     string        `yaml:"scale"`
		CacheTTL  time.Duration `yaml:"cache_ttl"`
		File      string        `yaml:"file"`
	} `yaml:"sentiment"`
	Risk struct {
		MaxPositionSize    float64 `yaml:"max_position_size"`
		MaxDailyLoss       float64 `yaml:"max_daily_loss"`
		MaxOpenPositions   int     `yaml:"max_open_positions"`
		StopLossPct        float64 `yaml:"stop_loss_pct"`
		TakeProfitPct      float64 `yaml:"take_profit_pct"`
		AllocationFraction float64 `yaml:"allocation_fraction"`
		MinTick            float64 `yaml:"min_tick"`
	} `yaml:"risk"`
	Portfolio struct {
		InitialCash float64 `yaml:"initial_cash"`
		StateFile   string  `yaml:"state_file"`
	} `yaml:"portfolio"`
	Executor struct {
		Provider      string `yaml:"provider"`
		Exchange      string `yaml:"exchange"`
		AlpacaBaseURL string `yaml:"alpaca_base_url"`
		Bracket       bool   `yaml:"bracket"`
	} `yaml:"executor"`
	Data struct {
		Source    string        `yaml:"source"`
		PricesDir string        `yaml:"prices_dir"`
		Interval  string        `yaml:"interval"`
		CacheTTL  time.Duration `yaml:"cache_ttl"`
	} `yaml:"data"`
	Backtest struct {
		InitialCapital float64 `yaml:"initial_capital"`
		PeriodsPerYear int     `yaml:"periods_per_year"`
		MinBars        int     `yaml:"min_bars"`
		Workers        int     `yaml:"workers"`
		DBPath         string  `yaml:"db_path"`
		BarAligned     bool    `yaml:"bar_aligned"`
	} `yaml:"backtest"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Logs struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"logs"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() *Config {
	var c Config
	c.Mode = "DRY_RUN"

	c.Schedule.EvalCron = "0 */5 * * * *"
	c.Schedule.EODCron = "0 40 15 * * 1-5"
	c.Schedule.Timezone = "UTC"

	fc := fusion.DefaultConfig()
	c.Fusion.SentimentWeight = fc.Weights.Sentiment
	c.Fusion.TechnicalWeight = fc.Weights.Technical
	c.Fusion.BuyThreshold = fc.Thresholds.Buy
	c.Fusion.SellThreshold = fc.Thresholds.Sell
	c.Fusion.SignalTTL = fc.SignalTTL

	p := ta.DefaultPeriods()
	c.Indicators.RSIPeriod = p.RSI
	c.Indicators.SMAShort = p.SMAShort
	c.Indicators.SMALong = p.SMALong
	c.Indicators.MACDFast = p.MACDFast
	c.Indicators.MACDSlow = p.MACDSlow
	c.Indicators.BBWindow = p.BBWindow
	c.Indicators.BBStdDev = p.BBStdDevs
	c.Indicators.Lookback = 100

	sc := sentiment.DefaultServiceConfig()
	c.Sentiment.Staleness = sc.Staleness
	c.Sentiment.CacheTTL = sc.CacheDuration
	c.Sentiment.Scale = string(sentiment.ScaleUnit)
	c.Sentiment.File = "data/sentiment.csv"

	l := risk.DefaultLimits()
	c.Risk.MaxPositionSize = l.MaxPositionSize
	c.Risk.MaxDailyLoss = l.MaxDailyLoss
	c.Risk.MaxOpenPositions = l.MaxOpenPositions
	c.Risk.StopLossPct = l.StopLossPct
	c.Risk.TakeProfitPct = l.TakeProfitPct
	c.Risk.AllocationFraction = l.AllocationFraction
	c.Risk.MinTick = l.MinTick

	c.Portfolio.InitialCash = 100000
	c.Portfolio.StateFile = "data/portfolio.json"

	c.Executor.Provider = string(executor.ProviderDryRun)
	c.Executor.Exchange = "NSE"

	c.Data.Source = DataSourceCSV
	c.Data.PricesDir = "data/prices"
	c.Data.Interval = "day"
	c.Data.CacheTTL = time.Minute

	c.Backtest.InitialCapital = 10000
	c.Backtest.PeriodsPerYear = backtest.DefaultPeriodsPerYear
	c.Backtest.Workers = 4
	c.Backtest.DBPath = "data/backtests.db"

	c.Metrics.Addr = ":9090"

	c.Logs.Dir = "logs"
	c.Logs.RetentionDays = 30
	return &c
}

// Validate reports every problem at once, wrapped in ErrInvalidConfiguration.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		add("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Universe) == 0 {
		add("universe cannot be empty")
	}

	if _, err := cronParser.Parse(c.Schedule.EvalCron); err != nil {
		add("schedule.eval_cron %q: %v", c.Schedule.EvalCron, err)
	}
	if _, err := cronParser.Parse(c.Schedule.EODCron); err != nil {
		add("schedule.eod_cron %q: %v", c.Schedule.EODCron, err)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		add("schedule.timezone %q: %v", c.Schedule.Timezone, err)
	}

	f := c.Fusion
	if f.SentimentWeight < 0 || f.TechnicalWeight < 0 {
		add("fusion weights must not be negative, got sentiment=%.2f technical=%.2f", f.SentimentWeight, f.TechnicalWeight)
	} else if f.SentimentWeight+f.TechnicalWeight == 0 {
		add("fusion weights cannot both be zero")
	}
	if f.BuyThreshold < 0 || f.BuyThreshold > 1 || f.SellThreshold < 0 || f.SellThreshold > 1 {
		add("fusion thresholds must be within [0,1], got buy=%.2f sell=%.2f", f.BuyThreshold, f.SellThreshold)
	}
	if f.BuyThreshold <= f.SellThreshold {
		add("fusion.buy_threshold (%.2f) must be above fusion.sell_threshold (%.2f)", f.BuyThreshold, f.SellThreshold)
	}
	if f.SignalTTL <= 0 {
		add("fusion.signal_ttl must be positive, got %s", f.SignalTTL)
	}

	ind := c.Indicators
	if ind.RSIPeriod < 1 || ind.SMAShort < 1 || ind.SMALong < 1 || ind.MACDFast < 1 || ind.BBWindow < 2 {
		add("indicator periods must be positive (bb_window at least 2)")
	}
	if ind.MACDFast >= ind.MACDSlow {
		add("indicators.macd_fast (%d) must be below indicators.macd_slow (%d)", ind.MACDFast, ind.MACDSlow)
	}
	if ind.BBStdDev <= 0 {
		add("indicators.bb_stddev must be positive, got %.2f", ind.BBStdDev)
	}
	if need := c.Periods().Required(); ind.Lookback < need {
		add("indicators.lookback (%d) must cover the %d bars the indicators need", ind.Lookback, need)
	}

	if _, err := sentiment.ParseScale(c.Sentiment.Scale); err != nil {
		add("sentiment.scale: %v", err)
	}
	if c.Sentiment.Staleness < 0 || c.Sentiment.CacheTTL < 0 {
		add("sentiment durations must not be negative")
	}

	if err := c.Limits().Validate(); err != nil {
		add("risk: %w", err)
	}
	if c.Portfolio.InitialCash <= 0 {
		add("portfolio.initial_cash must be positive, got %.2f", c.Portfolio.InitialCash)
	}

	if _, err := executor.ParseProvider(c.Executor.Provider); err != nil {
		add("executor.provider: %v", err)
	}

	switch c.Data.Source {
	case DataSourceCSV:
		if c.Data.PricesDir == "" {
			add("data.prices_dir is required for the CSV source")
		}
	case DataSourceKite:
		if !feed.ValidKiteInterval(c.Data.Interval) {
			add("data.interval %q is not a Kite historical interval", c.Data.Interval)
		}
	default:
		add("invalid data.source '%s': must be '%s' or '%s'", c.Data.Source, DataSourceCSV, DataSourceKite)
	}

	b := c.Backtest
	if b.InitialCapital <= 0 {
		add("backtest.initial_capital must be positive, got %.2f", b.InitialCapital)
	}
	if b.PeriodsPerYear <= 0 || b.Workers < 1 || b.MinBars < 0 {
		add("backtest: periods_per_year and workers must be positive and min_bars not negative")
	}
	if c.Logs.RetentionDays < 0 {
		add("logs.retention_days must not be negative, got %d", c.Logs.RetentionDays)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.Join(errs...))
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	for i, s := range c.Universe {
		c.Universe[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	c.Mode = strings.ToUpper(c.Mode)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

func (c *Config) FusionConfig() fusion.Config {
	return fusion.Config{
		Weights:    fusion.Weights{Sentiment: c.Fusion.SentimentWeight, Technical: c.Fusion.TechnicalWeight},
		Thresholds: fusion.Thresholds{Buy: c.Fusion.BuyThreshold, Sell: c.Fusion.SellThreshold},
		SignalTTL:  c.Fusion.SignalTTL,
	}
}

func (c *Config) Periods() ta.Periods {
	return ta.Periods{
		RSI:       c.Indicators.RSIPeriod,
		SMAShort:  c.Indicators.SMAShort,
		SMALong:   c.Indicators.SMALong,
		MACDFast:  c.Indicators.MACDFast,
		MACDSlow:  c.Indicators.MACDSlow,
		BBWindow:  c.Indicators.BBWindow,
		BBStdDevs: c.Indicators.BBStdDev,
	}
}

func (c *Config) Limits() risk.Limits {
	return risk.Limits{
		MaxPositionSize:    c.Risk.MaxPositionSize,
		MaxDailyLoss:       c.Risk.MaxDailyLoss,
		MaxOpenPositions:   c.Risk.MaxOpenPositions,
		StopLossPct:        c.Risk.StopLossPct,
		TakeProfitPct:      c.Risk.TakeProfitPct,
		AllocationFraction: c.Risk.AllocationFraction,
		MinTick:            c.Risk.MinTick,
	}
}

// Location falls back to UTC; Validate has already rejected bad zones.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) SentimentScale() sentiment.Scale {
	sc, err := sentiment.ParseScale(c.Sentiment.Scale)
	if err != nil {
		return sentiment.ScaleUnit
	}
	return sc
}

func (c *Config) SentimentService() *sentiment.ServiceConfig {
	return &sentiment.ServiceConfig{
		CacheDuration: c.Sentiment.CacheTTL,
		Staleness:     c.Sentiment.Staleness,
		Enabled:       c.Sentiment.File != "",
	}
}

// ExecutorParams reads broker credentials from the environment. DRY_RUN mode
// always uses the dry-run executor.
func (c *Config) ExecutorParams() executor.Params {
	provider, err := executor.ParseProvider(c.Executor.Provider)
	if err != nil || c.Mode == "DRY_RUN" {
		provider = executor.ProviderDryRun
	}
	p := executor.Params{
		Provider: provider,
		Exchange: c.Executor.Exchange,
		Bracket:  c.Executor.Bracket,
	}
	switch provider {
	case executor.ProviderKite:
		p.APIKey = os.Getenv("KITE_API_KEY")
		p.AccessToken = os.Getenv("KITE_ACCESS_TOKEN")
	case executor.ProviderAlpaca:
		p.APIKey = os.Getenv("ALPACA_API_KEY")
		p.APISecret = os.Getenv("ALPACA_API_SECRET")
		p.BaseURL = c.Executor.AlpacaBaseURL
	}
	return p
}

// KiteFeed builds the Kite market data settings. Credentials are shared with
// the Kite executor.
func (c *Config) KiteFeed() feed.KiteFeedConfig {
	return feed.KiteFeedConfig{
		APIKey:      os.Getenv("KITE_API_KEY"),
		AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
		Exchange:    c.Executor.Exchange,
		Interval:    c.Data.Interval,
		CacheTTL:    c.Data.CacheTTL,
	}
}

// BacktestConfig builds the simulation settings for one symbol from the same
// fusion, indicator and risk settings the live engine uses.
func (c *Config) BacktestConfig(symbol string) backtest.Config {
	return backtest.Config{
		Symbol:         symbol,
		InitialCapital: c.Backtest.InitialCapital,
		Fusion:         c.FusionConfig(),
		Periods:        c.Periods(),
		Limits:         c.Limits(),
		Location:       c.Location(),
		PeriodsPerYear: c.Backtest.PeriodsPerYear,
		Staleness:      c.Sentiment.Staleness,
		MinBars:        c.Backtest.MinBars,
		BarAligned:     c.Backtest.BarAligned,
	}
}
