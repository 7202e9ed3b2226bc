package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/types"
)

var ErrUnknownInstrument = errors.New("instrument not found on exchange")

// Kite historical intervals and the span of one bar.
var kiteIntervals = map[string]time.Duration{
	"minute":   time.Minute,
	"3minute":  3 * time.Minute,
	"5minute":  5 * time.Minute,
	"10minute": 10 * time.Minute,
	"15minute": 15 * time.Minute,
	"30minute": 30 * time.Minute,
	"60minute": time.Hour,
	"day":      24 * time.Hour,
}

func ValidKiteInterval(name string) bool {
	_, ok := kiteIntervals[name]
	return ok
}

// Indian cash session, used to turn a bar count into a calendar window.
const kiteSessionLength = 375 * time.Minute

type KiteFeedConfig struct {
	APIKey      string
	AccessToken string
	BaseURL     string
	Exchange    string
	Interval    string
	CacheTTL    time.Duration
}

type cachedSeries struct {
	points  []types.PricePoint
	fetched time.Time
	n       int
}

// KiteCandleFeed pulls historical candles from Kite Connect. Symbols resolve
// to instrument tokens through the exchange instrument dump, loaded once.
// Responses are cached per symbol for CacheTTL so a cycle that revisits a
// symbol does not hit the rate-limited historical endpoint twice.
type KiteCandleFeed struct {
	exchange string
	interval string
	barSpan  time.Duration
	ttl      time.Duration
	now      func() time.Time

	instruments func() (kiteconnect.Instruments, error)
	history     func(token int, from, to time.Time) ([]kiteconnect.HistoricalData, error)

	mu     sync.Mutex
	tokens map[string]int
	cache  map[string]cachedSeries
}

func NewKiteCandleFeed(cfg KiteFeedConfig) (*KiteCandleFeed, error) {
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, errors.New("kite feed: KITE_API_KEY and KITE_ACCESS_TOKEN are required")
	}
	kc := kiteconnect.New(cfg.APIKey)
	kc.SetAccessToken(cfg.AccessToken)
	if cfg.BaseURL != "" {
		kc.SetBaseURI(cfg.BaseURL)
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = kiteconnect.ExchangeNSE
	}
	f, err := newKiteCandleFeed(exchange, cfg.Interval, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	f.instruments = func() (kiteconnect.Instruments, error) {
		return kc.GetInstrumentsByExchange(exchange)
	}
	interval := f.interval
	f.history = func(token int, from, to time.Time) ([]kiteconnect.HistoricalData, error) {
		return kc.GetHistoricalData(token, interval, from, to, false, false)
	}
	return f, nil
}

func newKiteCandleFeed(exchange, interval string, ttl time.Duration) (*KiteCandleFeed, error) {
	if interval == "" {
		interval = "day"
	}
	span, ok := kiteIntervals[interval]
	if !ok {
		return nil, fmt.Errorf("kite feed: unsupported interval %q", interval)
	}
	return &KiteCandleFeed{
		exchange: exchange,
		interval: interval,
		barSpan:  span,
		ttl:      ttl,
		now:      time.Now,
		tokens:   make(map[string]int),
		cache:    make(map[string]cachedSeries),
	}, nil
}

func (f *KiteCandleFeed) token(ctx context.Context, symbol string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.tokens) == 0 {
		list, err := f.instruments()
		if err != nil {
			return 0, fmt.Errorf("load %s instruments: %w", f.exchange, err)
		}
		for _, in := range list {
			if in.Exchange != "" && in.Exchange != f.exchange {
				continue
			}
			f.tokens[strings.ToUpper(in.Tradingsymbol)] = in.InstrumentToken
		}
		logger.Info(ctx, "Kite instruments loaded", "exchange", f.exchange, "count", len(f.tokens))
	}
	tok, ok := f.tokens[symbol]
	if !ok {
		return 0, fmt.Errorf("%s on %s: %w", symbol, f.exchange, ErrUnknownInstrument)
	}
	return tok, nil
}

// window is the calendar range that should hold at least n bars, allowing
// for weekends and holidays.
func (f *KiteCandleFeed) window(n int) time.Duration {
	if f.barSpan >= 24*time.Hour {
		return time.Duration(n*2+10) * 24 * time.Hour
	}
	perSession := int(kiteSessionLength / f.barSpan)
	if perSession < 1 {
		perSession = 1
	}
	days := n/perSession + 1
	return time.Duration(days*2+4) * 24 * time.Hour
}

// RecentCandles returns at most n of the latest candles for symbol.
func (f *KiteCandleFeed) RecentCandles(ctx context.Context, symbol string, n int) ([]types.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	now := f.now()

	f.mu.Lock()
	if c, ok := f.cache[symbol]; ok && c.n >= n && now.Sub(c.fetched) < f.ttl {
		f.mu.Unlock()
		return tail(c.points, n), nil
	}
	f.mu.Unlock()

	tok, err := f.token(ctx, symbol)
	if err != nil {
		return nil, err
	}
	data, err := f.history(tok, now.Add(-f.window(n)), now)
	if err != nil {
		return nil, fmt.Errorf("kite historical %s: %w", symbol, err)
	}

	points := make([]types.PricePoint, 0, len(data))
	for _, d := range data {
		points = append(points, types.PricePoint{
			Time:   d.Date.Time,
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: float64(d.Volume),
		})
	}
	logger.Debug(ctx, "Kite candles fetched", "symbol", symbol, "token", tok, "interval", f.interval, "bars", len(points))

	f.mu.Lock()
	f.cache[symbol] = cachedSeries{points: points, fetched: now, n: n}
	f.mu.Unlock()
	return tail(points, n), nil
}

func tail(points []types.PricePoint, n int) []types.PricePoint {
	if n > 0 && len(points) > n {
		points = points[len(points)-n:]
	}
	out := make([]types.PricePoint, len(points))
	copy(out, points)
	return out
}
