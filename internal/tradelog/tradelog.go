package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Entry is one committed trade, including forced exits and orders the
// executor failed to place.
type Entry struct {
	Time        string  `json:"time"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Qty         int     `json:"qty"`
	Price       float64 `json:"price"`
	OrderID     string  `json:"order_id,omitempty"`
	Status      string  `json:"status,omitempty"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
	StopLoss    float64 `json:"stop_loss,omitempty"`
	TakeProfit  float64 `json:"take_profit,omitempty"`
	RealizedPnL float64 `json:"realized_pnl,omitempty"`
	Forced      bool    `json:"forced,omitempty"`
	Exit        string  `json:"exit,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// DecisionEntry records every fused signal, accepted or not.
type DecisionEntry struct {
	Time           string             `json:"time"`
	Symbol         string             `json:"symbol"`
	Action         string             `json:"action"`
	Confidence     float64            `json:"confidence"`
	Price          float64            `json:"price"`
	SentimentScore float64            `json:"sentiment_score"`
	TechnicalScore float64            `json:"technical_score"`
	CombinedScore  float64            `json:"combined_score"`
	Accepted       bool               `json:"accepted"`
	Reason         string             `json:"reason"`
	Risk           string             `json:"risk,omitempty"`
	Indicators     map[string]float64 `json:"indicators,omitempty"`
}

// Log appends JSON lines to one file per trading day under Dir, with
// decisions kept in Dir/decisions.
type Log struct {
	dir string
	loc *time.Location
	now func() time.Time

	mu sync.Mutex
}

// New returns a Log rooted at dir. Day boundaries use loc (UTC when nil).
func New(dir string, loc *time.Location) *Log {
	if dir == "" {
		dir = "logs"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Log{dir: dir, loc: loc, now: time.Now}
}

// WithClock replaces the wall clock, mainly for tests.
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

func (l *Log) Dir() string              { return l.dir }
func (l *Log) Location() *time.Location { return l.loc }

func (l *Log) day(t time.Time) string { return t.In(l.loc).Format("2006-01-02") }

// TradesPath is the trade file for the trading day containing t.
func (l *Log) TradesPath(t time.Time) string {
	return filepath.Join(l.dir, l.day(t)+".txt")
}

func (l *Log) DecisionsPath(t time.Time) string {
	return filepath.Join(l.dir, "decisions", l.day(t)+".txt")
}

func (l *Log) Append(e Entry) error {
	now := l.now()
	if e.Time == "" {
		e.Time = now.In(l.loc).Format(timeLayout)
	}
	return l.appendLine(l.TradesPath(now), e)
}

func (l *Log) AppendDecision(e DecisionEntry) error {
	now := l.now()
	if e.Time == "" {
		e.Time = now.In(l.loc).Format(timeLayout)
	}
	return l.appendLine(l.DecisionsPath(now), e)
}

func (l *Log) appendLine(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode log line: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips day files last modified more than retentionDays ago
// and removes the originals. It returns the number of files compressed.
func (l *Log) CompressOlder(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := l.now().AddDate(0, 0, -retentionDays)

	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	err := filepath.WalkDir(l.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".txt") {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := gzipFile(p); err != nil {
			return fmt.Errorf("compress %s: %w", p, err)
		}
		n++
		return nil
	})
	return n, err
}

func gzipFile(p string) error {
	gz := p + ".gz"
	if _, err := os.Stat(gz); err == nil {
		return os.Remove(p)
	}

	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(gz)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(p)
}
