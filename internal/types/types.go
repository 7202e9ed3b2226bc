package types

import "time"

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// PricePoint is one bar of a symbol's price history.
type PricePoint struct {
	Time                           time.Time
	Open, High, Low, Close, Volume float64
}

type Bollinger struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// TechnicalState is derived from a trailing window of PricePoints. Sufficient
// is false while the window is shorter than the longest lookback, in which case
// the values are best-effort.
type TechnicalState struct {
	Close      float64   `json:"close"`
	RSI        float64   `json:"rsi"`
	MACD       float64   `json:"macd"`
	SMAShort   float64   `json:"sma_short"`
	SMALong    float64   `json:"sma_long"`
	BB         Bollinger `json:"bollinger"`
	Bars       int       `json:"bars"`
	Sufficient bool      `json:"sufficient"`
}

// SentimentObservation is a single scored reading from an external scorer.
// Score is on the canonical 0..1 scale once it has crossed a feed boundary.
type SentimentObservation struct {
	Symbol     string    `json:"symbol"`
	Source     string    `json:"source"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	Time       time.Time `json:"time"`
}

type SentimentState struct {
	Score        float64 `json:"score"`
	Confidence   float64 `json:"confidence"`
	Observations int     `json:"observations"`
}

// Signal is immutable once produced; a newer Signal supersedes it.
type Signal struct {
	Symbol         string    `json:"symbol"`
	Action         Action    `json:"action"`
	Confidence     float64   `json:"confidence"`
	SentimentScore float64   `json:"sentiment_score"`
	TechnicalScore float64   `json:"technical_score"`
	CombinedScore  float64   `json:"combined_score"`
	Reasoning      string    `json:"reasoning"`
	Time           time.Time `json:"time"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the signal must no longer be acted upon at now.
func (s Signal) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Order is an accepted trade decision handed to an executor.
type Order struct {
	Symbol          string  `json:"symbol"`
	Action          Action  `json:"action"`
	Quantity        int     `json:"quantity"`
	StopLossPrice   float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice float64 `json:"take_profit_price,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StepDecision is the risk outcome of one live cycle. Price is the booked
// fill price, which for a stop-out is the stop level.
type StepDecision struct {
	Accepted bool    `json:"accepted"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
	Reason   string  `json:"reason"`
	Forced   bool    `json:"forced"`
	Exit     string  `json:"exit,omitempty"`
}

type StepResult struct {
	Symbol    string         `json:"symbol"`
	Signal    Signal         `json:"signal"`
	Technical TechnicalState `json:"technical"`
	Sentiment SentimentState `json:"sentiment"`
	Price     float64        `json:"price"`
	Time      time.Time      `json:"time"`
	Decision  StepDecision   `json:"decision"`
	Orders    []OrderResp    `json:"orders"`
}
