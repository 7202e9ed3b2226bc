package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"sentiment-trading-bot/internal/engine"
	"sentiment-trading-bot/internal/interfaces"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/tradelog"
)

// Scheduler drives the live evaluation cycle and the end-of-day tasks.
type Scheduler struct {
	Cron    *cron.Cron
	Engine  interfaces.Engine
	EOD     interfaces.EodSummarizer
	Logs    *tradelog.Log
	Symbols []string
	Workers int

	// RetentionDays is how long trade logs stay uncompressed; 0 keeps them.
	RetentionDays int

	ctx context.Context
	now func() time.Time
}

// New creates a Scheduler whose cron expressions carry a seconds field and
// are evaluated in loc.
func New(ctx context.Context, eng interfaces.Engine, eod interfaces.EodSummarizer, logs *tradelog.Log, symbols []string, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{ctx: ctx}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Engine:  eng,
		EOD:     eod,
		Logs:    logs,
		Symbols: symbols,
		ctx:     ctx,
		now:     time.Now,
	}
}

// RegisterAll registers the evaluation and end-of-day jobs.
func (s *Scheduler) RegisterAll(evalCron, eodCron string) error {
	if _, err := s.Cron.AddFunc(evalCron, s.evalTask); err != nil {
		return fmt.Errorf("register eval task: %w", err)
	}
	if _, err := s.Cron.AddFunc(eodCron, s.eodTask); err != nil {
		return fmt.Errorf("register eod task: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	logger.Info(s.ctx, "Scheduler started", "jobs", len(s.Cron.Entries()))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	logger.Info(s.ctx, "Scheduler stopped")
}

// RunEvalNow runs one evaluation cycle immediately.
func (s *Scheduler) RunEvalNow() { s.evalTask() }

// RunEODNow runs the end-of-day tasks immediately.
func (s *Scheduler) RunEODNow() { s.eodTask() }

func (s *Scheduler) evalTask() {
	if s.ctx.Err() != nil {
		return
	}
	timer := logger.StartOperation(s.ctx, "eval_cycle", "symbols", len(s.Symbols))
	results := engine.StepAll(timer.GetContext(), s.Engine, s.Symbols, s.Workers)

	var accepted int
	for _, r := range results {
		if r.Decision.Accepted {
			accepted++
		}
	}
	timer.End("evaluated", len(results), "accepted", accepted)
}

func (s *Scheduler) eodTask() {
	if s.ctx.Err() != nil {
		return
	}
	if s.EOD != nil {
		if _, err := s.EOD.SummarizeDay(s.ctx, s.now()); err != nil {
			logger.ErrorWithErr(s.ctx, "EOD summary failed", err)
		}
	}
	if s.Logs != nil && s.RetentionDays > 0 {
		n, err := s.Logs.CompressOlder(s.RetentionDays)
		if err != nil {
			logger.ErrorWithErr(s.ctx, "Trade log compression failed", err)
			return
		}
		if n > 0 {
			logger.Info(s.ctx, "Compressed old trade logs", "files", n)
		}
	}
}

// cronLogger routes cron's own messages to the structured logger.
type cronLogger struct {
	ctx context.Context
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug(l.ctx, "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.ErrorWithErr(l.ctx, "cron: "+msg, err, keysAndValues...)
}
