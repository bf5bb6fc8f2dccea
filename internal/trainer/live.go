package trainer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"DeepTrader/internal/agent"
	"DeepTrader/internal/env"
	"DeepTrader/internal/features"
	"DeepTrader/internal/model"
	"DeepTrader/internal/notifier"
)

// liveSession carries the state one live run accumulates across cycles:
// the fitted pipeline, the learning agent, and continuous episode numbers.
type liveSession struct {
	svc   *Service
	log   zerolog.Logger
	runID string
	pipe  *features.Pipeline
	agent *agent.Agent
	info  model.RunInfo

	mu        sync.Mutex
	episodes  int
	cycles    int
	lastValue float64
}

// Live retrains on fresh market data on the configured cron cadence and
// emits the newest greedy intent through the executor after every cycle.
// It blocks until ctx is cancelled, then waits for an in-flight cycle and
// flushes the best checkpoint.
func (s *Service) Live(ctx context.Context) error {
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Logger()

	bars, err := s.collector.LoadOrFetch(ctx, s.cfg.Data.HistoryDays)
	if err != nil {
		return fmt.Errorf("load market data: %w", err)
	}

	// Live mode holds nothing out: the scaler is fitted once on the
	// startup history and reused for every later Transform.
	pipe := features.NewPipeline()
	frames, err := pipe.Fit(bars)
	if err != nil {
		return fmt.Errorf("fit feature pipeline: %w", err)
	}
	e, err := env.New(frames, s.envConfig())
	if err != nil {
		return fmt.Errorf("build environment: %w", err)
	}
	ag, err := agent.New(e.StateSize(), s.agentConfig(runID), s.store, s.log)
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}
	if restored, err := ag.RestoreBest(); err != nil {
		log.Warn().Err(err).Msg("Could not restore best checkpoint, training from scratch")
	} else if restored {
		log.Info().Float64("best_value", ag.BestValue()).Msg("Restored best checkpoint")
	}

	sess := &liveSession{
		svc:   s,
		log:   log,
		runID: runID,
		pipe:  pipe,
		agent: ag,
		info: model.RunInfo{
			RunID:     runID,
			Mode:      "live",
			Symbol:    s.cfg.Exchange.Symbol,
			Interval:  s.cfg.Exchange.Interval,
			StateSize: e.StateSize(),
			State:     model.RunRunning,
			StartedAt: time.Now(),
		},
	}
	if err := s.recorder.StartRun(sess.info); err != nil {
		log.Error().Err(err).Msg("Failed to record run start")
	}
	s.trySend(ctx, notifier.FormatRunStart(sess.info, s.cfg.Trading.InitialCapital))

	if s.notifier != nil && s.notifier.Enabled() {
		go s.notifier.StartPolling(ctx, s.HandleCommand)
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(s.cfg.Training.CycleCron, func() { sess.runCycle(ctx) }); err != nil {
		return fmt.Errorf("register cycle cron %q: %w", s.cfg.Training.CycleCron, err)
	}

	// First cycle runs on the startup data before the cron takes over.
	sess.recordIndicators(bars)
	sess.trainOn(ctx, frames, log)
	c.Start()
	log.Info().Str("cron", s.cfg.Training.CycleCron).Msg("Live mode running")

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, stopping cycles")
	<-c.Stop().Done()

	if err := ag.FlushBest(); err != nil {
		log.Error().Err(err).Msg("Failed to flush best checkpoint")
	}

	sess.mu.Lock()
	episodes, lastValue := sess.episodes, sess.lastValue
	sess.mu.Unlock()

	s.finishRun(sess.info, model.RunFinished, lastValue, ag.BestValue(), model.EpisodeStats{
		Episode:    episodes,
		FinalValue: lastValue,
		Epsilon:    ag.Epsilon(),
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.trySend(shutdownCtx, notifier.FormatLiveStop(episodes, ag.BestValue()))
	log.Info().Int("episodes", episodes).Float64("best_value", ag.BestValue()).Msg("Live mode stopped")
	return nil
}

// runCycle refetches recent bars and trains a burst on them. Cycles never
// overlap; a tick that lands while one is running is skipped.
func (l *liveSession) runCycle(ctx context.Context) {
	if !l.mu.TryLock() {
		l.log.Warn().Msg("Previous cycle still running, skipping tick")
		return
	}
	defer l.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	l.cycles++
	log := l.log.With().Int("cycle", l.cycles).Logger()
	log.Info().Msg("Training cycle started")

	bars, err := l.svc.collector.Refresh(ctx, l.svc.cfg.Data.HistoryDays)
	if err != nil {
		log.Error().Err(err).Msg("Cycle data refresh failed")
		l.svc.trySend(ctx, notifier.FormatError("live refresh", err))
		return
	}
	l.recordIndicators(bars)

	frames, err := l.pipe.Transform(bars)
	if err != nil {
		log.Error().Err(err).Msg("Cycle feature transform failed")
		return
	}
	l.trainOn(ctx, frames, log)
}

// trainOn runs episodes_per_cycle over the prepared frames, then emits the
// newest greedy intent. Callers hold l.mu except for the first cycle,
// which runs before the cron starts.
func (l *liveSession) trainOn(ctx context.Context, frames []features.Frame, log zerolog.Logger) {
	e, err := env.New(frames, l.svc.envConfig())
	if err != nil {
		log.Error().Err(err).Msg("Cycle environment build failed")
		return
	}

	per := l.svc.cfg.Training.EpisodesPerCycle
	sink := l.svc.episodeSink(ctx, l.info, l.episodes+per, l.agent, l.episodes)
	stats, err := l.agent.Train(ctx, e, per, sink)
	l.episodes += len(stats)
	if len(stats) > 0 {
		l.lastValue = stats[len(stats)-1].FinalValue
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		log.Error().Err(err).Msg("Cycle training failed")
		l.svc.trySend(ctx, notifier.FormatError("live train", err))
		return
	}

	l.emitIntent(ctx, frames, log)
	log.Info().
		Int("episodes_total", l.episodes).
		Float64("value", l.lastValue).
		Float64("best_value", l.agent.BestValue()).
		Msg("Training cycle finished")
}

// emitIntent replays the greedy policy over the cycle's frames and hands
// the decision at the newest bar to the executor. The greedy portfolio
// supplies the order size; a forced liquidation on the newest bar raises
// an alert.
func (l *liveSession) emitIntent(ctx context.Context, frames []features.Frame, log zerolog.Logger) {
	e, err := env.New(frames, l.svc.envConfig())
	if err != nil {
		log.Error().Err(err).Msg("Greedy environment build failed")
		return
	}
	_, trades, err := l.agent.RunGreedy(ctx, e)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Greedy pass failed")
		}
		return
	}
	if n := len(trades); n > 0 && trades[n-1].Forced {
		l.svc.trySend(ctx, notifier.FormatForcedExit(trades[n-1]))
	}

	d := l.agent.Decide(e.Observation())
	p := e.Portfolio()
	price := e.CurrentPrice()
	intent := model.Intent{
		Time:   frames[len(frames)-1].Time,
		Symbol: l.svc.cfg.Exchange.Symbol,
		Action: d.Action,
		Name:   d.Action.String(),
		Price:  price,
	}
	switch d.Action {
	case model.ActionBuy:
		if p.Units == 0 && price > 0 {
			intent.Units = l.svc.cfg.Trading.PositionSize * p.Cash / price
		}
	case model.ActionSell:
		intent.Units = p.Units
	}

	if err := l.svc.executor.Execute(ctx, intent); err != nil {
		log.Error().Err(err).Str("action", intent.Name).Msg("Intent execution failed")
	}
	l.svc.trySend(ctx, notifier.FormatDecision(d, intent))
}

func (l *liveSession) recordIndicators(bars []model.Bar) {
	snap, err := features.Snapshot(l.svc.cfg.Exchange.Symbol, bars)
	if err != nil {
		l.log.Warn().Err(err).Msg("Could not compute indicator snapshot")
		return
	}
	if err := l.svc.recorder.RecordIndicators(snap); err != nil {
		l.log.Error().Err(err).Msg("Failed to record indicators")
	}
}
