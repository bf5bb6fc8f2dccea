// Package trainer orchestrates data collection, the learning loop, and
// reporting across the train, live, and eval modes. It owns run identity
// and pushes everything observable out through the recorder, the status
// file, and Telegram.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"DeepTrader/internal/agent"
	"DeepTrader/internal/checkpoint"
	"DeepTrader/internal/collector"
	"DeepTrader/internal/config"
	"DeepTrader/internal/env"
	"DeepTrader/internal/features"
	"DeepTrader/internal/metrics"
	"DeepTrader/internal/model"
	"DeepTrader/internal/notifier"
	"DeepTrader/internal/recorder"
	"DeepTrader/internal/status"
)

// ErrNoCheckpoint means eval mode was started before any training run
// produced a best checkpoint.
var ErrNoCheckpoint = errors.New("trainer: no best checkpoint to evaluate")

// Deps carries the service collaborators. Recorder and Reader are usually
// the same SQLite instance; a nil Recorder degrades to a no-op, a nil
// Status writer disables the status file.
type Deps struct {
	Collector *collector.Collector
	Executor  collector.Executor
	Recorder  recorder.Recorder
	Reader    recorder.Reader
	Store     checkpoint.Store
	Status    *status.Writer
	Notifier  *notifier.TelegramNotifier
	Log       zerolog.Logger
}

// Service runs the decision engine in one of three modes.
type Service struct {
	cfg *config.Config
	log zerolog.Logger

	collector *collector.Collector
	executor  collector.Executor
	recorder  recorder.Recorder
	reader    recorder.Reader
	store     checkpoint.Store
	status    *status.Writer
	notifier  *notifier.TelegramNotifier
}

// New validates the dependency set and builds a Service.
func New(cfg *config.Config, deps Deps) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("trainer: config is required")
	}
	if deps.Collector == nil {
		return nil, errors.New("trainer: collector is required")
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Executor == nil {
		deps.Executor = collector.NewPaperExecutor(deps.Log)
	}
	return &Service{
		cfg:       cfg,
		log:       deps.Log.With().Str("component", "trainer").Logger(),
		collector: deps.Collector,
		executor:  deps.Executor,
		recorder:  deps.Recorder,
		reader:    deps.Reader,
		store:     deps.Store,
		status:    deps.Status,
		notifier:  deps.Notifier,
	}, nil
}

// Train runs the configured number of episodes over the training slice and
// persists the best network seen.
func (s *Service) Train(ctx context.Context) error {
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Logger()

	bars, err := s.collector.LoadOrFetch(ctx, s.cfg.Data.HistoryDays)
	if err != nil {
		return fmt.Errorf("load market data: %w", err)
	}
	trainBars, _, err := s.splitBars(bars)
	if err != nil {
		return err
	}

	pipe := features.NewPipeline()
	frames, err := pipe.Fit(trainBars)
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

	info := model.RunInfo{
		RunID:     runID,
		Mode:      "train",
		Symbol:    s.cfg.Exchange.Symbol,
		Interval:  s.cfg.Exchange.Interval,
		StateSize: e.StateSize(),
		Episodes:  s.cfg.Training.Episodes,
		State:     model.RunRunning,
		StartedAt: time.Now(),
	}
	if err := s.recorder.StartRun(info); err != nil {
		log.Error().Err(err).Msg("Failed to record run start")
	}
	s.trySend(ctx, notifier.FormatRunStart(info, s.cfg.Trading.InitialCapital))

	log.Info().
		Int("episodes", info.Episodes).
		Int("state_size", info.StateSize).
		Int("bars", len(trainBars)).
		Int("frames", len(frames)).
		Msg("Training started")

	stats, err := ag.Train(ctx, e, info.Episodes, s.episodeSink(ctx, info, info.Episodes, ag, 0))
	if err != nil {
		s.finishRun(info, model.RunFailed, e.PortfolioValue(), ag.BestValue(), lastOf(stats))
		s.trySend(ctx, notifier.FormatError("train", err))
		return fmt.Errorf("training run %s: %w", runID, err)
	}
	if err := ag.FlushBest(); err != nil {
		log.Error().Err(err).Msg("Failed to flush best checkpoint")
	}

	final := stats[len(stats)-1]
	info.FinalValue = final.FinalValue
	info.BestValue = ag.BestValue()
	s.finishRun(info, model.RunFinished, final.FinalValue, ag.BestValue(), final)

	perf, perfErr := metrics.Evaluate(e.Values(), s.cfg.Trading.InitialCapital,
		metrics.PeriodsPerYear(s.cfg.Exchange.Interval))
	if perfErr != nil {
		log.Warn().Err(perfErr).Msg("Could not compute final performance")
	} else {
		s.trySend(ctx, notifier.FormatRunSummary(info, perf))
		log.Info().
			Float64("final_value", final.FinalValue).
			Float64("best_value", ag.BestValue()).
			Float64("total_return", perf.TotalReturn).
			Float64("max_drawdown", perf.MaxDrawdown).
			Msg("Training finished")
	}
	return nil
}

// Eval replays the best checkpoint greedily over the held-out slice, with
// the scaler fitted on the training slice only.
func (s *Service) Eval(ctx context.Context) error {
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Logger()

	bars, err := s.collector.LoadOrFetch(ctx, s.cfg.Data.HistoryDays)
	if err != nil {
		return fmt.Errorf("load market data: %w", err)
	}
	trainBars, evalBars, err := s.splitBars(bars)
	if err != nil {
		return err
	}
	if len(evalBars) < features.MinBars {
		return fmt.Errorf("held-out slice too short: %d bars, need %d", len(evalBars), features.MinBars)
	}

	pipe := features.NewPipeline()
	if _, err := pipe.Fit(trainBars); err != nil {
		return fmt.Errorf("fit feature pipeline: %w", err)
	}
	frames, err := pipe.Transform(evalBars)
	if err != nil {
		return fmt.Errorf("transform held-out bars: %w", err)
	}

	e, err := env.New(frames, s.envConfig())
	if err != nil {
		return fmt.Errorf("build environment: %w", err)
	}
	ag, err := agent.New(e.StateSize(), s.agentConfig(runID), s.store, s.log)
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}
	restored, err := ag.RestoreBest()
	if err != nil {
		return fmt.Errorf("restore best checkpoint: %w", err)
	}
	if !restored {
		return ErrNoCheckpoint
	}

	info := model.RunInfo{
		RunID:     runID,
		Mode:      "eval",
		Symbol:    s.cfg.Exchange.Symbol,
		Interval:  s.cfg.Exchange.Interval,
		StateSize: e.StateSize(),
		Episodes:  1,
		State:     model.RunRunning,
		StartedAt: time.Now(),
	}
	if err := s.recorder.StartRun(info); err != nil {
		log.Error().Err(err).Msg("Failed to record run start")
	}
	log.Info().Int("bars", len(evalBars)).Int("frames", len(frames)).Msg("Evaluation started")

	st, trades, err := ag.RunGreedy(ctx, e)
	if err != nil {
		s.finishRun(info, model.RunFailed, e.PortfolioValue(), ag.BestValue(), st)
		return fmt.Errorf("evaluation run %s: %w", runID, err)
	}
	for i := range trades {
		trades[i].RunID = runID
		trades[i].Episode = st.Episode
	}
	if err := s.recorder.RecordEpisode(st); err != nil {
		log.Error().Err(err).Msg("Failed to record evaluation episode")
	}
	if err := s.recorder.RecordTrades(trades); err != nil {
		log.Error().Err(err).Msg("Failed to record evaluation trades")
	}

	info.FinalValue = st.FinalValue
	info.BestValue = ag.BestValue()
	s.finishRun(info, model.RunFinished, st.FinalValue, ag.BestValue(), st)

	perf, perfErr := metrics.Evaluate(e.Values(), s.cfg.Trading.InitialCapital,
		metrics.PeriodsPerYear(s.cfg.Exchange.Interval))
	if perfErr != nil {
		return fmt.Errorf("evaluate performance: %w", perfErr)
	}
	s.trySend(ctx, notifier.FormatEvalReport(st, perf))
	log.Info().
		Int("steps", st.Steps).
		Float64("final_value", st.FinalValue).
		Float64("total_return", perf.TotalReturn).
		Int("trades", st.Trades).
		Msg("Evaluation finished")
	return nil
}

// HandleCommand answers a Telegram command. Unknown commands get the help
// text.
func (s *Service) HandleCommand(command string) string {
	switch command {
	case "/status", "查看状态":
		snap, err := status.Read(s.cfg.Training.StatusFile)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to read status for command")
			return "状态读取失败，请查看日志。"
		}
		return notifier.FormatStatus(snap)
	case "/performance", "查看绩效":
		return s.performanceReply()
	default:
		return notifier.FormatHelp()
	}
}

func (s *Service) performanceReply() string {
	if s.reader == nil {
		return "历史数据库未配置。"
	}
	run, err := s.reader.LatestRun()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query latest run for command")
		return "历史查询失败，请查看日志。"
	}
	if run == nil {
		return "暂无运行记录。"
	}
	values, err := s.reader.EpisodeValues(run.RunID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query episode values for command")
		return "历史查询失败，请查看日志。"
	}
	series := append([]float64{s.cfg.Trading.InitialCapital}, values...)
	perf, err := metrics.Evaluate(series, s.cfg.Trading.InitialCapital, 1)
	if err != nil {
		return "暂无足够数据。"
	}
	return notifier.FormatPerformance(perf)
}

// splitBars cuts the series at the configured ratio. The eval slice starts
// one indicator warmup before the cut so its first usable frame lands
// exactly on the split bar, without sharing any frame with training.
func (s *Service) splitBars(bars []model.Bar) (train, eval []model.Bar, err error) {
	splitIdx := int(float64(len(bars)) * s.cfg.Data.TrainSplit)
	if splitIdx < features.MinBars {
		return nil, nil, fmt.Errorf("training slice too short: %d bars, need at least %d", splitIdx, features.MinBars)
	}
	return bars[:splitIdx], bars[splitIdx-features.Warmup:], nil
}

func (s *Service) envConfig() env.Config {
	return env.Config{
		InitialCapital: s.cfg.Trading.InitialCapital,
		PositionSize:   s.cfg.Trading.PositionSize,
		StopLoss:       s.cfg.Trading.StopLoss,
		TakeProfit:     s.cfg.Trading.TakeProfit,
		RuinFloor:      s.cfg.Trading.RuinFloor,
		MaxSteps:       s.cfg.Trading.MaxSteps,
		RewardScale:    s.cfg.Trading.RewardScale,
		RewardClip:     s.cfg.Trading.RewardClip,
	}
}

func (s *Service) agentConfig(runID string) agent.Config {
	return agent.Config{
		ModelID:         fmt.Sprintf("%s-%s", s.cfg.Exchange.Symbol, s.cfg.Exchange.Interval),
		RunID:           runID,
		LearningRate:    s.cfg.Model.LearningRate,
		Gamma:           s.cfg.Model.Gamma,
		Epsilon:         s.cfg.Model.Epsilon,
		EpsilonMin:      s.cfg.Model.EpsilonMin,
		EpsilonDecay:    s.cfg.Model.EpsilonDecay,
		BatchSize:       s.cfg.Model.BatchSize,
		MemorySize:      s.cfg.Model.MemorySize,
		TargetSyncEvery: s.cfg.Model.TargetSyncEvery,
		SyncMode:        s.cfg.Model.TargetSyncMode,
		Tau:             s.cfg.Model.Tau,
		Seed:            s.cfg.Model.Seed,
	}
}

// episodeSink builds the per-episode callback: record history, refresh the
// status file, and send progress every NotifyEvery episodes. base shifts
// episode numbers so live cycles count continuously across one run.
func (s *Service) episodeSink(ctx context.Context, info model.RunInfo, totalEpisodes int, ag *agent.Agent, base int) agent.EpisodeCallback {
	return func(st model.EpisodeStats, trades []model.TradeEvent) {
		if base > 0 {
			st.Episode += base
			for i := range trades {
				trades[i].Episode = st.Episode
			}
		}
		if err := s.recorder.RecordEpisode(st); err != nil {
			s.log.Error().Err(err).Int("episode", st.Episode).Msg("Failed to record episode")
		}
		if err := s.recorder.RecordTrades(trades); err != nil {
			s.log.Error().Err(err).Int("episode", st.Episode).Msg("Failed to record trades")
		}
		s.writeStatus(info, st, model.RunRunning, ag.BestValue(), totalEpisodes)
		if s.cfg.Training.NotifyEvery > 0 && st.Episode%s.cfg.Training.NotifyEvery == 0 {
			s.trySend(ctx, notifier.FormatProgress(st, totalEpisodes))
		}
	}
}

// finishRun closes out the run record and status file together so both
// views of the run agree on its terminal state.
func (s *Service) finishRun(info model.RunInfo, state string, finalValue, bestValue float64, last model.EpisodeStats) {
	if err := s.recorder.FinishRun(info.RunID, state, finalValue, bestValue); err != nil {
		s.log.Error().Err(err).Str("run_id", info.RunID).Msg("Failed to record run finish")
	}
	s.writeStatus(info, last, state, bestValue, info.Episodes)
}

func (s *Service) writeStatus(info model.RunInfo, st model.EpisodeStats, state string, best float64, totalEpisodes int) {
	if s.status == nil {
		return
	}
	snap := model.StatusSnapshot{
		RunID:          info.RunID,
		Mode:           info.Mode,
		State:          state,
		Symbol:         info.Symbol,
		Episode:        st.Episode,
		TotalEpisodes:  totalEpisodes,
		TotalReward:    st.TotalReward,
		PortfolioValue: st.FinalValue,
		BestValue:      best,
		Epsilon:        st.Epsilon,
		Loss:           st.AvgLoss,
	}
	if err := s.status.Write(snap); err != nil {
		s.log.Error().Err(err).Msg("Failed to write status file")
	}
}

func (s *Service) trySend(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendWithRetry(ctx, text, 3); err != nil {
		s.log.Error().Err(err).Msg("Failed to send notification")
	}
}

func lastOf(stats []model.EpisodeStats) model.EpisodeStats {
	if len(stats) == 0 {
		return model.EpisodeStats{}
	}
	return stats[len(stats)-1]
}
