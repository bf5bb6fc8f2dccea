package agent

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"DeepTrader/internal/checkpoint"
	"DeepTrader/internal/env"
	"DeepTrader/internal/model"
	"DeepTrader/internal/network"
	"DeepTrader/internal/replay"
)

// Target synchronization modes.
const (
	SyncHard = "hard"
	SyncSoft = "soft"
)

// Config holds the learning hyperparameters.
type Config struct {
	ModelID         string
	RunID           string
	LearningRate    float64
	Gamma           float64
	Epsilon         float64
	EpsilonMin      float64
	EpsilonDecay    float64
	BatchSize       int
	MemorySize      int
	TargetSyncEvery int    // learning steps between hard syncs
	SyncMode        string // SyncHard or SyncSoft
	Tau             float64
	Seed            int64 // 0 derives from the clock
}

func (c Config) validate() error {
	if c.Gamma <= 0 || c.Gamma > 1 {
		return fmt.Errorf("gamma must be in (0, 1], got %v", c.Gamma)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("epsilon must be in [0, 1], got %v", c.Epsilon)
	}
	if c.EpsilonMin < 0 || c.EpsilonMin > c.Epsilon {
		return fmt.Errorf("epsilon min must be in [0, epsilon], got %v", c.EpsilonMin)
	}
	if c.EpsilonDecay <= 0 || c.EpsilonDecay > 1 {
		return fmt.Errorf("epsilon decay must be in (0, 1], got %v", c.EpsilonDecay)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.MemorySize < c.BatchSize {
		return fmt.Errorf("memory size %d is below batch size %d", c.MemorySize, c.BatchSize)
	}
	if c.TargetSyncEvery <= 0 {
		return fmt.Errorf("target sync interval must be positive, got %d", c.TargetSyncEvery)
	}
	switch c.SyncMode {
	case SyncHard:
	case SyncSoft:
		if c.Tau <= 0 || c.Tau > 1 {
			return fmt.Errorf("tau must be in (0, 1] for soft sync, got %v", c.Tau)
		}
	default:
		return fmt.Errorf("sync mode must be %q or %q, got %q", SyncHard, SyncSoft, c.SyncMode)
	}
	return nil
}

// EpisodeCallback receives each finished episode's telemetry and trade log.
type EpisodeCallback func(stats model.EpisodeStats, trades []model.TradeEvent)

// Agent is a Double-DQN learner: the online network picks the bootstrap
// action, the target network prices it. Single-threaded; the training loop
// owns the agent exclusively.
type Agent struct {
	cfg    Config
	online *network.MLP
	target *network.MLP
	memory *replay.Buffer
	rng    *rand.Rand
	store  checkpoint.Store
	log    zerolog.Logger

	epsilon    float64
	learnSteps int

	bestValue   float64
	bestWeights *network.Weights
	bestMeta    checkpoint.Meta
}

// New builds the agent with both network roles initialized identically.
// A nil store disables checkpointing.
func New(stateSize int, cfg Config, store checkpoint.Store, log zerolog.Logger) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("agent config: %w", err)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	online, err := network.New(stateSize, model.NumActions, cfg.LearningRate, seed)
	if err != nil {
		return nil, err
	}
	target, err := network.New(stateSize, model.NumActions, cfg.LearningRate, seed)
	if err != nil {
		return nil, err
	}
	target.CopyFrom(online)

	memory, err := replay.NewBuffer(cfg.MemorySize, seed+1)
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = checkpoint.NoopStore{}
	}

	return &Agent{
		cfg:     cfg,
		online:  online,
		target:  target,
		memory:  memory,
		rng:     rand.New(rand.NewSource(seed + 2)),
		store:   store,
		log:     log.With().Str("component", "agent").Logger(),
		epsilon: cfg.Epsilon,
	}, nil
}

// SelectAction is the epsilon-greedy policy: random with probability
// epsilon, otherwise the online argmax. Ties break to the lowest action
// index so runs are reproducible.
func (a *Agent) SelectAction(state []float64) model.Action {
	if a.rng.Float64() <= a.epsilon {
		return model.Action(a.rng.Intn(model.NumActions))
	}
	return argmaxAction(a.online.Predict(state))
}

// Decide is the pure exploitation policy with its evidence, used for live
// decisions and evaluation.
func (a *Agent) Decide(state []float64) model.Decision {
	q := a.online.Predict(state)
	act := argmaxAction(q)
	return model.Decision{
		Action:  act,
		Name:    act.String(),
		QValues: q,
		Epsilon: a.epsilon,
	}
}

func argmaxAction(q []float64) model.Action {
	best := 0
	for i := 1; i < len(q); i++ {
		if q[i] > q[best] {
			best = i
		}
	}
	return model.Action(best)
}

// Remember stores one transition. The action is the one the policy chose,
// not the one the environment executed: risk overrides and no-ops are part
// of the dynamics the policy must learn the value of.
func (a *Agent) Remember(state []float64, action model.Action, reward float64, nextState []float64, done bool) {
	a.memory.Push(replay.Transition{
		State:     state,
		Action:    action,
		Reward:    reward,
		NextState: nextState,
		Done:      done,
	})
}

// Learn performs one gradient step on a sampled minibatch. It reports
// trained=false without error while the buffer is still warming up.
// Epsilon decays and the target syncs only on steps that actually train.
func (a *Agent) Learn() (loss float64, trained bool, err error) {
	if a.memory.Len() < a.cfg.BatchSize {
		return 0, false, nil
	}
	batch, err := a.memory.Sample(a.cfg.BatchSize)
	if err != nil {
		return 0, false, err
	}

	states, targets := a.buildTargets(batch)
	loss, err = a.online.TrainBatch(states, targets)
	if err != nil {
		return 0, false, err
	}
	a.learnSteps++

	if a.epsilon > a.cfg.EpsilonMin {
		a.epsilon *= a.cfg.EpsilonDecay
		if a.epsilon < a.cfg.EpsilonMin {
			a.epsilon = a.cfg.EpsilonMin
		}
	}

	if a.cfg.SyncMode == SyncSoft {
		a.target.BlendFrom(a.online, a.cfg.Tau)
	} else if a.learnSteps%a.cfg.TargetSyncEvery == 0 {
		a.target.CopyFrom(a.online)
		a.log.Debug().Int("learn_steps", a.learnSteps).Msg("Target network synchronized")
	}
	return loss, true, nil
}

// buildTargets computes the Double-DQN regression targets. Targets start
// as the online predictions so only the taken action's slot carries a
// gradient. For terminal transitions the target is the reward alone; for
// the rest the online network selects the bootstrap action and the target
// network prices it.
func (a *Agent) buildTargets(batch []replay.Transition) (states, targets [][]float64) {
	states = make([][]float64, len(batch))
	nextStates := make([][]float64, len(batch))
	for i, tr := range batch {
		states[i] = tr.State
		nextStates[i] = tr.NextState
	}

	targets = a.online.PredictBatch(states)
	onlineNext := a.online.PredictBatch(nextStates)
	targetNext := a.target.PredictBatch(nextStates)

	for i, tr := range batch {
		y := tr.Reward
		if !tr.Done {
			best := argmaxAction(onlineNext[i])
			y += a.cfg.Gamma * targetNext[i][best]
		}
		targets[i][tr.Action] = y
	}
	return states, targets
}

// Train runs the episode loop: act, step, remember, learn. After each
// episode the callback receives the telemetry record, and the parameters
// are kept as best whenever the final portfolio value beats every earlier
// episode. A numeric divergence aborts the run without touching the best
// checkpoint.
func (a *Agent) Train(ctx context.Context, e *env.Env, episodes int, onEpisode EpisodeCallback) ([]model.EpisodeStats, error) {
	if episodes <= 0 {
		return nil, fmt.Errorf("episode count must be positive, got %d", episodes)
	}

	results := make([]model.EpisodeStats, 0, episodes)
	for ep := 1; ep <= episodes; ep++ {
		state := e.Reset()
		var totalReward, lossSum float64
		var lossN, forced int

		for !e.Done() {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			default:
			}

			action := a.SelectAction(state)
			out := e.Step(action)
			a.Remember(state, action, out.Reward, out.Obs, out.Done)

			loss, trained, err := a.Learn()
			if err != nil {
				return results, fmt.Errorf("episode %d: %w", ep, err)
			}
			if trained {
				lossSum += loss
				lossN++
			}
			if out.Forced {
				forced++
			}
			totalReward += out.Reward
			state = out.Obs
		}

		p := e.Portfolio()
		stats := model.EpisodeStats{
			RunID:       a.cfg.RunID,
			Episode:     ep,
			Steps:       p.Step,
			TotalReward: totalReward,
			FinalValue:  p.Value,
			PeakValue:   p.PeakValue,
			Epsilon:     a.epsilon,
			Trades:      len(e.Trades()),
			ForcedExits: forced,
			FinishedAt:  time.Now(),
		}
		if lossN > 0 {
			stats.AvgLoss = lossSum / float64(lossN)
		}

		a.keepIfBest(stats)
		a.log.Info().
			Int("episode", ep).
			Float64("reward", stats.TotalReward).
			Float64("value", stats.FinalValue).
			Float64("epsilon", stats.Epsilon).
			Int("trades", stats.Trades).
			Int("forced_exits", stats.ForcedExits).
			Msg("Episode finished")

		results = append(results, stats)
		if onEpisode != nil {
			trades := e.Trades()
			for i := range trades {
				trades[i].RunID = a.cfg.RunID
				trades[i].Episode = ep
			}
			onEpisode(stats, trades)
		}
	}
	return results, nil
}

// RunGreedy plays one episode with pure exploitation and no learning,
// for evaluation over held-out data.
func (a *Agent) RunGreedy(ctx context.Context, e *env.Env) (model.EpisodeStats, []model.TradeEvent, error) {
	state := e.Reset()
	var totalReward float64
	var forced int

	for !e.Done() {
		select {
		case <-ctx.Done():
			return model.EpisodeStats{}, nil, ctx.Err()
		default:
		}
		out := e.Step(a.Decide(state).Action)
		if out.Forced {
			forced++
		}
		totalReward += out.Reward
		state = out.Obs
	}

	p := e.Portfolio()
	stats := model.EpisodeStats{
		RunID:       a.cfg.RunID,
		Episode:     1,
		Steps:       p.Step,
		TotalReward: totalReward,
		FinalValue:  p.Value,
		PeakValue:   p.PeakValue,
		Trades:      len(e.Trades()),
		ForcedExits: forced,
		FinishedAt:  time.Now(),
	}
	return stats, e.Trades(), nil
}

// keepIfBest retains the parameters when this episode's final value beats
// the best seen so far. Retention is monotonic: a later, worse run never
// replaces it.
func (a *Agent) keepIfBest(stats model.EpisodeStats) {
	if a.bestWeights != nil && stats.FinalValue <= a.bestValue {
		return
	}
	a.bestValue = stats.FinalValue
	a.bestWeights = a.online.Snapshot()
	a.bestMeta = checkpoint.Meta{
		ModelID:        a.cfg.ModelID,
		RunID:          a.cfg.RunID,
		Episode:        stats.Episode,
		PortfolioValue: stats.FinalValue,
		StateSize:      a.online.InputSize(),
	}
	if err := a.store.SaveBest(a.bestWeights, a.bestMeta); err != nil {
		a.log.Error().Err(err).Msg("Failed to persist best checkpoint")
		return
	}
	a.log.Info().
		Int("episode", stats.Episode).
		Float64("value", stats.FinalValue).
		Msg("New best model saved")
}

// FlushBest rewrites the in-memory best checkpoint, if any. Called on
// shutdown so an interrupted run never loses its best parameters.
// Idempotent.
func (a *Agent) FlushBest() error {
	if a.bestWeights == nil {
		return nil
	}
	return a.store.SaveBest(a.bestWeights, a.bestMeta)
}

// RestoreBest loads the persisted best checkpoint into both networks.
// Returns false without error when no checkpoint exists.
func (a *Agent) RestoreBest() (bool, error) {
	w, meta, err := a.store.LoadBest()
	if err != nil {
		return false, err
	}
	if w == nil {
		return false, nil
	}
	if err := a.online.Restore(w); err != nil {
		return false, fmt.Errorf("restore checkpoint: %w", err)
	}
	a.target.CopyFrom(a.online)
	a.bestWeights = w
	if meta != nil {
		a.bestValue = meta.PortfolioValue
		a.bestMeta = *meta
	}
	return true, nil
}

// Epsilon is the current exploration rate.
func (a *Agent) Epsilon() float64 {
	return a.epsilon
}

// BestValue is the highest episode-final portfolio value seen so far.
func (a *Agent) BestValue() float64 {
	return a.bestValue
}

// LearnSteps is the number of gradient updates performed.
func (a *Agent) LearnSteps() int {
	return a.learnSteps
}

// StateSize is the observation width both networks expect.
func (a *Agent) StateSize() int {
	return a.online.InputSize()
}
