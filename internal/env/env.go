package env

import (
	"fmt"

	"DeepTrader/internal/features"
	"DeepTrader/internal/model"
)

// PortfolioScalars is the number of portfolio-state values appended to each
// feature vector: normalized cash, exposure, normalized portfolio value,
// and percent move from the entry price.
const PortfolioScalars = 4

// Config holds the simulation parameters for one environment.
type Config struct {
	InitialCapital float64
	PositionSize   float64 // fraction of cash committed per BUY
	StopLoss       float64 // forced exit at this unrealized loss, 0 disables
	TakeProfit     float64 // forced exit at this unrealized gain, 0 disables
	RuinFloor      float64 // terminal when value falls below this fraction of initial capital
	MaxSteps       int     // 0 = run to the end of the series
	RewardScale    float64 // 0 = 1.0
	RewardClip     float64 // 0 disables
}

// Outcome reports one environment step. ActionTaken is what actually
// happened, which differs from the requested action when the request was a
// no-op or when the risk override forced a liquidation.
type Outcome struct {
	Obs         []float64
	Reward      float64
	Done        bool
	ActionTaken model.Action
	Forced      bool
	Trade       *model.TradeEvent // nil when no trade executed
}

// Env simulates trading a single instrument over a feature series. It is a
// two-state machine, active or terminated; stepping a terminated episode is
// a programming error and panics. Not safe for concurrent use.
type Env struct {
	frames []features.Frame
	cfg    Config

	cursor    int
	cash      float64
	units     float64
	entry     float64
	prevValue float64
	peak      float64
	realized  float64
	steps     int
	done      bool

	trades []model.TradeEvent
	values []float64
}

// New validates the configuration and series and returns a reset
// environment. The series must hold at least two frames so one step is
// possible.
func New(frames []features.Frame, cfg Config) (*Env, error) {
	if len(frames) < 2 {
		return nil, fmt.Errorf("feature series too short: need at least 2 frames, got %d", len(frames))
	}
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %v", cfg.InitialCapital)
	}
	if cfg.PositionSize <= 0 || cfg.PositionSize > 1 {
		return nil, fmt.Errorf("position size must be in (0, 1], got %v", cfg.PositionSize)
	}
	if cfg.RewardScale == 0 {
		cfg.RewardScale = 1
	}
	e := &Env{frames: frames, cfg: cfg}
	e.Reset()
	return e, nil
}

// Reset returns the environment to the start of the series with fresh
// capital and no position, and returns the initial observation.
func (e *Env) Reset() []float64 {
	e.cursor = 0
	e.cash = e.cfg.InitialCapital
	e.units = 0
	e.entry = 0
	e.prevValue = e.cfg.InitialCapital
	e.peak = e.cfg.InitialCapital
	e.realized = 0
	e.steps = 0
	e.done = false
	e.trades = nil
	e.values = make([]float64, 1, len(e.frames))
	e.values[0] = e.cfg.InitialCapital
	return e.observation()
}

// Step applies one action. The risk override runs first: if the open
// position has crossed the stop-loss or take-profit threshold at this bar,
// it is liquidated and the requested action is discarded. Reward is the
// portfolio value change across the bar transition, marking any open
// position at the new close.
func (e *Env) Step(action model.Action) Outcome {
	if e.done {
		panic("env: Step on terminated episode")
	}
	if !action.Valid() {
		panic(fmt.Sprintf("env: invalid action %d", int(action)))
	}

	price := e.frames[e.cursor].Close
	taken := action
	forced := false
	var trade *model.TradeEvent

	if e.units > 0 && e.riskTriggered(price) {
		trade = e.liquidate(price)
		taken = model.ActionSell
		forced = true
		trade.Forced = true
	} else {
		switch action {
		case model.ActionBuy:
			if e.units == 0 && e.cash > 0 {
				trade = e.open(price)
			} else {
				taken = model.ActionHold
			}
		case model.ActionSell:
			if e.units > 0 {
				trade = e.liquidate(price)
			} else {
				taken = model.ActionHold
			}
		case model.ActionHold:
		}
	}

	e.cursor++
	e.steps++

	value := e.cash + e.units*e.frames[e.cursor].Close
	reward := (value - e.prevValue) * e.cfg.RewardScale
	if c := e.cfg.RewardClip; c > 0 {
		if reward > c {
			reward = c
		} else if reward < -c {
			reward = -c
		}
	}
	e.prevValue = value
	if value > e.peak {
		e.peak = value
	}
	e.values = append(e.values, value)

	switch {
	case e.cursor >= len(e.frames)-1:
		e.done = true
	case value < e.cfg.RuinFloor*e.cfg.InitialCapital:
		e.done = true
	case e.cfg.MaxSteps > 0 && e.steps >= e.cfg.MaxSteps:
		e.done = true
	}

	return Outcome{
		Obs:         e.observation(),
		Reward:      reward,
		Done:        e.done,
		ActionTaken: taken,
		Forced:      forced,
		Trade:       trade,
	}
}

func (e *Env) riskTriggered(price float64) bool {
	if e.entry <= 0 {
		return false
	}
	change := (price - e.entry) / e.entry
	if e.cfg.StopLoss > 0 && change <= -e.cfg.StopLoss {
		return true
	}
	if e.cfg.TakeProfit > 0 && change >= e.cfg.TakeProfit {
		return true
	}
	return false
}

func (e *Env) open(price float64) *model.TradeEvent {
	spend := e.cash * e.cfg.PositionSize
	e.units = spend / price
	e.cash -= spend
	e.entry = price
	return e.record(model.ActionBuy, price, e.units, 0)
}

func (e *Env) liquidate(price float64) *model.TradeEvent {
	units := e.units
	profit := units * (price - e.entry)
	e.cash += units * price
	e.units = 0
	e.entry = 0
	e.realized += profit
	return e.record(model.ActionSell, price, units, profit)
}

func (e *Env) record(action model.Action, price, units, profit float64) *model.TradeEvent {
	ev := model.TradeEvent{
		Step:        e.steps + 1,
		Time:        e.frames[e.cursor].Time,
		Action:      action,
		ActionName:  action.String(),
		Price:       price,
		Units:       units,
		CashAfter:   e.cash,
		ValueAfter:  e.cash + e.units*price,
		RealizedPnL: profit,
	}
	e.trades = append(e.trades, ev)
	return &e.trades[len(e.trades)-1]
}

// observation is the current feature vector extended with portfolio state.
func (e *Env) observation() []float64 {
	frame := e.frames[e.cursor]
	price := frame.Close
	value := e.cash + e.units*price

	obs := make([]float64, 0, len(frame.Vec)+PortfolioScalars)
	obs = append(obs, frame.Vec...)

	exposure := 0.0
	if value > 0 {
		exposure = e.units * price / value
	}
	fromEntry := 0.0
	if e.units > 0 && e.entry > 0 {
		fromEntry = (price - e.entry) / e.entry
	}
	return append(obs,
		e.cash/e.cfg.InitialCapital,
		exposure,
		value/e.cfg.InitialCapital,
		fromEntry,
	)
}

// Observation returns the state vector at the current cursor, for
// decisions made outside the step loop.
func (e *Env) Observation() []float64 {
	return e.observation()
}

// StateSize is the observation width for this environment.
func (e *Env) StateSize() int {
	return len(e.frames[0].Vec) + PortfolioScalars
}

// Done reports whether the episode has terminated.
func (e *Env) Done() bool {
	return e.done
}

// PortfolioValue marks the portfolio at the current bar's close.
func (e *Env) PortfolioValue() float64 {
	return e.cash + e.units*e.frames[e.cursor].Close
}

// Portfolio snapshots the current position for status reporting.
func (e *Env) Portfolio() model.PortfolioState {
	return model.PortfolioState{
		Cash:        e.cash,
		Units:       e.units,
		EntryPrice:  e.entry,
		Value:       e.PortfolioValue(),
		PeakValue:   e.peak,
		RealizedPnL: e.realized,
		Step:        e.steps,
	}
}

// Values returns the portfolio value after every step, starting with the
// initial capital. The slice is owned by the environment.
func (e *Env) Values() []float64 {
	return e.values
}

// Trades returns the executed trade log for the current episode.
func (e *Env) Trades() []model.TradeEvent {
	return e.trades
}

// CurrentTime is the timestamp of the bar the cursor points at.
func (e *Env) CurrentTime() string {
	return e.frames[e.cursor].Time.Format("2006-01-02 15:04")
}

// CurrentPrice is the close of the bar the cursor points at.
func (e *Env) CurrentPrice() float64 {
	return e.frames[e.cursor].Close
}
