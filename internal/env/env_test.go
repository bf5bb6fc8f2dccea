package env

import (
	"testing"
	"time"

	"DeepTrader/internal/features"
	"DeepTrader/internal/model"
)

func mkFrames(closes ...float64) []features.Frame {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	frames := make([]features.Frame, len(closes))
	for i, c := range closes {
		frames[i] = features.Frame{
			Time:  t0.Add(time.Duration(i) * time.Hour),
			Close: c,
			Vec:   []float64{0.5, 0.25},
		}
	}
	return frames
}

func mkEnv(t *testing.T, cfg Config, closes ...float64) *Env {
	t.Helper()
	e, err := New(mkFrames(closes...), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestNew_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		frames []features.Frame
		cfg    Config
	}{
		{"one frame", mkFrames(100), Config{InitialCapital: 1000, PositionSize: 0.5}},
		{"zero capital", mkFrames(100, 101), Config{PositionSize: 0.5}},
		{"position size zero", mkFrames(100, 101), Config{InitialCapital: 1000}},
		{"position size above one", mkFrames(100, 101), Config{InitialCapital: 1000, PositionSize: 1.5}},
	}
	for _, tt := range tests {
		if _, err := New(tt.frames, tt.cfg); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestStep_BuySellArithmetic(t *testing.T) {
	e := mkEnv(t, Config{InitialCapital: 1000, PositionSize: 0.5}, 100, 110, 120)

	out := e.Step(model.ActionBuy)
	if out.ActionTaken != model.ActionBuy || out.Forced {
		t.Fatalf("expected voluntary BUY, got %v forced=%v", out.ActionTaken, out.Forced)
	}
	p := e.Portfolio()
	if p.Units != 5 {
		t.Errorf("units: want 5, got %v", p.Units)
	}
	if p.Cash != 500 {
		t.Errorf("cash: want 500, got %v", p.Cash)
	}
	// Position marked at the next close: 500 + 5*110 - 1000.
	if out.Reward != 50 {
		t.Errorf("reward after buy: want 50, got %v", out.Reward)
	}
	if out.Trade == nil || out.Trade.Price != 100 {
		t.Fatalf("expected trade at 100, got %+v", out.Trade)
	}

	out = e.Step(model.ActionSell)
	p = e.Portfolio()
	if p.Cash != 1050 {
		t.Errorf("cash after sell: want 1050, got %v", p.Cash)
	}
	if p.Units != 0 {
		t.Errorf("units after sell: want 0, got %v", p.Units)
	}
	if p.RealizedPnL != 50 {
		t.Errorf("realized: want 50, got %v", p.RealizedPnL)
	}
	if out.Trade == nil || out.Trade.RealizedPnL != 50 {
		t.Fatalf("expected realized 50 on trade, got %+v", out.Trade)
	}
	// All value change happened on the previous step.
	if out.Reward != 0 {
		t.Errorf("reward after sell: want 0, got %v", out.Reward)
	}
	if !out.Done {
		t.Error("series exhausted, expected done")
	}
}

func TestStep_StopLossOverridesHold(t *testing.T) {
	e := mkEnv(t, Config{InitialCapital: 1000, PositionSize: 0.5, StopLoss: 0.02}, 100, 97, 96, 95)

	e.Step(model.ActionBuy)
	out := e.Step(model.ActionHold) // bar at 97: -3% from entry
	if out.ActionTaken != model.ActionSell {
		t.Fatalf("expected forced SELL, got %v", out.ActionTaken)
	}
	if !out.Forced {
		t.Error("expected Forced outcome")
	}
	if out.Trade == nil || !out.Trade.Forced || out.Trade.Price != 97 {
		t.Fatalf("expected forced trade at 97, got %+v", out.Trade)
	}
	if p := e.Portfolio(); p.Units != 0 {
		t.Errorf("expected flat position after forced exit, got %v units", p.Units)
	}
}

func TestStep_TakeProfitOverridesBuy(t *testing.T) {
	e := mkEnv(t, Config{InitialCapital: 1000, PositionSize: 0.5, TakeProfit: 0.04}, 100, 105, 106, 107)

	e.Step(model.ActionBuy)
	out := e.Step(model.ActionBuy) // bar at 105: +5% from entry
	if out.ActionTaken != model.ActionSell || !out.Forced {
		t.Fatalf("expected forced SELL, got %v forced=%v", out.ActionTaken, out.Forced)
	}
	if p := e.Portfolio(); p.RealizedPnL <= 0 {
		t.Errorf("expected positive realized profit, got %v", p.RealizedPnL)
	}
}

func TestStep_NoOpsReportHold(t *testing.T) {
	e := mkEnv(t, Config{InitialCapital: 1000, PositionSize: 0.5}, 100, 100, 100, 100, 100)

	// SELL while flat.
	out := e.Step(model.ActionSell)
	if out.ActionTaken != model.ActionHold || out.Trade != nil {
		t.Errorf("flat SELL: expected HOLD no-op, got %v trade=%v", out.ActionTaken, out.Trade)
	}

	// BUY while holding.
	e.Step(model.ActionBuy)
	unitsBefore := e.Portfolio().Units
	out = e.Step(model.ActionBuy)
	if out.ActionTaken != model.ActionHold || out.Trade != nil {
		t.Errorf("second BUY: expected HOLD no-op, got %v trade=%v", out.ActionTaken, out.Trade)
	}
	if got := e.Portfolio().Units; got != unitsBefore {
		t.Errorf("units changed on no-op: %v -> %v", unitsBefore, got)
	}
}

func TestStep_FlatHoldYieldsZeroReward(t *testing.T) {
	e := mkEnv(t, Config{InitialCapital: 1000, PositionSize: 0.5}, 100, 120, 80, 140)
	for i := 0; i < 3; i++ {
		out := e.Step(model.ActionHold)
		if out.Reward != 0 {
			t.Fatalf("step %d: flat HOLD reward must be 0, got %v", i, out.Reward)
		}
	}
}

func TestStep_RewardClip(t *testing.T) {
	e := mkEnv(t, Config{InitialCapital: 1000, PositionSize: 1, RewardClip: 10}, 100, 200, 300)
	out := e.Step(model.ActionBuy) // value doubles, raw delta 1000
	if out.Reward != 10 {
		t.Errorf("expected clipped reward 10, got %v", out.Reward)
	}
}

func TestStep_RuinFloorTerminates(t *testing.T) {
	e := mkEnv(t, Config{InitialCapital: 1000, PositionSize: 1, RuinFloor: 0.5}, 100, 40, 30, 20)
	out := e.Step(model.ActionBuy)
	if !out.Done {
		t.Fatal("value 400 is below the ruin floor, expected done")
	}
}

func TestStep_MaxStepsTerminates(t *testing.T) {
	e := mkEnv(t, Config{InitialCapital: 1000, PositionSize: 0.5, MaxSteps: 2}, 100, 100, 100, 100, 100, 100)
	if out := e.Step(model.ActionHold); out.Done {
		t.Fatal("done after one step")
	}
	if out := e.Step(model.ActionHold); !out.Done {
		t.Fatal("expected done at max steps")
	}
}

func TestStep_PanicsOnInvalidAction(t *testing.T) {
	e := mkEnv(t, Config{InitialCapital: 1000, PositionSize: 0.5}, 100, 101, 102)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on invalid action")
		}
	}()
	e.Step(model.Action(7))
}

func TestStep_PanicsAfterTermination(t *testing.T) {
	e := mkEnv(t, Config{InitialCapital: 1000, PositionSize: 0.5}, 100, 101)
	e.Step(model.ActionHold)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on step after termination")
		}
	}()
	e.Step(model.ActionHold)
}

func TestObservation_PortfolioScalars(t *testing.T) {
	e := mkEnv(t, Config{InitialCapital: 1000, PositionSize: 0.5}, 100, 110, 120)
	obs := e.Reset()
	if len(obs) != 2+PortfolioScalars {
		t.Fatalf("observation width: want %d, got %d", 2+PortfolioScalars, len(obs))
	}
	if e.StateSize() != len(obs) {
		t.Errorf("StateSize %d != observation width %d", e.StateSize(), len(obs))
	}
	// Fresh portfolio: full cash, no exposure, value = initial, no entry.
	for i, want := range []float64{1, 0, 1, 0} {
		if got := obs[2+i]; got != want {
			t.Errorf("scalar %d: want %v, got %v", i, want, got)
		}
	}

	out := e.Step(model.ActionBuy)
	// After the buy at 100 marked at 110: cash 500, units 5, value 1050.
	scal := out.Obs[2:]
	if scal[0] != 0.5 {
		t.Errorf("normalized cash: want 0.5, got %v", scal[0])
	}
	wantExposure := 5.0 * 110 / 1050
	if diff := scal[1] - wantExposure; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("exposure: want %v, got %v", wantExposure, scal[1])
	}
	if scal[2] != 1.05 {
		t.Errorf("normalized value: want 1.05, got %v", scal[2])
	}
	if scal[3] != 0.1 {
		t.Errorf("move from entry: want 0.1, got %v", scal[3])
	}
}

func TestReset_ClearsState(t *testing.T) {
	e := mkEnv(t, Config{InitialCapital: 1000, PositionSize: 0.5}, 100, 110, 120, 130)
	e.Step(model.ActionBuy)
	e.Step(model.ActionSell)

	e.Reset()
	p := e.Portfolio()
	if p.Cash != 1000 || p.Units != 0 || p.RealizedPnL != 0 || p.Step != 0 {
		t.Errorf("reset portfolio dirty: %+v", p)
	}
	if len(e.Trades()) != 0 {
		t.Errorf("trade log not cleared: %d entries", len(e.Trades()))
	}
	if len(e.Values()) != 1 || e.Values()[0] != 1000 {
		t.Errorf("value history not reset: %v", e.Values())
	}
}
