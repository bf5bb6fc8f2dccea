package model

import (
	"testing"
	"time"
)

func testBars(n int) []Bar {
	bars := make([]Bar, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		p := 100.0 + float64(i)
		bars[i] = Bar{
			Time:   base.Add(time.Duration(i) * time.Hour),
			Open:   p,
			High:   p + 1,
			Low:    p - 1,
			Close:  p,
			Volume: 1000,
		}
	}
	return bars
}

func TestValidateBars(t *testing.T) {
	if err := ValidateBars(testBars(5)); err != nil {
		t.Fatalf("valid series rejected: %v", err)
	}
	if err := ValidateBars(nil); err == nil {
		t.Error("expected error for empty series")
	}

	dup := testBars(5)
	dup[3].Time = dup[2].Time
	if err := ValidateBars(dup); err == nil {
		t.Error("expected error for non-increasing timestamps")
	}

	neg := testBars(5)
	neg[1].Close = 0
	if err := ValidateBars(neg); err == nil {
		t.Error("expected error for non-positive price")
	}

	vol := testBars(5)
	vol[4].Volume = -1
	if err := ValidateBars(vol); err == nil {
		t.Error("expected error for negative volume")
	}
}

func TestActionRoundTrip(t *testing.T) {
	for _, a := range []Action{ActionHold, ActionBuy, ActionSell} {
		parsed, err := ParseAction(a.String())
		if err != nil {
			t.Fatalf("parse %s: %v", a, err)
		}
		if parsed != a {
			t.Errorf("round trip %s: got %s", a, parsed)
		}
		if !a.Valid() {
			t.Errorf("%s should be valid", a)
		}
	}
	if Action(7).Valid() {
		t.Error("Action(7) should be invalid")
	}
	if _, err := ParseAction("SHORT"); err == nil {
		t.Error("expected error for unknown action string")
	}
}
