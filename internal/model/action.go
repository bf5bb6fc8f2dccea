package model

import "fmt"

// Action is a trading decision. The integer values are the network's
// output indices and must not be reordered.
type Action int

const (
	ActionHold Action = iota
	ActionBuy
	ActionSell

	// NumActions is the value network's output width.
	NumActions = 3
)

// Valid reports whether a is one of the three defined actions.
func (a Action) Valid() bool {
	return a >= ActionHold && a <= ActionSell
}

func (a Action) String() string {
	switch a {
	case ActionHold:
		return "HOLD"
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ParseAction converts a stored action string back to an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "HOLD":
		return ActionHold, nil
	case "BUY":
		return ActionBuy, nil
	case "SELL":
		return ActionSell, nil
	default:
		return ActionHold, fmt.Errorf("unknown action %q", s)
	}
}
