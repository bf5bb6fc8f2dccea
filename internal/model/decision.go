package model

// Decision is the agent's output for a single state: the chosen action
// and the Q-values behind it. Explored marks actions drawn from the
// epsilon branch rather than the greedy argmax.
type Decision struct {
	Action   Action    `json:"-"`
	Name     string    `json:"action"`
	QValues  []float64 `json:"q_values"`
	Epsilon  float64   `json:"epsilon"`
	Explored bool      `json:"explored"`
}
