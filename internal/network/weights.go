package network

import "fmt"

// Weights is a serializable copy of a network's parameters. Optimizer
// state is deliberately excluded; restoring starts Adam fresh.
type Weights struct {
	Sizes []int       `msgpack:"sizes" json:"sizes"`
	W     [][]float64 `msgpack:"w" json:"w"`
	B     [][]float64 `msgpack:"b" json:"b"`
}

// Snapshot deep-copies the current parameters.
func (n *MLP) Snapshot() *Weights {
	w := &Weights{Sizes: append([]int(nil), n.sizes...)}
	for l := range n.w {
		w.W = append(w.W, append([]float64(nil), n.w[l].RawMatrix().Data...))
		w.B = append(w.B, append([]float64(nil), n.b[l]...))
	}
	return w
}

// Restore overwrites the parameters from a snapshot of the same
// architecture and resets the optimizer state.
func (n *MLP) Restore(w *Weights) error {
	if w == nil {
		return fmt.Errorf("nil weights")
	}
	if len(w.Sizes) != len(n.sizes) {
		return fmt.Errorf("layer count mismatch: snapshot %d, network %d", len(w.Sizes), len(n.sizes))
	}
	for i, s := range w.Sizes {
		if s != n.sizes[i] {
			return fmt.Errorf("layer %d size mismatch: snapshot %d, network %d", i, s, n.sizes[i])
		}
	}
	if len(w.W) != len(n.w) || len(w.B) != len(n.b) {
		return fmt.Errorf("malformed snapshot: %d weight and %d bias layers", len(w.W), len(w.B))
	}
	for l := range n.w {
		if len(w.W[l]) != len(n.w[l].RawMatrix().Data) || len(w.B[l]) != len(n.b[l]) {
			return fmt.Errorf("layer %d parameter count mismatch", l)
		}
	}

	for l := range n.w {
		copy(n.w[l].RawMatrix().Data, w.W[l])
		copy(n.b[l], w.B[l])
		zero(n.mw[l])
		zero(n.vw[l])
		zero(n.mb[l])
		zero(n.vb[l])
	}
	n.t = 0
	return nil
}

func zero(xs []float64) {
	for i := range xs {
		xs[i] = 0
	}
}
