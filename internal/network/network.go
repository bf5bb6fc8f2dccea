package network

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrNumericInstability means a training step produced a non-finite loss.
// The run must stop before the divergence reaches a checkpoint.
var ErrNumericInstability = errors.New("non-finite loss, training diverged")

// Hidden layer widths of the Q-network. The output stays linear so
// Q-values can take any sign.
var hiddenLayers = []int{64, 64, 32}

// Adam hyperparameters, fixed.
const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-7
)

// MLP is a feed-forward Q-value approximator with ReLU hidden layers and a
// linear output, trained with Adam on mean-squared error. Not safe for
// concurrent use.
type MLP struct {
	sizes []int        // input, hidden..., output
	w     []*mat.Dense // w[l] is sizes[l] × sizes[l+1]
	b     [][]float64
	lr    float64

	// Adam state, aligned with the flattened parameters.
	mw, vw [][]float64
	mb, vb [][]float64
	t      int
}

// New builds a network with He-initialized weights drawn from the seeded
// stream, so equal seeds give equal parameters.
func New(inputSize, outputSize int, lr float64, seed int64) (*MLP, error) {
	if inputSize <= 0 {
		return nil, fmt.Errorf("input size must be positive, got %d", inputSize)
	}
	if outputSize <= 0 {
		return nil, fmt.Errorf("output size must be positive, got %d", outputSize)
	}
	if lr <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", lr)
	}

	sizes := make([]int, 0, len(hiddenLayers)+2)
	sizes = append(sizes, inputSize)
	sizes = append(sizes, hiddenLayers...)
	sizes = append(sizes, outputSize)

	rng := rand.New(rand.NewSource(seed))
	n := &MLP{sizes: sizes, lr: lr}
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		data := make([]float64, in*out)
		std := math.Sqrt(2.0 / float64(in))
		for i := range data {
			data[i] = rng.NormFloat64() * std
		}
		n.w = append(n.w, mat.NewDense(in, out, data))
		n.b = append(n.b, make([]float64, out))
		n.mw = append(n.mw, make([]float64, in*out))
		n.vw = append(n.vw, make([]float64, in*out))
		n.mb = append(n.mb, make([]float64, out))
		n.vb = append(n.vb, make([]float64, out))
	}
	return n, nil
}

// InputSize is the expected state vector width.
func (n *MLP) InputSize() int {
	return n.sizes[0]
}

// OutputSize is the number of Q-values produced per state.
func (n *MLP) OutputSize() int {
	return n.sizes[len(n.sizes)-1]
}

// forward returns every layer's activations; acts[0] is the input and the
// last entry the linear output.
func (n *MLP) forward(x *mat.Dense) []*mat.Dense {
	acts := make([]*mat.Dense, len(n.w)+1)
	acts[0] = x
	for l := range n.w {
		rows, _ := acts[l].Dims()
		z := mat.NewDense(rows, n.sizes[l+1], nil)
		z.Mul(acts[l], n.w[l])
		hidden := l < len(n.w)-1
		bias := n.b[l]
		z.Apply(func(_, j int, v float64) float64 {
			v += bias[j]
			if hidden && v < 0 {
				return 0
			}
			return v
		}, z)
		acts[l+1] = z
	}
	return acts
}

// Predict returns the Q-values for a single state.
func (n *MLP) Predict(state []float64) []float64 {
	if len(state) != n.sizes[0] {
		panic(fmt.Sprintf("network: state width %d, expected %d", len(state), n.sizes[0]))
	}
	x := mat.NewDense(1, n.sizes[0], append([]float64(nil), state...))
	acts := n.forward(x)
	out := acts[len(acts)-1]
	return append([]float64(nil), out.RawRowView(0)...)
}

// PredictBatch returns the Q-values for each state in the batch.
func (n *MLP) PredictBatch(states [][]float64) [][]float64 {
	x := n.packRows(states, n.sizes[0], "state")
	acts := n.forward(x)
	out := acts[len(acts)-1]
	rows, _ := out.Dims()
	preds := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		preds[i] = append([]float64(nil), out.RawRowView(i)...)
	}
	return preds
}

// TrainBatch performs one gradient step minimizing the mean-squared error
// between predictions and full target vectors, and returns the loss before
// the step. Entries of a target row equal to the current prediction carry
// zero gradient, so callers set only the taken action's slot. A non-finite
// loss returns ErrNumericInstability and leaves the parameters untouched.
func (n *MLP) TrainBatch(states, targets [][]float64) (float64, error) {
	if len(states) == 0 {
		return 0, fmt.Errorf("empty training batch")
	}
	if len(states) != len(targets) {
		return 0, fmt.Errorf("batch size mismatch: %d states, %d targets", len(states), len(targets))
	}
	x := n.packRows(states, n.sizes[0], "state")
	tgt := n.packRows(targets, n.OutputSize(), "target")

	acts := n.forward(x)
	out := acts[len(acts)-1]

	rows, cols := out.Dims()
	norm := float64(rows * cols)

	// delta starts as dLoss/dOutput for MSE.
	delta := mat.NewDense(rows, cols, nil)
	delta.Sub(out, tgt)
	loss := 0.0
	for i := 0; i < rows; i++ {
		for _, d := range delta.RawRowView(i) {
			loss += d * d
		}
	}
	loss /= norm
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, fmt.Errorf("%w: loss %v", ErrNumericInstability, loss)
	}
	delta.Scale(2/norm, delta)

	n.t++
	for l := len(n.w) - 1; l >= 0; l-- {
		gw := mat.NewDense(n.sizes[l], n.sizes[l+1], nil)
		gw.Mul(acts[l].T(), delta)
		gb := make([]float64, n.sizes[l+1])
		for i := 0; i < rows; i++ {
			for j, v := range delta.RawRowView(i) {
				gb[j] += v
			}
		}

		// Propagate through the previous ReLU before touching w[l].
		if l > 0 {
			prev := mat.NewDense(rows, n.sizes[l], nil)
			prev.Mul(delta, n.w[l].T())
			mask := acts[l]
			prev.Apply(func(i, j int, v float64) float64 {
				if mask.At(i, j) <= 0 {
					return 0
				}
				return v
			}, prev)
			delta = prev
		}

		n.adamStep(n.w[l].RawMatrix().Data, gw.RawMatrix().Data, n.mw[l], n.vw[l])
		n.adamStep(n.b[l], gb, n.mb[l], n.vb[l])
	}
	return loss, nil
}

func (n *MLP) adamStep(param, grad, m, v []float64) {
	c1 := 1 - math.Pow(adamBeta1, float64(n.t))
	c2 := 1 - math.Pow(adamBeta2, float64(n.t))
	for i, g := range grad {
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*g
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*g*g
		param[i] -= n.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + adamEps)
	}
}

// CopyFrom overwrites this network's parameters with src's (hard target
// sync). Architectures must match.
func (n *MLP) CopyFrom(src *MLP) {
	for l := range n.w {
		copy(n.w[l].RawMatrix().Data, src.w[l].RawMatrix().Data)
		copy(n.b[l], src.b[l])
	}
}

// BlendFrom moves this network's parameters toward src's by factor tau
// (soft target sync): theta = tau*src + (1-tau)*theta.
func (n *MLP) BlendFrom(src *MLP, tau float64) {
	for l := range n.w {
		dst := n.w[l].RawMatrix().Data
		from := src.w[l].RawMatrix().Data
		for i := range dst {
			dst[i] = tau*from[i] + (1-tau)*dst[i]
		}
		for i := range n.b[l] {
			n.b[l][i] = tau*src.b[l][i] + (1-tau)*n.b[l][i]
		}
	}
}

func (n *MLP) packRows(rows [][]float64, width int, kind string) *mat.Dense {
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			panic(fmt.Sprintf("network: %s %d has width %d, expected %d", kind, i, len(row), width))
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), width, data)
}
