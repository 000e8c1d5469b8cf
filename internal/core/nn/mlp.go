package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// MLP is a one-hidden-layer ReLU network. Layout: W1 (in×hidden), b1 (hidden),
// W2 (hidden×out), b2 (out).
type MLP struct {
	in, hidden, out int
	params          []float64

	w1 *mat.Dense
	b1 []float64
	w2 *mat.Dense
	b2 []float64
}

func NewMLP(in, hidden, out int, r *rand.Rand) *MLP {
	m := mlpOver(in, hidden, out, make([]float64, in*hidden+hidden+hidden*out+out))
	glorot(m.w1.RawMatrix().Data, in, hidden, r)
	glorot(m.w2.RawMatrix().Data, hidden, out, r)
	return m
}

func mlpOver(in, hidden, out int, params []float64) *MLP {
	o1 := in * hidden
	o2 := o1 + hidden
	o3 := o2 + hidden*out
	return &MLP{
		in:     in,
		hidden: hidden,
		out:    out,
		params: params,
		w1:     mat.NewDense(in, hidden, params[:o1]),
		b1:     params[o1:o2],
		w2:     mat.NewDense(hidden, out, params[o2:o3]),
		b2:     params[o3:],
	}
}

func (m *MLP) NumParams() int {
	return len(m.params)
}

func (m *MLP) Params() []float64 {
	return m.params
}

func (m *MLP) SetParams(params []float64) error {
	return setParams(m.params, params)
}

func (m *MLP) Clone() Model {
	params := make([]float64, len(m.params))
	copy(params, m.params)
	return mlpOver(m.in, m.hidden, m.out, params)
}

func (m *MLP) forward(x *mat.Dense) (*mat.Dense, *mat.Dense) {
	rows, _ := x.Dims()

	h := mat.NewDense(rows, m.hidden, nil)
	h.Mul(x, m.w1)
	addBias(h, m.b1)
	raw := h.RawMatrix().Data
	for i, v := range raw {
		if v < 0 {
			raw[i] = 0
		}
	}

	z := mat.NewDense(rows, m.out, nil)
	z.Mul(h, m.w2)
	addBias(z, m.b2)
	return h, z
}

func (m *MLP) Logits(x *mat.Dense) *mat.Dense {
	_, z := m.forward(x)
	return z
}

func (m *MLP) LossAndGrad(x *mat.Dense, labels []int, grad []float64) float64 {
	rows, _ := x.Dims()
	h, z := m.forward(x)
	loss := softmaxCrossEntropy(z, labels)

	o1 := m.in * m.hidden
	o2 := o1 + m.hidden
	o3 := o2 + m.hidden*m.out

	gw2 := mat.NewDense(m.hidden, m.out, grad[o2:o3])
	gw2.Mul(h.T(), z)
	sumRows(z, grad[o3:])

	dh := mat.NewDense(rows, m.hidden, nil)
	dh.Mul(z, m.w2.T())
	hidden, dhRaw := h.RawMatrix().Data, dh.RawMatrix().Data
	for i, v := range hidden {
		if v == 0 {
			dhRaw[i] = 0
		}
	}

	gw1 := mat.NewDense(m.in, m.hidden, grad[:o1])
	gw1.Mul(x.T(), dh)
	sumRows(dh, grad[o1:o2])
	return loss
}
