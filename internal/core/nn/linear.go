package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Linear is multinomial logistic regression. Layout: W (in×out, row-major)
// followed by the bias (out).
type Linear struct {
	in, out int
	params  []float64
	w       *mat.Dense
	b       []float64
}

func NewLinear(in, out int, r *rand.Rand) *Linear {
	l := linearOver(in, out, make([]float64, in*out+out))
	glorot(l.params[:in*out], in, out, r)
	return l
}

func linearOver(in, out int, params []float64) *Linear {
	return &Linear{
		in:     in,
		out:    out,
		params: params,
		w:      mat.NewDense(in, out, params[:in*out]),
		b:      params[in*out:],
	}
}

func (l *Linear) NumParams() int {
	return len(l.params)
}

func (l *Linear) Params() []float64 {
	return l.params
}

func (l *Linear) SetParams(params []float64) error {
	return setParams(l.params, params)
}

func (l *Linear) Clone() Model {
	params := make([]float64, len(l.params))
	copy(params, l.params)
	return linearOver(l.in, l.out, params)
}

func (l *Linear) Logits(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	z := mat.NewDense(rows, l.out, nil)
	z.Mul(x, l.w)
	addBias(z, l.b)
	return z
}

func (l *Linear) LossAndGrad(x *mat.Dense, labels []int, grad []float64) float64 {
	z := l.Logits(x)
	loss := softmaxCrossEntropy(z, labels)

	gw := mat.NewDense(l.in, l.out, grad[:l.in*l.out])
	gw.Mul(x.T(), z)
	sumRows(z, grad[l.in*l.out:])
	return loss
}
