// Package opt provides the optimizers and learning-rate schedule of the
// model.
package opt

import "math"

// Parameterized is anything exposing trainable parameters and the gradients
// of its last backward pass. Networks, layers and pointwise stacks satisfy it.
type Parameterized interface {
	Params() []float64
	SetParams([]float64)
	Gradients() []float64
}

// Group is a set of parameters sharing one learning rate.
type Group struct {
	Params       []Parameterized
	LearningRate float64
}

type moments struct {
	m, v []float64
}

// Adam optimizer with per-parameter first and second moment state.
// The state of a parameter set is kept for the lifetime of the optimizer, so
// replacing the managed set means building a new Adam.
type Adam struct {
	Beta1   float64 // Exponential decay rate for first moment
	Beta2   float64 // Exponential decay rate for second moment
	Epsilon float64 // Small constant for numerical stability

	groups []*Group
	state  [][]moments
	t      int
}

// NewAdam creates an Adam optimizer managing params in a single group.
func NewAdam(lr, beta1, beta2 float64, params ...Parameterized) *Adam {
	a := &Adam{Beta1: beta1, Beta2: beta2, Epsilon: 1e-8}
	a.AddGroup(lr, params...)
	return a
}

// AddGroup adds a parameter group with its own learning rate.
func (a *Adam) AddGroup(lr float64, params ...Parameterized) {
	a.groups = append(a.groups, &Group{Params: params, LearningRate: lr})
	a.state = append(a.state, make([]moments, len(params)))
}

// ParamGroups returns the managed groups. Changing a group's LearningRate
// affects the next Step.
func (a *Adam) ParamGroups() []*Group {
	return a.groups
}

// SetLearningRate sets the learning rate of every group.
func (a *Adam) SetLearningRate(lr float64) {
	for _, g := range a.groups {
		g.LearningRate = lr
	}
}

// LearningRate returns the learning rate of the first group.
func (a *Adam) LearningRate() float64 {
	if len(a.groups) == 0 {
		return 0
	}
	return a.groups[0].LearningRate
}

// Steps returns the number of Step calls so far.
func (a *Adam) Steps() int { return a.t }

// Step applies one bias-corrected Adam update to every managed parameter
// set using its current gradients.
func (a *Adam) Step() {
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for gi, g := range a.groups {
		for pi, p := range g.Params {
			params := p.Params()
			grads := p.Gradients()
			st := &a.state[gi][pi]
			if st.m == nil {
				st.m = make([]float64, len(params))
				st.v = make([]float64, len(params))
			}
			for i, gr := range grads {
				st.m[i] = a.Beta1*st.m[i] + (1-a.Beta1)*gr
				st.v[i] = a.Beta2*st.v[i] + (1-a.Beta2)*gr*gr
				mHat := st.m[i] / c1
				vHat := st.v[i] / c2
				params[i] -= g.LearningRate * mHat / (math.Sqrt(vHat) + a.Epsilon)
			}
			p.SetParams(params)
		}
	}
}
