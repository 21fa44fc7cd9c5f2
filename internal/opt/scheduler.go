package opt

// LinearDecay lowers the learning rate by a fixed amount per step: the
// initial rate divided by the number of decay steps, reaching zero after
// that many steps.
type LinearDecay struct {
	initial float64
	steps   int
	current float64
}

// NewLinearDecay starts a decay from lr over steps steps.
func NewLinearDecay(lr float64, steps int) *LinearDecay {
	return &LinearDecay{initial: lr, steps: steps, current: lr}
}

// Decrement returns the per-step reduction.
func (s *LinearDecay) Decrement() float64 {
	return s.initial / float64(s.steps)
}

// Step lowers the tracked rate by one decrement and returns it.
func (s *LinearDecay) Step() float64 {
	s.current -= s.Decrement()
	return s.current
}

// LR returns the tracked rate.
func (s *LinearDecay) LR() float64 { return s.current }

// Set overrides the tracked rate, as when resuming at a given epoch. The
// decrement keeps its original value.
func (s *LinearDecay) Set(lr float64) { s.current = lr }

// Apply sets lr on every group of the given optimizers.
func Apply(lr float64, optimizers ...*Adam) {
	for _, o := range optimizers {
		if o != nil {
			o.SetLearningRate(lr)
		}
	}
}
