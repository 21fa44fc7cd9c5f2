package feature

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// Equivalence maps a class to the class whose features stand in for it when
// the reference image lacks it.
type Equivalence map[spatial.ClassID]spatial.ClassID

// DefaultEquivalence maps blouse (5) and sweater (22) to T-shirt (1).
func DefaultEquivalence() Equivalence {
	return Equivalence{5: 1, 22: 1}
}

// Resolve returns id when present reports it, otherwise its equivalent when
// present reports that. It fails with ErrNoEquivalent otherwise.
func (e Equivalence) Resolve(id spatial.ClassID, present func(spatial.ClassID) bool) (spatial.ClassID, error) {
	if present(id) {
		return id, nil
	}
	if eq, ok := e[id]; ok && present(eq) {
		return eq, nil
	}
	return 0, errors.Wrapf(ErrNoEquivalent, "class %d", id)
}

// SwapResult is the outcome of Swap.
type SwapResult struct {
	// Features is the new condition feature map.
	Features *tensor.Dense
	// Source is the reference class whose features were copied.
	Source spatial.ClassID
	// Pixels is the number of condition pixels overwritten.
	Pixels int
}

// Swap returns a copy of cond in which the pixels of class id in the first
// sample of condLabel carry the features of the matching class in the first
// sample of refLabel, read from ref. The i-th condition pixel takes the i-th
// reference pixel; when the reference region is smaller, reference pixels
// are reused cyclically. Neither input feature map is modified.
func Swap(id spatial.ClassID, cond, ref, condLabel, refLabel *tensor.Dense, table Equivalence) (SwapResult, error) {
	if err := checkSpatial(cond, condLabel); err != nil {
		return SwapResult{}, err
	}
	if err := checkSpatial(ref, refLabel); err != nil {
		return SwapResult{}, err
	}
	_, cc, ch, cw := spatial.Dims(cond)
	_, rc, _, _ := spatial.Dims(ref)
	if cc != rc {
		return SwapResult{}, errors.Errorf("feature: condition has %d feature channels, reference has %d", cc, rc)
	}

	condRegions, err := spatial.SampleClassRegions(condLabel, 0)
	if err != nil {
		return SwapResult{}, err
	}
	if !condRegions.Has(id) {
		return SwapResult{}, errors.Wrapf(ErrClassAbsent, "class %d", id)
	}
	refRegions, err := spatial.SampleClassRegions(refLabel, 0)
	if err != nil {
		return SwapResult{}, err
	}
	source, err := table.Resolve(id, refRegions.Has)
	if err != nil {
		return SwapResult{}, err
	}

	out := spatial.Clone(cond)
	dst := spatial.Data(out)
	condPos := condRegions.Positions(id)
	refPos := refRegions.Positions(source)
	for i, cp := range condPos {
		v := vectorAt(ref, refPos[i%len(refPos)])
		p := int(cp)
		y, x := p/cw, p%cw
		for k, val := range v {
			dst[spatial.Offset(0, k, y, x, cc, ch, cw)] = val
		}
	}
	return SwapResult{Features: out, Source: source, Pixels: len(condPos)}, nil
}
