// Package loss provides the criteria and the loss aggregator of the model.
package loss

import "math"

// Loss is a pointwise criterion with derivative.
type Loss interface {
	// Forward computes the mean loss between predicted and true values.
	Forward(yPred, yTrue []float64) float64

	// Backward computes the gradient of the loss w.r.t. prediction.
	Backward(yPred, yTrue []float64) []float64
}

func mustMatch(name string, a, b []float64) {
	if len(a) != len(b) {
		panic(name + ": prediction and target must have same length")
	}
}

// MSE (Mean Squared Error) loss. Used as the least-squares GAN criterion.
type MSE struct{}

// Forward computes (1/n) * sum((y_pred - y_true)^2)
func (MSE) Forward(yPred, yTrue []float64) float64 {
	mustMatch("MSE", yPred, yTrue)

	var sum float64
	for i, p := range yPred {
		diff := p - yTrue[i]
		sum += diff * diff
	}
	return sum / float64(len(yPred))
}

// Backward computes dL/dy_pred = (2/n) * (y_pred - y_true)
func (m MSE) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	m.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

// BackwardInPlace computes the gradient into grad.
func (MSE) BackwardInPlace(yPred, yTrue, grad []float64) {
	mustMatch("MSE", yPred, yTrue)
	mustMatch("MSE", yPred, grad)

	factor := 2.0 / float64(len(yPred))
	for i, p := range yPred {
		grad[i] = factor * (p - yTrue[i])
	}
}

// L1Loss (Mean Absolute Error) loss. Used for feature matching and
// reconstruction.
type L1Loss struct{}

// Forward computes (1/n) * sum(|y_pred - y_true|)
func (L1Loss) Forward(yPred, yTrue []float64) float64 {
	mustMatch("L1Loss", yPred, yTrue)

	var sum float64
	for i, p := range yPred {
		sum += math.Abs(p - yTrue[i])
	}
	return sum / float64(len(yPred))
}

// Backward computes dL/dy_pred = (1/n) * sign(y_pred - y_true)
func (l L1Loss) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	l.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

// BackwardInPlace computes the gradient into grad.
func (L1Loss) BackwardInPlace(yPred, yTrue, grad []float64) {
	mustMatch("L1Loss", yPred, yTrue)
	mustMatch("L1Loss", yPred, grad)

	factor := 1.0 / float64(len(yPred))
	for i, p := range yPred {
		switch diff := p - yTrue[i]; {
		case diff > 0:
			grad[i] = factor
		case diff < 0:
			grad[i] = -factor
		default:
			grad[i] = 0
		}
	}
}

// BCELoss (Binary Cross Entropy) loss. Predictions must lie in (0, 1); the
// vanilla GAN criterion uses it on sigmoid discriminator outputs.
type BCELoss struct{}

const bceEps = 1e-10

func clip(p float64) float64 {
	return math.Min(math.Max(p, bceEps), 1-bceEps)
}

// Forward computes -(1/n) * sum(y*log(p) + (1-y)*log(1-p))
func (BCELoss) Forward(yPred, yTrue []float64) float64 {
	mustMatch("BCELoss", yPred, yTrue)

	var sum float64
	for i, p := range yPred {
		p = clip(p)
		sum += yTrue[i]*math.Log(p) + (1-yTrue[i])*math.Log(1-p)
	}
	return -sum / float64(len(yPred))
}

// Backward computes (p - y) / (p * (1-p)) / n
func (b BCELoss) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	b.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

// BackwardInPlace computes the gradient into grad.
func (BCELoss) BackwardInPlace(yPred, yTrue, grad []float64) {
	mustMatch("BCELoss", yPred, yTrue)
	mustMatch("BCELoss", yPred, grad)

	n := float64(len(yPred))
	for i, p := range yPred {
		p = clip(p)
		grad[i] = (p - yTrue[i]) / (p * (1 - p) * n)
	}
}
