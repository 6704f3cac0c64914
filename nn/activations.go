package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// activate applies the activation function to a pre-activation value
func activate(v float64, activation ActivationType) float64 {
	switch activation {
	case ActivationReLU:
		if v < 0 {
			return 0
		}
		return v
	case ActivationSigmoid:
		return sigmoid(v)
	case ActivationTanh:
		return math.Tanh(v)
	case ActivationSoftplus:
		// log1p(exp(v)) overflows for large v, where softplus(v) ~= v
		if v > 30 {
			return v
		}
		return math.Log1p(math.Exp(v))
	case ActivationLeakyReLU:
		if v < 0 {
			return v * 0.2
		}
		return v
	case ActivationELU:
		if v < 0 {
			return math.Expm1(v)
		}
		return v
	default:
		return v
	}
}

// activateDerivative computes the derivative of the activation function
// Note: This computes the derivative with respect to the PRE-activation value
func activateDerivative(preActivation float64, activation ActivationType) float64 {
	switch activation {
	case ActivationReLU:
		if preActivation > 0 {
			return 1
		}
		return 0
	case ActivationSigmoid:
		sig := sigmoid(preActivation)
		return sig * (1 - sig)
	case ActivationTanh:
		t := math.Tanh(preActivation)
		return 1 - t*t
	case ActivationSoftplus:
		// d/dv log(1 + e^v) = sigmoid(v)
		return sigmoid(preActivation)
	case ActivationLeakyReLU:
		if preActivation >= 0 {
			return 1
		}
		return 0.2
	case ActivationELU:
		if preActivation < 0 {
			return math.Exp(preActivation)
		}
		return 1
	default:
		return 1
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// activateMatrix returns act(m) element-wise as a new matrix.
func activateMatrix(m *mat.Dense, activation ActivationType) *mat.Dense {
	return mapMatrix(m, func(v float64) float64 { return activate(v, activation) })
}

// activateDerivativeMatrix returns act'(m) element-wise, m holding pre-activations.
func activateDerivativeMatrix(m *mat.Dense, activation ActivationType) *mat.Dense {
	return mapMatrix(m, func(v float64) float64 { return activateDerivative(v, activation) })
}

func sigmoidMatrix(m *mat.Dense) *mat.Dense {
	return mapMatrix(m, sigmoid)
}

// sigmoidGrad returns s * (1 - s) for an already activated sigmoid output s.
func sigmoidGrad(s *mat.Dense) *mat.Dense {
	return mapMatrix(s, func(v float64) float64 { return v * (1 - v) })
}
