package sdca

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	blockMaxIter  = 200
	blockTol      = 1e-13
	lambertMaxIt  = 100
	lambertRelTol = 1e-15
)

// solveBlock maximizes the per-sample dual subproblem
//
//	H(q) + zᵀq − (ρ/2)‖q − q₀‖²   over the probability simplex,
//
// where a = z + ρ·q₀ − 1. Stationarity gives log qₖ + ρ·qₖ = aₖ − τ for a
// single multiplier τ, found by safeguarded Newton on Σqₖ(τ) = 1.
// The objective is strictly concave, so the returned point is never worse
// than q₀ up to rounding.
func solveBlock(a []float64, rho float64) []float64 {
	k := len(a)
	m := floats.Max(a)
	// At lo the top coordinate alone reaches 1; at hi every qₖ ≤ 1/K.
	lo, hi := m-rho, m+math.Log(float64(k))
	logRho := math.Log(rho)

	q := make([]float64, k)
	tau := 0.5 * (lo + hi)
	for range blockMaxIter {
		var sum, slope float64
		for c := range k {
			q[c] = lambert(logRho+a[c]-tau) / rho
			sum += q[c]
			slope -= q[c] / (1 + rho*q[c])
		}
		f := sum - 1
		if math.Abs(f) <= blockTol {
			break
		}
		if f > 0 {
			lo = tau
		} else {
			hi = tau
		}
		next := 0.5 * (lo + hi)
		if slope != 0 {
			if t := tau - f/slope; t > lo && t < hi {
				next = t
			}
		}
		if next == tau {
			break
		}
		tau = next
	}
	floats.Scale(1/floats.Sum(q), q)
	return q
}

// lambert returns u > 0 solving u + log u = s, i.e. the principal branch of
// Lambert W at e^s. It iterates on v = log u to stay finite for very
// negative s.
func lambert(s float64) float64 {
	v := s
	if s > 1 {
		v = math.Log(s - math.Log(s))
	}
	for range lambertMaxIt {
		ev := math.Exp(v)
		next := v - (v+ev-s)/(1+ev)
		if math.Abs(next-v) <= lambertRelTol*max(1, math.Abs(v)) {
			v = next
			break
		}
		v = next
	}
	return math.Exp(v)
}

// blockObjective evaluates H(q) + zᵀq − (ρ/2)‖q − q₀‖².
func blockObjective(q, z, q0 []float64, rho float64) float64 {
	var dist float64
	for c := range q {
		d := q[c] - q0[c]
		dist += d * d
	}
	return entropy(q) + floats.Dot(z, q) - 0.5*rho*dist
}

// entropy returns −Σ qₖ log qₖ with 0·log 0 = 0.
func entropy(q []float64) float64 {
	var h float64
	for _, v := range q {
		if v > 0 {
			h -= v * math.Log(v)
		}
	}
	return h
}
