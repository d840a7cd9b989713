package recon

import (
	"math"
)

const (
	// subsetCount is the number of ordered subsets used by osem and ospml_*
	subsetCount = 8

	// pmlBeta weighs the roughness penalty of the penalised algorithms
	pmlBeta = 0.05

	// hybridDelta is where the hybrid potential turns from quadratic to linear
	hybridDelta = 0.01

	// tvLambda weighs the total-variation term of tv
	tvLambda = 0.01
	tvEpsilon = 1e-8

	tiny = 1e-12
)

// penalty selects the roughness potential of the penalised algorithms.
type penalty int

const (
	noPenalty penalty = iota
	quadratic
	hybrid
)

// iterative runs an iterative algorithm for one slice.
func iterative(p *projector, b []float64, alg Algorithm, iterations int) []float64 {
	switch alg {
	case ART:
		return algebraic(p, b, iterations, blocksOf(p.nAngles, 1))
	case BART:
		return algebraic(p, b, iterations, blocksOf(p.nAngles, (p.nAngles+subsetCount-1)/subsetCount))
	case SIRT:
		return algebraic(p, b, iterations, blocksOf(p.nAngles, p.nAngles))
	case MLEM:
		return expectation(p, b, iterations, [][]int{p.allAngles()}, noPenalty)
	case OSEM:
		return expectation(p, b, iterations, orderedSubsets(p.nAngles, subsetCount), noPenalty)
	case PMLQuad:
		return expectation(p, b, iterations, [][]int{p.allAngles()}, quadratic)
	case PMLHybrid:
		return expectation(p, b, iterations, [][]int{p.allAngles()}, hybrid)
	case OSPMLQuad:
		return expectation(p, b, iterations, orderedSubsets(p.nAngles, subsetCount), quadratic)
	case OSPMLHybrid:
		return expectation(p, b, iterations, orderedSubsets(p.nAngles, subsetCount), hybrid)
	case Grad:
		return gradient(p, b, iterations, 0)
	case TV:
		return gradient(p, b, iterations, tvLambda)
	}
	return make([]float64, p.n*p.n)
}

// blocksOf splits 0..n-1 into consecutive blocks of at most size angles.
func blocksOf(n, size int) [][]int {
	if size < 1 {
		size = 1
	}
	var blocks [][]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		block := make([]int, 0, end-start)
		for a := start; a < end; a++ {
			block = append(block, a)
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// orderedSubsets interleaves 0..n-1 into k subsets so each one spans the
// whole angular range.
func orderedSubsets(n, k int) [][]int {
	if k > n {
		k = n
	}
	subsets := make([][]int, k)
	for a := 0; a < n; a++ {
		subsets[a%k] = append(subsets[a%k], a)
	}
	return subsets
}

// weights returns the row sums (per detector sample, over the block) and
// column sums (per pixel) of the system matrix restricted to angles.
func weights(p *projector, angles []int) (rowSum, colSum []float64) {
	ones := make([]float64, p.n*p.n)
	for i := range ones {
		ones[i] = 1
	}
	rowSum = make([]float64, p.nAngles*p.nCols)
	p.forward(ones, rowSum, angles)

	sinoOnes := make([]float64, p.nAngles*p.nCols)
	for i := range sinoOnes {
		sinoOnes[i] = 1
	}
	colSum = make([]float64, p.n*p.n)
	p.back(sinoOnes, colSum, angles, 1)
	return rowSum, colSum
}

// algebraic runs SART-style updates, one block of angles at a time:
// x += A^T((b - Ax) / rowSum) / colSum. A single block is SIRT, one angle
// per block is ART.
func algebraic(p *projector, b []float64, iterations int, blocks [][]int) []float64 {
	x := make([]float64, p.n*p.n)
	ax := make([]float64, len(b))
	corr := make([]float64, p.n*p.n)

	rows := make([][]float64, len(blocks))
	cols := make([][]float64, len(blocks))
	for i, block := range blocks {
		rows[i], cols[i] = weights(p, block)
	}

	for it := 0; it < iterations; it++ {
		for i, block := range blocks {
			p.forward(x, ax, block)
			for _, a := range block {
				for c := 0; c < p.nCols; c++ {
					k := a*p.nCols + c
					if rows[i][k] > tiny {
						ax[k] = (b[k] - ax[k]) / rows[i][k]
					} else {
						ax[k] = 0
					}
				}
			}
			for j := range corr {
				corr[j] = 0
			}
			p.back(ax, corr, block, 1)
			for j := range x {
				if cols[i][j] > tiny {
					x[j] += corr[j] / cols[i][j]
				}
			}
		}
	}
	return x
}

// expectation runs MLEM-type multiplicative updates over the given subsets.
// With a penalty it uses the one-step-late form, adding beta times the
// potential gradient at the current estimate to the sensitivity.
func expectation(p *projector, b []float64, iterations int, subsets [][]int, pen penalty) []float64 {
	meas := make([]float64, len(b))
	for i, v := range b {
		meas[i] = math.Max(v, 0)
	}

	x := make([]float64, p.n*p.n)
	for i := range x {
		x[i] = 1
	}
	ax := make([]float64, len(b))
	ratio := make([]float64, p.n*p.n)
	grad := make([]float64, p.n*p.n)

	sens := make([][]float64, len(subsets))
	for i, s := range subsets {
		_, sens[i] = weights(p, s)
	}

	for it := 0; it < iterations; it++ {
		for i, s := range subsets {
			p.forward(x, ax, s)
			for _, a := range s {
				for c := 0; c < p.nCols; c++ {
					k := a*p.nCols + c
					if ax[k] > tiny {
						ax[k] = meas[k] / ax[k]
					} else {
						ax[k] = 0
					}
				}
			}
			for j := range ratio {
				ratio[j] = 0
			}
			p.back(ax, ratio, s, 1)

			if pen != noPenalty {
				roughness(x, p.n, pen, grad)
			}
			for j := range x {
				denom := sens[i][j]
				if pen != noPenalty {
					denom += pmlBeta * grad[j]
				}
				if denom > tiny {
					x[j] *= ratio[j] / denom
				}
			}
		}
	}
	return x
}

// roughness writes the gradient of the 4-neighbour penalty of x into g.
func roughness(x []float64, n int, pen penalty, g []float64) {
	for iy := 0; iy < n; iy++ {
		for ix := 0; ix < n; ix++ {
			j := iy*n + ix
			var sum float64
			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nx, ny := ix+d[0], iy+d[1]
				if nx < 0 || ny < 0 || nx >= n || ny >= n {
					continue
				}
				diff := x[j] - x[ny*n+nx]
				if pen == hybrid {
					diff = diff / (1 + math.Abs(diff)/hybridDelta)
				}
				sum += diff
			}
			g[j] = sum
		}
	}
}

// gradient runs gradient descent on ||Ax - b||^2 / 2, optionally with a
// smoothed total-variation term weighted by lambda. The step is the inverse
// of a bound on the largest eigenvalue of A^T A.
func gradient(p *projector, b []float64, iterations int, lambda float64) []float64 {
	all := p.allAngles()
	rowSum, colSum := weights(p, all)
	var maxRow, maxCol float64
	for _, v := range rowSum {
		maxRow = math.Max(maxRow, v)
	}
	for _, v := range colSum {
		maxCol = math.Max(maxCol, v)
	}
	if maxRow*maxCol < tiny {
		return make([]float64, p.n*p.n)
	}
	step := 1 / (maxRow * maxCol)

	x := make([]float64, p.n*p.n)
	ax := make([]float64, len(b))
	g := make([]float64, p.n*p.n)
	tv := make([]float64, p.n*p.n)

	for it := 0; it < iterations; it++ {
		p.forward(x, ax, all)
		for k := range ax {
			ax[k] = b[k] - ax[k]
		}
		for j := range g {
			g[j] = 0
		}
		p.back(ax, g, all, 1)
		if lambda > 0 {
			tvGradient(x, p.n, tv)
		}
		for j := range x {
			x[j] += step * g[j]
			if lambda > 0 {
				x[j] -= lambda * tv[j]
			}
		}
	}
	return x
}

// tvGradient writes the gradient of the smoothed isotropic total variation
// of x into g, using forward differences.
func tvGradient(x []float64, n int, g []float64) {
	at := func(ix, iy int) float64 {
		if ix >= n {
			ix = n - 1
		}
		if iy >= n {
			iy = n - 1
		}
		return x[iy*n+ix]
	}
	// px, py hold the normalised forward differences
	px := make([]float64, n*n)
	py := make([]float64, n*n)
	for iy := 0; iy < n; iy++ {
		for ix := 0; ix < n; ix++ {
			dx := at(ix+1, iy) - at(ix, iy)
			dy := at(ix, iy+1) - at(ix, iy)
			norm := math.Sqrt(dx*dx + dy*dy + tvEpsilon)
			px[iy*n+ix] = dx / norm
			py[iy*n+ix] = dy / norm
		}
	}
	// g = -div(p)
	for iy := 0; iy < n; iy++ {
		for ix := 0; ix < n; ix++ {
			j := iy*n + ix
			div := px[j] + py[j]
			if ix > 0 {
				div -= px[j-1]
			}
			if iy > 0 {
				div -= py[j-n]
			}
			g[j] = -div
		}
	}
}
