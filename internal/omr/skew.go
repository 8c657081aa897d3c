package omr

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// EstimateSkew fits a total least squares line through the anchor centers and returns
// its angle from horizontal in degrees, in (-90, 90]. In image coordinates a positive
// angle means the line descends to the right; rotating the page counter-clockwise by
// the same angle levels it. Fewer than two anchors, or coincident centers, give 0.
func EstimateSkew(anchors []AnchorMark) float64 {
	if len(anchors) < 2 {
		return 0
	}

	data := make([]float64, 0, 2*len(anchors))
	for _, a := range anchors {
		data = append(data, a.Center.X, a.Center.Y)
	}
	points := mat.NewDense(len(anchors), 2, data)

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, points, nil)
	if cov.At(0, 0)+cov.At(1, 1) < 1e-9 {
		return 0
	}

	// The principal axis of the covariance is the direction of the best fit line.
	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return 0
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues are ascending, so the last column is the principal direction.
	vx, vy := vecs.At(0, 1), vecs.At(1, 1)
	if math.Abs(vx) < 1e-12 {
		vx = 0
	}
	if vx < 0 || (vx == 0 && vy < 0) {
		vx, vy = -vx, -vy
	}

	angle := math.Atan2(vy, vx) * 180 / math.Pi
	if angle <= -90 {
		angle += 180
	}
	return angle
}
