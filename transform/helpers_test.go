package transform

import (
	"math/rand/v2"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext/prng"

	"go.viam.com/multiview/linalg"
)

func newTestRand(seed uint64) *rand.Rand {
	src := prng.NewMT19937()
	src.Seed(seed)
	return rand.New(src)
}

func testIntrinsics() *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 800, Fy: 780, Ppx: 320, Ppy: 240}
}

// twoView is a synthetic calibrated pair: the second camera maps X to R X + t.
type twoView struct {
	k            *mat.Dense
	r            *mat.Dense
	t            r3.Vector
	points       []r3.Vector
	pix0, pix1   []r2.Point
	norm0, norm1 []r2.Point
}

func newTwoView(rng *rand.Rand, n int) *twoView {
	tv := &twoView{
		k: testIntrinsics().GetCameraMatrix(),
		r: linalg.RotationFromAxisAngle(0.1, 1, 0.05, 0.15),
		t: r3.Vector{X: -1, Y: 0.1, Z: 0.2},
	}
	p0 := NewCameraMatrix(tv.k, linalg.Eye(3), r3.Vector{})
	p1 := NewCameraMatrix(tv.k, tv.r, tv.t)
	for i := 0; i < n; i++ {
		x := r3.Vector{X: 2*rng.Float64() - 1, Y: 2*rng.Float64() - 1, Z: 4 + 4*rng.Float64()}
		x1 := linalg.MulVec3(tv.r, x).Add(tv.t)
		tv.points = append(tv.points, x)
		tv.pix0 = append(tv.pix0, Project(p0, x, nil))
		tv.pix1 = append(tv.pix1, Project(p1, x, nil))
		tv.norm0 = append(tv.norm0, r2.Point{X: x.X / x.Z, Y: x.Y / x.Z})
		tv.norm1 = append(tv.norm1, r2.Point{X: x1.X / x1.Z, Y: x1.Y / x1.Z})
	}
	return tv
}

func (tv *twoView) cameras() (*mat.Dense, *mat.Dense) {
	return NewCameraMatrix(tv.k, linalg.Eye(3), r3.Vector{}), NewCameraMatrix(tv.k, tv.r, tv.t)
}

func randomPixels(rng *rand.Rand, n int) []r2.Point {
	pts := make([]r2.Point, n)
	for i := range pts {
		pts[i] = r2.Point{X: 640 * rng.Float64(), Y: 480 * rng.Float64()}
	}
	return pts
}

func withNoise(rng *rand.Rand, pts []r2.Point, sigma float64) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{X: p.X + sigma*rng.NormFloat64(), Y: p.Y + sigma*rng.NormFloat64()}
	}
	return out
}

// equalUpToSign compares matrices that are only defined up to sign.
func equalUpToSign(a, b mat.Matrix, tol float64) bool {
	var neg mat.Dense
	neg.Scale(-1, b)
	return mat.EqualApprox(a, b, tol) || mat.EqualApprox(a, &neg, tol)
}
