package transform

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multiview/linalg"
)

func TestIntrinsics(t *testing.T) {
	params := testIntrinsics()
	test.That(t, params.CheckValid(), test.ShouldBeNil)

	k := params.GetCameraMatrix()
	test.That(t, k.At(0, 0), test.ShouldEqual, 800.0)
	test.That(t, k.At(1, 2), test.ShouldEqual, 240.0)
	test.That(t, k.At(2, 2), test.ShouldEqual, 1.0)

	x, y, z := params.PixelToPoint(420, 318, 2)
	test.That(t, x, test.ShouldAlmostEqual, 0.25, 1e-12)
	test.That(t, y, test.ShouldAlmostEqual, 0.2, 1e-12)
	test.That(t, z, test.ShouldEqual, 2.0)
	u, v := params.PointToPixel(x, y, z)
	test.That(t, u, test.ShouldAlmostEqual, 420, 1e-9)
	test.That(t, v, test.ShouldAlmostEqual, 318, 1e-9)
	u, v = params.PointToPixel(1, 1, 0)
	test.That(t, u, test.ShouldEqual, -1.0)
	test.That(t, v, test.ShouldEqual, -1.0)

	n := params.Normalize(r2.Point{X: 420, Y: 318})
	test.That(t, n.X, test.ShouldAlmostEqual, 0.125, 1e-12)
	test.That(t, params.ImagePointTo3DPoint(r2.Point{X: 420, Y: 318}, 2).Z, test.ShouldEqual, 2.0)

	var nilParams *PinholeCameraIntrinsics
	test.That(t, errors.Is(nilParams.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)
	test.That(t, nilParams.GetCameraMatrix(), test.ShouldBeNil)
	bad := *params
	bad.Fy = 0
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
	bad = *params
	bad.Width = 0
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "Invalid size")
}

func TestIntrinsicsConstructors(t *testing.T) {
	params, err := NewIntrinsicsFromFOV(640, 480, 90)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.Fx, test.ShouldAlmostEqual, 320, 1e-9)
	test.That(t, params.Fy, test.ShouldAlmostEqual, 320, 1e-9)
	test.That(t, params.Ppy, test.ShouldEqual, 240.0)
	_, err = NewIntrinsicsFromFOV(640, 480, 180)
	test.That(t, err, test.ShouldNotBeNil)

	params, err = NewIntrinsicsFromSensor(4000, 3000, 4, 6.4, 4.8)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.Fx, test.ShouldAlmostEqual, 2500, 1e-9)
	test.That(t, params.Fy, test.ShouldAlmostEqual, 2500, 1e-9)
	_, err = NewIntrinsicsFromSensor(4000, 3000, 4, 0, 4.8)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewIntrinsicsFromSensor(0, 3000, 4, 6.4, 4.8)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
}

func TestIntrinsicsFromJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intrinsics.json")
	data := `{"width_px": 1280, "height_px": 720, "fx": 900.5, "fy": 901, "ppx": 640.2, "ppy": 359.8}`
	test.That(t, os.WriteFile(path, []byte(data), 0o600), test.ShouldBeNil)

	params, err := NewPinholeCameraIntrinsicsFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params, test.ShouldResemble, &PinholeCameraIntrinsics{
		Width: 1280, Height: 720, Fx: 900.5, Fy: 901, Ppx: 640.2, Ppy: 359.8,
	})

	_, err = NewPinholeCameraIntrinsicsFromJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err.Error(), test.ShouldContainSubstring, "error opening JSON file")

	test.That(t, os.WriteFile(path, []byte("{"), 0o600), test.ShouldBeNil)
	_, err = NewPinholeCameraIntrinsicsFromJSONFile(path)
	test.That(t, err.Error(), test.ShouldContainSubstring, "error parsing JSON string")
}

func TestProjectAndDecompose(t *testing.T) {
	k := testIntrinsics().GetCameraMatrix()
	r := linalg.RotationFromAxisAngle(0.2, -0.5, 1, 0.4)
	tr := r3.Vector{X: 0.3, Y: -0.2, Z: 1.5}
	p := NewCameraMatrix(k, r, tr)

	x := r3.Vector{X: 0.5, Y: 0.25, Z: 3}
	xc := linalg.MulVec3(r, x).Add(tr)
	want := r2.Point{X: 800*xc.X/xc.Z + 320, Y: 780*xc.Y/xc.Z + 240}
	got := Project(p, x, nil)
	test.That(t, got.Sub(want).Norm(), test.ShouldBeLessThan, 1e-9)
	gotH := ProjectHomogeneous(p, [4]float64{2 * x.X, 2 * x.Y, 2 * x.Z, 2}, nil)
	test.That(t, gotH.Sub(want).Norm(), test.ShouldBeLessThan, 1e-9)

	dist := &DivisionDistortion{Center: r2.Point{X: 320, Y: 240}, Lambda: -1e-7}
	distorted := Project(p, x, dist)
	dx, dy := dist.Transform(want.X, want.Y)
	test.That(t, distorted.X, test.ShouldAlmostEqual, dx, 1e-9)
	test.That(t, distorted.Y, test.ShouldAlmostEqual, dy, 1e-9)

	// a camera matrix is defined up to scale, including negative ones
	var scaled mat.Dense
	scaled.Scale(-2.5, p)
	gotK, gotR, gotT, err := DecomposeCameraMatrix(&scaled)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.EqualApprox(gotK, k, 1e-8), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(gotR, r, 1e-10), test.ShouldBeTrue)
	test.That(t, gotT.Sub(tr).Norm(), test.ShouldBeLessThan, 1e-10)

	center, err := CameraCenter(p)
	test.That(t, err, test.ShouldBeNil)
	wantCenter := linalg.MulVec3(linalg.Transpose(r), tr).Mul(-1)
	test.That(t, center.Sub(wantCenter).Norm(), test.ShouldBeLessThan, 1e-10)

	_, _, _, err = DecomposeCameraMatrix(k)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCameraFromHomography(t *testing.T) {
	k := testIntrinsics().GetCameraMatrix()
	r := linalg.RotationFromAxisAngle(1, 0.3, 0.1, 0.5)
	tr := r3.Vector{X: -0.1, Y: 0.2, Z: 2}

	// plane Z = 0: H = K [r1 r2 t]
	var h mat.Dense
	h.Mul(k, linalg.FromColumns(linalg.Column(r, 0), linalg.Column(r, 1), tr))
	want := NewCameraMatrix(k, r, tr)

	for _, scale := range []float64{1, 0.01, -3} {
		var scaled mat.Dense
		scaled.Scale(scale, &h)
		p, err := CameraFromHomography(k, &scaled)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, mat.EqualApprox(p, want, 1e-8), test.ShouldBeTrue)
	}

	// a target point projects through both
	board := r3.Vector{X: 0.2, Y: -0.1}
	p, err := CameraFromHomography(k, &h)
	test.That(t, err, test.ShouldBeNil)
	viaH := linalg.Transfer(&h, r2.Point{X: board.X, Y: board.Y})
	test.That(t, Project(p, board, nil).Sub(viaH).Norm(), test.ShouldBeLessThan, 1e-8)

	_, err = CameraFromHomography(k, linalg.Zero3())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDivisionDistortion(t *testing.T) {
	dd, err := NewDivisionDistortion([]float64{320, 240, -2e-7})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dd.CheckValid(), test.ShouldBeNil)
	test.That(t, dd.ModelType(), test.ShouldEqual, DivisionDistortionType)
	test.That(t, dd.Parameters(), test.ShouldResemble, []float64{320, 240, -2e-7})

	for _, pt := range []r2.Point{{X: 320, Y: 240}, {X: 0, Y: 0}, {X: 600, Y: 100}, {X: 10, Y: 470}} {
		xd, yd := dd.Transform(pt.X, pt.Y)
		x, y := dd.Undistort(xd, yd)
		test.That(t, x, test.ShouldAlmostEqual, pt.X, 1e-8)
		test.That(t, y, test.ShouldAlmostEqual, pt.Y, 1e-8)
	}

	// negative lambda pushes points outwards
	xd, _ := dd.Transform(600, 240)
	test.That(t, xd, test.ShouldBeGreaterThan, 600)

	d, err := NewDistorter(DivisionDistortionType, []float64{1, 2, 3e-7})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Parameters(), test.ShouldResemble, []float64{1, 2, 3e-7})

	ideal := []r2.Point{{X: 100, Y: 50}, {X: 500, Y: 400}}
	observed := make([]r2.Point, len(ideal))
	for i, p := range ideal {
		observed[i].X, observed[i].Y = d.Transform(p.X, p.Y)
	}
	for i, p := range UndistortPoints(d, observed) {
		test.That(t, p.Sub(ideal[i]).Norm(), test.ShouldBeLessThan, 1e-8)
	}
	test.That(t, UndistortPoints(nil, observed), test.ShouldResemble, observed)

	_, err = NewDistorter("fisheye", nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDivisionDistortion([]float64{1, 2})
	test.That(t, err, test.ShouldNotBeNil)

	identity, err := NewDivisionDistortion(nil)
	test.That(t, err, test.ShouldBeNil)
	x, y := identity.Undistort(5, 6)
	test.That(t, []float64{x, y}, test.ShouldResemble, []float64{5, 6})

	var nilModel *DivisionDistortion
	test.That(t, errors.Is(nilModel.CheckValid(), ErrInvalidDistortion), test.ShouldBeTrue)
	test.That(t, (&DivisionDistortion{Lambda: math.NaN()}).CheckValid(), test.ShouldNotBeNil)
}

func TestRectifyingHomographies(t *testing.T) {
	k0 := testIntrinsics().GetCameraMatrix()
	k1 := (&PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 820, Fy: 800, Ppx: 310, Ppy: 250}).GetCameraMatrix()
	p0 := NewCameraMatrix(k0, linalg.RotationFromAxisAngle(0, 1, 0, 0.05), r3.Vector{})
	p1 := NewCameraMatrix(k1, linalg.RotationFromAxisAngle(0.2, 1, 0.1, -0.08), r3.Vector{X: -0.5, Y: 0.02, Z: 0.03})

	rect, err := RectifyingHomographies(p0, p1)
	test.That(t, err, test.ShouldBeNil)

	rng := newTestRand(31)
	for i := 0; i < 20; i++ {
		x := r3.Vector{X: 2*rng.Float64() - 1, Y: 2*rng.Float64() - 1, Z: 3 + 5*rng.Float64()}
		a := linalg.Transfer(rect.H0, Project(p0, x, nil))
		b := linalg.Transfer(rect.H1, Project(p1, x, nil))
		test.That(t, a.Y, test.ShouldAlmostEqual, b.Y, 1e-6)
		// the homographies agree with the rectified cameras
		test.That(t, a.Sub(Project(rect.P0, x, nil)).Norm(), test.ShouldBeLessThan, 1e-6)
		test.That(t, b.Sub(Project(rect.P1, x, nil)).Norm(), test.ShouldBeLessThan, 1e-6)
	}

	_, err = RectifyingHomographies(p0, p0)
	test.That(t, err, test.ShouldNotBeNil)
}
