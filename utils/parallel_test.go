package utils

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.viam.com/test"
)

func TestGroupWorkParallel(t *testing.T) {
	for _, size := range []int{0, 1, 3, 17, 1000} {
		out := make([]int, size)
		var calls atomic.Int64
		err := GroupWorkParallel(context.Background(), size, func(groupNum, groupSize, from, to int) MemberWorkFunc {
			test.That(t, to-from, test.ShouldEqual, groupSize)
			return func(memberNum, workNum int) error {
				calls.Add(1)
				out[workNum] = workNum * workNum
				return nil
			}
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, calls.Load(), test.ShouldEqual, int64(size))
		for i, v := range out {
			test.That(t, v, test.ShouldEqual, i*i)
		}
	}
}

func TestParallelForEachErrors(t *testing.T) {
	err := ParallelForEach(context.Background(), 10, func(i int) error {
		if i == 7 {
			return errors.New("bad item")
		}
		return nil
	})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "work item 7")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = ParallelForEach(ctx, 5, func(i int) error { return nil })
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestAngles(t *testing.T) {
	test.That(t, DegToRad(180), test.ShouldAlmostEqual, 3.141592653589793)
	test.That(t, RadToDeg(DegToRad(33)), test.ShouldAlmostEqual, 33)
	test.That(t, Square(-3), test.ShouldEqual, 9.0)
	test.That(t, Abs(float32(-2)), test.ShouldEqual, float32(2))
	test.That(t, Float64AlmostEqual(1, 1+1e-9, 1e-8), test.ShouldBeTrue)
}
