package utils

import (
	"context"
	"sync"
	"testing"

	"go.viam.com/test"
)

func TestGroupWorkParallel(t *testing.T) {
	for _, totalSize := range []int{0, 1, 3, ParallelFactor, ParallelFactor*3 + 1, 1000} {
		var mu sync.Mutex
		seen := make([]int, totalSize)
		groups := 0
		err := GroupWorkParallel(
			context.Background(),
			totalSize,
			func(groupSize int) { groups = groupSize },
			func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
				test.That(t, to-from, test.ShouldEqual, groupSize)
				return func(memberNum, workNum int) {
					mu.Lock()
					seen[workNum]++
					mu.Unlock()
				}, nil
			},
		)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, groups, test.ShouldBeLessThanOrEqualTo, ParallelFactor)
		for _, count := range seen {
			test.That(t, count, test.ShouldEqual, 1)
		}
	}
}

func TestGroupWorkParallelCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := GroupWorkParallel(ctx, 10, nil, func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
		return func(memberNum, workNum int) {}, nil
	})
	test.That(t, err, test.ShouldEqual, context.Canceled)
}
