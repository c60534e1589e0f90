package refcount

import (
	"sync"
	"testing"
)

func TestNewControlBlockInitialCounts(t *testing.T) {
	cb := NewControlBlock(nil)
	if cb.Shared() != 1 || cb.Weak() != 1 || cb.Optimistic() != 0 {
		t.Fatalf("unexpected initial counts: shared=%d weak=%d optimistic=%d", cb.Shared(), cb.Weak(), cb.Optimistic())
	}
	if cb.Destroyed() {
		t.Fatalf("freshly made control block should not be destroyed")
	}
}

func TestCloneStrongThenDropStrongLeavesCountsUnchanged(t *testing.T) {
	cb := NewControlBlock(nil)
	before := cb.Shared()
	if !cb.CloneStrong() {
		t.Fatalf("clone should succeed while shared > 0")
	}
	cb.DropStrong()
	if cb.Shared() != before {
		t.Fatalf("clone_strong+drop_strong should leave shared count unchanged: got %d want %d", cb.Shared(), before)
	}
}

func TestDropStrongToZeroRunsDestructorOnce(t *testing.T) {
	var calls int
	var mu sync.Mutex
	cb := NewControlBlock(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	cb.DropStrong()

	if !cb.Destroyed() {
		t.Fatalf("control block should be destroyed once shared reaches 0")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("destructor should run exactly once, ran %d times", calls)
	}
	// weak self-reference should have been released too.
	if cb.Weak() != 0 {
		t.Fatalf("weak self-reference should be released after destroy, got weak=%d", cb.Weak())
	}
	if !cb.Freed() {
		t.Fatalf("control block should be freed once shared and weak both reach 0")
	}
}

func TestCloneStrongFailsAfterDestroy(t *testing.T) {
	cb := NewControlBlock(nil)
	cb.DropStrong()
	if cb.CloneStrong() {
		t.Fatalf("clone_strong must fail once shared has reached 0")
	}
}

func TestUpgradeWeakFailsAfterDestroy(t *testing.T) {
	cb := NewControlBlock(nil)
	cb.CloneWeak()
	cb.DropStrong()
	if cb.UpgradeWeak() {
		t.Fatalf("upgrade_weak must fail once the object is destroyed")
	}
	cb.DropWeak()
}

func TestOptimisticCountIndependentOfShared(t *testing.T) {
	destroyed := false
	cb := NewControlBlock(func() { destroyed = true })
	cb.CloneOptimistic()
	cb.DropStrong()
	if !destroyed {
		t.Fatalf("object should be destroyed when shared reaches 0 regardless of optimistic count")
	}
	if cb.Optimistic() != 1 {
		t.Fatalf("optimistic count should be untouched by shared reaching 0")
	}
	cb.DropOptimistic()
	if cb.Optimistic() != 0 {
		t.Fatalf("optimistic count should reach 0 after drop")
	}
}

func TestConcurrentCloneDropConservesSharedCount(t *testing.T) {
	cb := NewControlBlock(nil)
	const n = 500
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cb.CloneStrong() {
				cb.DropStrong()
			}
		}()
	}
	wg.Wait()
	if cb.Shared() != 1 {
		t.Fatalf("shared count should return to 1 after n paired clone/drop, got %d", cb.Shared())
	}
}

func TestDestroyedFlagSetExactlyOnceUnderRace(t *testing.T) {
	var mu sync.Mutex
	var calls int
	cb := NewControlBlock(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	cb.CloneStrong() // shared = 2

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); cb.DropStrong() }()
	go func() { defer wg.Done(); cb.DropStrong() }()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("destructor must run exactly once even when the last two drops race, ran %d times", calls)
	}
}
