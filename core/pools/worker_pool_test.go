package pools

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitCompleted(t *testing.T, pool *WorkerPool, want uint64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if pool.Stats().TasksCompleted >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %d of %d tasks completed", pool.Stats().TasksCompleted, want)
}

func TestWorkerPoolRunsEverySubmittedTask(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var ran atomic.Int64
	for i := 0; i < 100; i++ {
		if !pool.Submit(func() { ran.Add(1) }) {
			t.Fatalf("Submit rejected task %d before Close", i)
		}
	}

	waitCompleted(t, pool, 100)
	if ran.Load() != 100 {
		t.Fatalf("ran %d tasks, want 100", ran.Load())
	}
}

func TestWorkerPoolRejectsAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	if pool.Submit(func() {}) {
		t.Fatalf("Submit after Close must return false")
	}
}

func TestWorkerPoolStealsAcrossLanes(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// Uneven task durations leave some lanes idle while others back up,
	// which is exactly when poaching should kick in.
	var ran atomic.Int64
	for i := 0; i < 200; i++ {
		slow := i%10 == 0
		pool.Submit(func() {
			if slow {
				time.Sleep(5 * time.Millisecond)
			}
			ran.Add(1)
		})
	}

	waitCompleted(t, pool, 200)
	if ran.Load() != 200 {
		t.Fatalf("ran %d tasks, want 200", ran.Load())
	}
	if pool.Stats().StealsSuccess == 0 {
		t.Log("no steals observed this run (timing dependent)")
	}
}

func BenchmarkWorkerPoolSubmit(b *testing.B) {
	pool := NewWorkerPool(8)
	defer pool.Close()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			pool.Submit(func() {})
		}
	})

	for pool.Stats().TasksCompleted < uint64(b.N) {
		time.Sleep(time.Millisecond)
	}
}
