package workerpool

import (
	"errors"
	"testing"
	"time"
)

func doubleRun(bytes []byte, _ interface{}) ([]byte, error) {
	out := make([]byte, len(bytes)*2)
	copy(out, bytes)
	copy(out[len(bytes):], bytes)
	return out, nil
}

func failingRun(bytes []byte, _ interface{}) ([]byte, error) {
	return nil, errors.New("boom")
}

func TestSubmitResolvesFuture(t *testing.T) {
	p := New(DefaultConfig())
	defer p.Shutdown()

	f, err := p.Submit(Task{Bytes: []byte("ab"), Run: doubleRun, OriginalName: "a.jpg"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	result := f.Get()
	if !result.Success {
		t.Fatalf("expected success, got err %v", result.Err)
	}
	if string(result.Bytes) != "abab" {
		t.Fatalf("expected abab, got %q", result.Bytes)
	}
	if result.OriginalSize != 2 || result.OptimizedSize != 4 {
		t.Fatalf("unexpected size bookkeeping: %+v", result)
	}
}

func TestSubmitFailingTaskReportsFailureNotError(t *testing.T) {
	p := New(DefaultConfig())
	defer p.Shutdown()

	f, err := p.Submit(Task{Bytes: []byte("x"), Run: failingRun})
	if err != nil {
		t.Fatalf("submit itself should not fail: %v", err)
	}
	result := f.Get()
	if result.Success {
		t.Fatalf("expected Success=false")
	}
	if result.Err == nil {
		t.Fatalf("expected an error on the result")
	}
}

func TestSubmitManyReturnsPositionalResults(t *testing.T) {
	p := New(DefaultConfig())
	defer p.Shutdown()

	tasks := []Task{
		{Bytes: []byte("a"), Run: doubleRun},
		{Bytes: []byte("bb"), Run: doubleRun},
		{Bytes: []byte("ccc"), Run: doubleRun},
	}
	future, err := p.SubmitMany(tasks)
	if err != nil {
		t.Fatalf("submitMany failed: %v", err)
	}
	results := future.Get()
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if !r.Success {
			t.Fatalf("task %d failed: %v", i, r.Err)
		}
	}
	if string(results[1].Bytes) != "bbbb" {
		t.Fatalf("expected positional ordering, got %q", results[1].Bytes)
	}
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	p := New(DefaultConfig())
	p.Shutdown()

	if _, err := p.Submit(Task{Bytes: []byte("x"), Run: doubleRun}); !errors.Is(err, ErrPoolShutdown) {
		t.Fatalf("expected ErrPoolShutdown, got %v", err)
	}
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	p := New(Config{MinThreads: 1, MaxThreads: 1, QueueCeiling: 1})
	defer p.Shutdown()

	block := make(chan struct{})
	blocker := func(bytes []byte, _ interface{}) ([]byte, error) {
		<-block
		return bytes, nil
	}

	// The single worker immediately pulls and blocks on task A, so task B
	// occupies the one queue slot and task C deterministically overflows it.
	fa, err := p.Submit(Task{Bytes: []byte("a"), Run: blocker})
	if err != nil {
		t.Fatalf("task A submit should succeed: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the worker actually dequeue A

	fb, err := p.Submit(Task{Bytes: []byte("b"), Run: blocker})
	if err != nil {
		t.Fatalf("task B submit should succeed: %v", err)
	}
	if _, err := p.Submit(Task{Bytes: []byte("c"), Run: blocker}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(block)
	fa.Get()
	fb.Get()
}

func TestStatsReportsBounds(t *testing.T) {
	p := New(Config{MinThreads: 2, MaxThreads: 6})
	defer p.Shutdown()

	stats := p.Stats()
	if stats.MinThreads != 2 || stats.MaxThreads != 6 {
		t.Fatalf("unexpected bounds: %+v", stats)
	}
}

func TestIdleWorkersExitAfterTimeout(t *testing.T) {
	p := New(Config{MinThreads: 1, MaxThreads: 4, IdleTimeoutMs: 10})
	defer p.Shutdown()

	block := make(chan struct{})
	blocker := func(bytes []byte, _ interface{}) ([]byte, error) {
		<-block
		return bytes, nil
	}

	// Two concurrent tasks force a second, non-core worker to spawn.
	f1, err := p.Submit(Task{Bytes: []byte("a"), Run: blocker})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	f2, err := p.Submit(Task{Bytes: []byte("b"), Run: blocker})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if p.Stats().ActiveThread < 2 {
		t.Fatalf("expected a second worker to have spawned")
	}
	close(block)
	f1.Get()
	f2.Get()

	time.Sleep(100 * time.Millisecond)
	stats := p.Stats()
	if stats.ActiveThread > stats.MinThreads {
		t.Fatalf("expected non-core workers to exit after idling, got %+v", stats)
	}
}
