package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestBatchProcessor_Process(t *testing.T) {
	var calls int32
	processor := NewBatchProcessor(func(ctx context.Context, id string) error {
		atomic.AddInt32(&calls, 1)
		time.Sleep(5 * time.Millisecond)
		return nil
	}, 2)

	items := []string{"a-1", "a-2", "a-3"}
	results := processor.Process(context.Background(), items)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Errorf("unexpected error for %s: %v", res.Item, res.Err)
		}
		if res.Item != items[i] || res.Index != i {
			t.Errorf("expected result %d to be %s, got %s at %d", i, items[i], res.Item, res.Index)
		}
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestBatchProcessor_FailureIsolation(t *testing.T) {
	processor := NewBatchProcessor(func(ctx context.Context, n int) error {
		switch n {
		case 2:
			return errors.New("record failed")
		case 4:
			panic("bad record")
		}
		return nil
	}, 3)

	results := processor.Process(context.Background(), []int{1, 2, 3, 4, 5})

	failed := Errors(results)
	if len(failed) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failed))
	}
	if failed[0].Item != 2 || failed[1].Item != 4 {
		t.Errorf("unexpected failed items %d and %d", failed[0].Item, failed[1].Item)
	}
	var pe *PanicError
	if !errors.As(failed[1].Err, &pe) {
		t.Errorf("expected panic error, got %v", failed[1].Err)
	}
	if failed[1].Index != 3 || results[3] != failed[1] {
		t.Errorf("panicking record should stay at its input index, got %d", failed[1].Index)
	}
}

func TestBatchProcessor_LargeBatch(t *testing.T) {
	processor := NewBatchProcessor(func(ctx context.Context, n int) error { return nil }, 2)

	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	results := processor.Process(context.Background(), items)
	if len(results) != 100 {
		t.Fatalf("expected 100 results, got %d", len(results))
	}
	if len(Errors(results)) != 0 {
		t.Error("expected no failures")
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	processor := NewBatchProcessor(func(ctx context.Context, n int) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}, 1)

	results := processor.Process(ctx, []int{1, 2, 3})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, res := range results {
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("expected cancellation for %d, got %v", res.Item, res.Err)
		}
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	processor := NewBatchProcessor(func(ctx context.Context, n int) error { return nil }, 2)

	results := processor.Process(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}
