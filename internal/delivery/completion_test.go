package delivery

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCompletion_SingleSlot(t *testing.T) {
	c := NewCompletion()

	if !c.Signal(Outcome{State: Complete}) {
		t.Fatal("first Signal should succeed")
	}
	if c.Signal(Outcome{State: Failed}) {
		t.Error("second Signal should report the slot as full")
	}

	o, err := c.Wait(context.Background())
	if err != nil || o.State != Complete {
		t.Errorf("Wait = %+v, %v", o, err)
	}
}

func TestCompletion_WaitFromAnotherGoroutine(t *testing.T) {
	c := NewCompletion()
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Signal(Outcome{State: Complete, Bytes: 42})
	}()

	o, err := c.Wait(context.Background())
	if err != nil || o.Bytes != 42 {
		t.Errorf("Wait = %+v, %v", o, err)
	}
}

func TestCompletion_WaitCancelled(t *testing.T) {
	c := NewCompletion()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}

func TestCompletion_WaitTimeout(t *testing.T) {
	tests := []struct {
		name    string
		signal  bool
		timeout time.Duration
		wantErr error
	}{
		{"signalled", true, 100 * time.Millisecond, nil},
		{"times_out", false, 10 * time.Millisecond, ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompletion()
			if tt.signal {
				c.Signal(Outcome{State: Complete})
			}
			_, err := c.WaitTimeout(context.Background(), tt.timeout)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("WaitTimeout = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompletion_Reset(t *testing.T) {
	c := NewCompletion()
	c.Signal(Outcome{State: Failed})
	c.Reset()

	if _, err := c.WaitTimeout(context.Background(), 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("stale outcome survived Reset: %v", err)
	}
}
