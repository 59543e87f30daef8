package framebus

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type event struct {
	id   int64
	path string
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New[event]()
	defer bus.Close()

	ch := make(chan event, 4)
	if err := bus.Subscribe("mqtt", ch); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := bus.Publish(event{id: 1, path: "image0001.jpg"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-ch:
		if got.id != 1 || got.path != "image0001.jpg" {
			t.Errorf("received %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_FullChannelDrops(t *testing.T) {
	bus := New[event]()
	defer bus.Close()

	slow := make(chan event, 1)
	fast := make(chan event, 8)
	bus.Subscribe("slow", slow)
	bus.Subscribe("fast", fast)

	done := make(chan struct{})
	go func() {
		for i := int64(0); i < 3; i++ {
			bus.Publish(event{id: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked on a full subscriber")
	}

	st := bus.Stats()
	if st.Published != 3 {
		t.Errorf("published = %d, want 3", st.Published)
	}
	if s := st.Subscribers["slow"]; s.Sent != 1 || s.Dropped != 2 {
		t.Errorf("slow = %+v, want 1 sent 2 dropped", s)
	}
	if s := st.Subscribers["fast"]; s.Sent != 3 || s.Dropped != 0 {
		t.Errorf("fast = %+v, want 3 sent", s)
	}
	if st.Sent != 4 || st.Dropped != 2 {
		t.Errorf("totals = %d sent %d dropped, want 4 and 2", st.Sent, st.Dropped)
	}
}

func TestBus_SubscriptionErrors(t *testing.T) {
	bus := New[event]()

	ch := make(chan event, 1)
	if err := bus.Subscribe("a", nil); err == nil {
		t.Error("Subscribe(nil) succeeded")
	}
	if err := bus.Subscribe("a", ch); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := bus.Subscribe("a", ch); !errors.Is(err, ErrSubscriberExists) {
		t.Errorf("duplicate Subscribe() = %v, want ErrSubscriberExists", err)
	}
	if err := bus.Unsubscribe("b"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("Unsubscribe(b) = %v, want ErrSubscriberNotFound", err)
	}
	if err := bus.Unsubscribe("a"); err != nil {
		t.Errorf("Unsubscribe(a) = %v", err)
	}

	bus.Close()
	bus.Close()
	if err := bus.Subscribe("c", ch); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Subscribe() after Close = %v, want ErrBusClosed", err)
	}
	if err := bus.Publish(event{}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Publish() after Close = %v, want ErrBusClosed", err)
	}
	if st := bus.Stats(); st.Published != 0 {
		t.Errorf("published = %d after close, want 0", st.Published)
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := New[event]()
	defer bus.Close()

	ch := make(chan event, 1000)
	bus.Subscribe("sink", ch)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				bus.Publish(event{id: int64(i)})
			}
		}()
	}
	wg.Wait()

	if st := bus.Stats(); st.Published != 500 || st.Sent+st.Dropped != 500 {
		t.Errorf("stats = %+v, want 500 published and accounted for", st)
	}
	t.Logf("✅ 500 concurrent publishes accounted for")
}
