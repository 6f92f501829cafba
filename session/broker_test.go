package session

import (
	"testing"
	"time"
)

func TestBrokerPublishNoSubscribers(t *testing.T) {
	b := NewBroker[string]()
	for range 100 {
		b.Publish("event")
	}
}

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker[int]()
	a, unsubA := b.Subscribe()
	c, unsubC := b.Subscribe()
	defer unsubA()
	defer unsubC()
	for _, v := range []int{1, 2, 3} {
		b.Publish(v)
	}
	for _, sub := range []<-chan int{a, c} {
		for want := 1; want <= 3; want++ {
			select {
			case got := <-sub:
				if got != want {
					t.Fatalf("want %d got %d", want, got)
				}
			case <-time.After(200 * time.Millisecond):
				t.Fatalf("timed out waiting for %d", want)
			}
		}
	}
}

func TestBrokerSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker[int]()
	_, unsub := b.Subscribe()
	defer unsub()
	done := make(chan struct{})
	go func() {
		for i := range subscriberBuffer * 3 {
			b.Publish(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBrokerUnsubscribeAndClose(t *testing.T) {
	b := NewBroker[string]()
	ch, unsub := b.Subscribe()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("unsubscribed channel must be closed")
	}
	unsub()
	kept, _ := b.Subscribe()
	b.Close()
	b.Close()
	if _, ok := <-kept; ok {
		t.Fatal("close must close subscriber channels")
	}
	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscribing to a closed broker must yield a closed channel")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", b.Subscribers())
	}
}
