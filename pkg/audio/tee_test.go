package audio

import (
	"testing"
	"time"
)

func frame(n int16) Frame {
	return Frame{Samples: []int16{n}, SampleRate: 16000, Timestamp: time.Now()}
}

func TestTee_DeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	tee := NewTee(4)
	a := tee.Subscribe()
	b := tee.Subscribe()

	tee.Publish(frame(1))
	tee.Publish(frame(2))

	for _, ch := range []<-chan Frame{a, b} {
		for want := int16(1); want <= 2; want++ {
			got := <-ch
			if got.Samples[0] != want {
				t.Fatalf("received sample %d, want %d", got.Samples[0], want)
			}
		}
	}
}

func TestTee_DropsOldestWhenSubscriberLags(t *testing.T) {
	t.Parallel()

	tee := NewTee(2)
	ch := tee.Subscribe()

	tee.Publish(frame(1))
	tee.Publish(frame(2))
	tee.Publish(frame(3)) // evicts 1

	if got := (<-ch).Samples[0]; got != 2 {
		t.Errorf("first buffered sample = %d, want 2 (oldest dropped)", got)
	}
	if got := (<-ch).Samples[0]; got != 3 {
		t.Errorf("second buffered sample = %d, want 3", got)
	}
	if tee.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", tee.Dropped())
	}
}

func TestTee_CloseClosesSubscribers(t *testing.T) {
	t.Parallel()

	tee := NewTee(1)
	ch := tee.Subscribe()
	tee.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected subscriber channel to be closed")
	}

	// Publish after close must not panic.
	tee.Publish(frame(1))

	// Subscribe after close yields an already-closed channel.
	late := tee.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("expected late subscriber channel to be closed")
	}
}

func TestPeakOf(t *testing.T) {
	t.Parallel()

	if got := PeakOf([]int16{0, 100, -32767}); got != 1.0 {
		t.Errorf("PeakOf full-scale negative = %v, want 1.0", got)
	}
	if got := PeakOf(nil); got != 0 {
		t.Errorf("PeakOf(nil) = %v, want 0", got)
	}
	if got := PeakOf([]int16{-32768}); got != 1.0 {
		t.Errorf("PeakOf(min int16) = %v, want 1.0", got)
	}
}
