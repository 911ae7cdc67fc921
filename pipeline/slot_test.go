package pipeline

import (
	"testing"
	"time"
)

func TestSlotOfferDropsWhenFull(t *testing.T) {
	s := NewSlot[int]()
	if !s.Offer(1) {
		t.Fatal("offer into an empty slot should succeed")
	}
	for i := 2; i <= 5; i++ {
		if s.Offer(i) {
			t.Fatalf("offer %d into a full slot should drop", i)
		}
	}
	if got := s.Drops(); got != 4 {
		t.Fatalf("drop count %d, want 4", got)
	}
	v, ok := s.Poll()
	if !ok || v != 1 {
		t.Fatalf("poll got (%v, %v), want (1, true)", v, ok)
	}
	if _, ok := s.Poll(); ok {
		t.Fatal("second poll should find the slot empty")
	}
}

func TestSlotReplaceKeepsLatest(t *testing.T) {
	s := NewSlot[int]()
	for i := 1; i <= 3; i++ {
		if !s.Replace(i) {
			t.Fatalf("replace %d failed on an open slot", i)
		}
	}
	v, ok := s.Poll()
	if !ok || v != 3 {
		t.Fatalf("poll got (%v, %v), want the latest item 3", v, ok)
	}
	if got := s.Drops(); got != 2 {
		t.Fatalf("drop count %d, want 2", got)
	}
}

func TestSlotTakeBlocksUntilOffer(t *testing.T) {
	s := NewSlot[string]()
	done := make(chan string, 1)
	go func() {
		v, ok := s.Take()
		if !ok {
			done <- ""
			return
		}
		done <- v
	}()

	// Give the consumer a moment to block before handing over the item.
	time.Sleep(10 * time.Millisecond)
	s.Offer("frame")

	select {
	case v := <-done:
		if v != "frame" {
			t.Fatalf("take got %q, want \"frame\"", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("take never woke up")
	}
}

func TestSlotCloseWakesTake(t *testing.T) {
	s := NewSlot[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok := s.Take()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("take on a closed empty slot should report closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close did not wake the blocked take")
	}

	if s.Offer(1) {
		t.Fatal("offer after close should be rejected")
	}
	if s.Replace(1) {
		t.Fatal("replace after close should be rejected")
	}
}

func TestSlotCloseDrainsPendingItem(t *testing.T) {
	s := NewSlot[int]()
	s.Offer(7)
	s.Close()
	v, ok := s.Take()
	if !ok || v != 7 {
		t.Fatalf("take got (%v, %v), want the pending item 7", v, ok)
	}
	if _, ok := s.Take(); ok {
		t.Fatal("drained closed slot should report closed")
	}
}
