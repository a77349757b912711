package call

import (
	"context"
	"testing"
	"time"
)

func TestChannel_SendAndWait(t *testing.T) {
	ch := NewChannel(10)
	ch.Send(SignalInterrupt, map[string]any{"reason": "user_spoke"})

	msg, ok := ch.Wait(context.Background(), time.Second)
	if !ok {
		t.Fatal("expected a signal")
	}
	if msg.Signal != SignalInterrupt {
		t.Fatalf("signal = %q, want interrupt", msg.Signal)
	}
	if msg.Metadata["reason"] != "user_spoke" {
		t.Fatalf("metadata reason = %v, want user_spoke", msg.Metadata["reason"])
	}
}

func TestChannel_WaitTimeout(t *testing.T) {
	ch := NewChannel(10)

	start := time.Now()
	_, ok := ch.Wait(context.Background(), 50*time.Millisecond)
	if ok {
		t.Fatal("expected timeout, got signal")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("returned after %v, want ~50ms", elapsed)
	}
}

func TestChannel_FullQueueDropsSignal(t *testing.T) {
	ch := NewChannel(2)
	ch.Send(SignalCancel, nil)
	ch.Send(SignalCancel, nil)
	ch.Send(SignalCancel, nil) // dropped

	if got := ch.PendingCount(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
}

func TestChannel_SendAfterCloseIsDropped(t *testing.T) {
	ch := NewChannel(10)
	ch.Close()

	ch.Send(SignalEmergencyStop, nil)
	if got := ch.PendingCount(); got != 0 {
		t.Fatalf("pending after closed send = %d, want 0", got)
	}
	if ch.IsActive() {
		t.Fatal("channel still active after Close")
	}
	if _, ok := ch.Wait(context.Background(), 10*time.Millisecond); ok {
		t.Fatal("Wait on closed channel returned a signal")
	}
}

func TestChannel_Clear(t *testing.T) {
	ch := NewChannel(10)
	ch.Send(SignalCancel, nil)
	ch.Send(SignalPause, nil)

	if got := ch.Clear(); got != 2 {
		t.Fatalf("cleared = %d, want 2", got)
	}
	if got := ch.PendingCount(); got != 0 {
		t.Fatalf("pending after clear = %d, want 0", got)
	}
}

func TestChannel_ConvenienceSenders(t *testing.T) {
	ch := NewChannel(10)
	SendInterrupt(ch, "user_spoke", "hello")
	SendCancel(ch, "barge_in")
	SendEmergencyStop(ch, "idle_timeout")

	want := []Signal{SignalInterrupt, SignalCancel, SignalEmergencyStop}
	for i, w := range want {
		msg, ok := ch.Wait(context.Background(), time.Second)
		if !ok {
			t.Fatalf("signal %d missing", i)
		}
		if msg.Signal != w {
			t.Fatalf("signal %d = %q, want %q", i, msg.Signal, w)
		}
	}
}

func TestChannel_DefaultCapacity(t *testing.T) {
	ch := NewChannel(0)
	for range 150 {
		ch.Send(SignalPause, nil)
	}
	if got := ch.PendingCount(); got != 100 {
		t.Fatalf("pending = %d, want capacity limit 100", got)
	}
}
