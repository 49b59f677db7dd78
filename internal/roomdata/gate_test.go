package roomdata

import (
	"testing"
	"time"
)

func TestIntentGateSafetyTimeout(t *testing.T) {
	var g IntentGate
	now := time.Now()
	g.Lock(now)

	if blocked := g.Check(now.Add(5*time.Second), 30*time.Second); !blocked {
		t.Fatal("gate should still be blocked before the safety timeout")
	}
	if blocked := g.Check(now.Add(31*time.Second), 30*time.Second); blocked {
		t.Fatal("gate should self-unlock after the safety timeout")
	}
}

func TestIntentGateUnlock(t *testing.T) {
	var g IntentGate
	now := time.Now()
	g.Lock(now)
	g.Unlock()
	if blocked := g.Check(now, 30*time.Second); blocked {
		t.Fatal("explicit Unlock should clear the lock immediately")
	}
}

func TestReplyWakeFlagOneShot(t *testing.T) {
	var f ReplyWakeFlag
	f.Set()
	if !f.ConsumeIfSet() {
		t.Fatal("expected flag to be set")
	}
	if f.ConsumeIfSet() {
		t.Fatal("flag must be one-shot: second consume should see it cleared")
	}
}

func TestProcessorBusyMutualExclusion(t *testing.T) {
	p := NewProcessorBusy()
	releaseIntent, ok := p.TryAcquire(OwnerIntent)
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if _, ok := p.TryAcquire(OwnerReply); ok {
		t.Fatal("P5 violated: Reply must not acquire while Intent holds the slot")
	}
	releaseIntent()
	if _, ok := p.TryAcquire(OwnerReply); !ok {
		t.Fatal("expected Reply to acquire after Intent released")
	}
}

func TestIntentHistoryRingCap(t *testing.T) {
	s := NewIntentState()
	for i := 0; i < 15; i++ {
		s.Push(IntentEntry{Willingness: i})
	}
	hist := s.History()
	if len(hist) != 10 {
		t.Fatalf("ring buffer should cap at 10 entries, got %d", len(hist))
	}
	if hist[len(hist)-1].Willingness != 14 {
		t.Fatalf("expected most recent entry preserved, got willingness %d", hist[len(hist)-1].Willingness)
	}
}

func TestIntentSleepWakesOnActivity(t *testing.T) {
	s := NewIntentState()
	s.SetSleeping(true)

	done := make(chan bool, 1)
	go func() {
		done <- s.Sleep(2 * time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	s.MarkActivity(time.Now())

	select {
	case woken := <-done:
		if !woken {
			t.Fatal("expected Sleep to report early wake")
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep did not wake within timeout after MarkActivity")
	}
}
