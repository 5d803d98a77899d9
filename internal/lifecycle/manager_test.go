package lifecycle

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"pricebot/internal/storage"
)

func TestWaitWithoutPaceReturnsImmediately(t *testing.T) {
	t.Parallel()
	reg, m := newTestRegistry(t, storage.NewMemory())
	if _, err := reg.CreateService(context.Background(), "self-paced", SuspensionConfig{}, nil); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		if err := m.Wait(ctx, "self-paced"); err != nil {
			t.Fatalf("Wait #%d: %v", i, err)
		}
	}
}

func TestWaitUnknownService(t *testing.T) {
	t.Parallel()
	_, m := newTestRegistry(t, storage.NewMemory())
	if err := m.Wait(context.Background(), "nope"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("Wait err = %v, want ErrServiceNotFound", err)
	}
}

func TestWaitSleepsThenRuns(t *testing.T) {
	t.Parallel()
	reg, m := newTestRegistry(t, storage.NewMemory())
	svc, err := reg.CreateService(context.Background(), "price-check", SuspensionConfig{Pace: Every(150 * time.Millisecond)}, nil)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	done := goWait(context.Background(), m, "price-check")
	waitFor(t, time.Second, func() bool { return svc.State() == Sleeping })

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the sleep elapsed")
	}
	if el := time.Since(start); el < 140*time.Millisecond {
		t.Fatalf("Wait returned after %v, before the sleep elapsed", el)
	}
	if got := svc.State(); got != Running {
		t.Fatalf("state after wake = %s, want running", got)
	}
}

func TestDisableMidSleepPausesPromptly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, m := newTestRegistry(t, storage.NewMemory())
	svc, err := reg.CreateService(ctx, "price-check", SuspensionConfig{Pace: Every(time.Hour)}, nil)
	if err != nil {
		t.Fatal(err)
	}

	done := goWait(ctx, m, "price-check")
	waitFor(t, time.Second, func() bool { return svc.State() == Sleeping })

	disabledAt := time.Now()
	if !svc.SetEnabled(ctx, false) {
		t.Fatal("SetEnabled(false) reported no change")
	}
	waitFor(t, 500*time.Millisecond, func() bool { return svc.State() == Paused })
	if el := time.Since(disabledAt); el > 250*time.Millisecond {
		t.Fatalf("reached paused after %v", el)
	}

	select {
	case err := <-done:
		t.Fatalf("Wait returned while paused: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	// Resume goes straight to Running without sleeping the remaining hour.
	svc.SetEnabled(ctx, true)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after resume")
	}
}

func TestSetEnabledIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := &countingStore{Store: storage.NewMemory()}
	reg := NewServices(st, &recordingRunner{})
	svc, err := reg.CreateService(ctx, "x", SuspensionConfig{Paused: true}, nil)
	if err != nil {
		t.Fatal(err)
	}

	svc.mu.Lock()
	before := svc.susp.wake.wait()
	svc.mu.Unlock()

	if !svc.SetEnabled(ctx, true) {
		t.Fatal("first SetEnabled(true) reported no change")
	}
	svc.mu.Lock()
	after := svc.susp.wake.wait()
	svc.mu.Unlock()

	if svc.SetEnabled(ctx, true) {
		t.Fatal("second SetEnabled(true) reported a change")
	}
	select {
	case <-before:
	default:
		t.Fatal("first toggle did not fire the wake signal")
	}
	select {
	case <-after:
		t.Fatal("second toggle fired the wake signal again")
	default:
	}
	if got := st.updates.Load(); got != 1 {
		t.Fatalf("store updates = %d, want 1", got)
	}
}

func TestSetEnabledKeepsStateWhenPersistFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := &countingStore{Store: storage.NewMemory(), failUpdate: true}
	reg := NewServices(st, &recordingRunner{})
	svc, err := reg.CreateService(ctx, "x", SuspensionConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	svc.SetEnabled(ctx, false)
	if svc.Enabled() {
		t.Fatal("in-memory toggle was rolled back")
	}
	rec, err := st.FindByName(ctx, "x")
	if err != nil || !rec.Enabled {
		t.Fatalf("durable record = %+v, %v; want still enabled", rec, err)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()
	reg, m := newTestRegistry(t, storage.NewMemory())
	svc, err := reg.CreateService(context.Background(), "x", SuspensionConfig{Pace: Every(time.Hour)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := goWait(ctx, m, "x")
	waitFor(t, time.Second, func() bool { return svc.State() == Sleeping })
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Wait err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait ignored cancellation")
	}
	svc.mu.Lock()
	pending := svc.susp.timer
	svc.mu.Unlock()
	if pending != nil {
		t.Fatal("sleep timer left armed after cancellation")
	}
}

// Toggles racing the start of a wait must never leave the waiter stuck.
func TestNoMissedWakeup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, m := newTestRegistry(t, storage.NewMemory())
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	const rounds = 200
	for i := 0; i < rounds; i++ {
		svc, err := reg.CreateService(ctx, "w"+strconv.Itoa(i), SuspensionConfig{Paused: true, Pace: Every(time.Hour)}, nil)
		if err != nil {
			t.Fatal(err)
		}
		delay := time.Duration(rng.Intn(200)) * time.Microsecond
		flips := rng.Intn(3) // extra disable/enable pairs before the final enable

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(delay)
			for j := 0; j < flips; j++ {
				svc.SetEnabled(ctx, true)
				svc.SetEnabled(ctx, false)
			}
			svc.SetEnabled(ctx, true)
		}()

		select {
		case err := <-goWait(ctx, m, svc.Name()):
			if err != nil {
				t.Fatalf("round %d: Wait: %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: waiter hung (delay=%v flips=%d state=%s)", i, delay, flips, svc.State())
		}
		wg.Wait()
	}
}
