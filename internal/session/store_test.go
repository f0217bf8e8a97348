package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/akulikov/regdesk/internal/domain"
)

func TestGetOrCreateInitializesIdle(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	sess := s.GetOrCreate("sess-1")
	if sess.State != domain.StateIdle {
		t.Errorf("state = %q, want idle", sess.State)
	}
	if sess.ID != "sess-1" {
		t.Errorf("id = %q", sess.ID)
	}

	again := s.GetOrCreate("sess-1")
	if again != sess {
		t.Error("expected the same session on repeat get")
	}
}

func TestClearIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	s.GetOrCreate("sess-1")
	s.Clear("sess-1")
	s.Clear("sess-1")
	s.Clear("never-existed")

	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
	if s.Get("sess-1") != nil {
		t.Error("cleared session should be gone")
	}
}

func TestAcquireTurnRejectsConcurrentTurn(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	_, release, err := s.AcquireTurn("sess-1")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, _, err := s.AcquireTurn("sess-1"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy while turn in flight, got %v", err)
	}

	// A different session is unaffected.
	if _, release2, err := s.AcquireTurn("sess-2"); err != nil {
		t.Errorf("other session blocked: %v", err)
	} else {
		release2()
	}

	release()
	if _, release3, err := s.AcquireTurn("sess-1"); err != nil {
		t.Errorf("acquire after release failed: %v", err)
	} else {
		release3()
	}
}

func TestSessionsDoNotObserveEachOther(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	var wg sync.WaitGroup
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sess, release, err := s.AcquireTurn(id)
			if err != nil {
				t.Errorf("acquire %s: %v", id, err)
				return
			}
			defer release()
			sess.SetField(domain.FieldFullName, "name-"+id)
			sess.Touch()
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		sess := s.Get(id)
		if sess == nil {
			t.Fatalf("session %s missing", id)
		}
		if v, _ := sess.Field(domain.FieldFullName); v != "name-"+id {
			t.Errorf("session %s saw %q", id, v)
		}
	}
}

func TestSweepExpired(t *testing.T) {
	t.Parallel()

	s := NewStore(time.Minute)
	stale := s.GetOrCreate("stale")
	stale.UpdatedAt = time.Now().Add(-2 * time.Minute)
	fresh := s.GetOrCreate("fresh")
	fresh.UpdatedAt = time.Now()

	if removed := s.SweepExpired(time.Now()); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if s.Get("stale") != nil {
		t.Error("stale session should be swept")
	}
	if s.Get("fresh") == nil {
		t.Error("fresh session should remain")
	}
}

func TestSweepDoesNotRaceWithTurnActivity(t *testing.T) {
	t.Parallel()

	s := NewStore(time.Minute)
	sess, release, err := s.AcquireTurn("active")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// A turn in flight updates the activity timestamp under the turn
	// lock; sweeps running concurrently must synchronize on that same
	// lock before reading it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			sess.Touch()
		}
		release()
	}()

	for i := 0; i < 1000; i++ {
		s.SweepExpired(time.Now())
	}
	<-done

	if s.Get("active") == nil {
		t.Error("recently touched session must survive sweeping")
	}
}

func TestPutReplacesSessionState(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	old := s.GetOrCreate("sess-1")
	old.SetField(domain.FieldFullName, "stale")

	fresh := domain.NewSession("sess-1")
	s.Put("sess-1", fresh)

	got := s.Get("sess-1")
	if got != fresh {
		t.Fatal("Put must replace the stored session")
	}
	if v, ok := got.Field(domain.FieldFullName); ok {
		t.Errorf("replaced session still carries %q", v)
	}

	// Put under an id never seen before stores the session directly.
	other := domain.NewSession("sess-2")
	s.Put("sess-2", other)
	if s.Get("sess-2") != other {
		t.Error("Put must store a session under a new id")
	}
}

func TestSweepSkipsSessionsMidTurn(t *testing.T) {
	t.Parallel()

	s := NewStore(time.Minute)
	sess, release, err := s.AcquireTurn("busy")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	sess.UpdatedAt = time.Now().Add(-2 * time.Minute)

	if removed := s.SweepExpired(time.Now()); removed != 0 {
		t.Errorf("removed = %d, want 0 while mid-turn", removed)
	}
	release()
	if removed := s.SweepExpired(time.Now()); removed != 1 {
		t.Errorf("removed = %d, want 1 after release", removed)
	}
}
