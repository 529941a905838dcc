package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type view struct{ n int }

func TestSnapshotsStaleUntilRefreshed(t *testing.T) {
	s := NewSnapshots[view]()
	if s.Loaded() || s.Load() != nil || !s.UpdatedAt().IsZero() {
		t.Fatalf("fresh snapshots should be empty")
	}
	if _, err := s.Refresh(context.Background(), func(ctx context.Context, prev *view) (*view, error) {
		return &view{n: 1}, nil
	}); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	first := s.Load()

	got, err := s.Refresh(context.Background(), func(ctx context.Context, prev *view) (*view, error) {
		if prev != first {
			t.Fatalf("prev: want first snapshot")
		}
		return nil, errors.New("store down")
	})
	if err == nil || got != first || s.Load() != first {
		t.Fatalf("failed refresh should keep previous value")
	}
	if s.Version() != 1 {
		t.Fatalf("Version: want=1 got=%d", s.Version())
	}
}

func TestSnapshotsSingleWriter(t *testing.T) {
	s := NewSnapshots[view]()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Refresh(context.Background(), func(ctx context.Context, prev *view) (*view, error) {
				mu.Lock()
				active++
				maxSeen = max(maxSeen, active)
				mu.Unlock()
				next := &view{n: 1}
				if prev != nil {
					next.n = prev.n + 1
				}
				mu.Lock()
				active--
				mu.Unlock()
				return next, nil
			})
			_ = s.Load()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("concurrent writers: want=1 got=%d", maxSeen)
	}
	if s.Load().n != 8 || s.Version() != 8 {
		t.Fatalf("final: n=%d version=%d", s.Load().n, s.Version())
	}
}

func TestReportKeyAndEventDecode(t *testing.T) {
	if got := reportKey("wr", "a@x.com", "wrapped", 2024); got != "wr:report:a@x.com:wrapped:2024" {
		t.Fatalf("reportKey: got=%q", got)
	}
	ev, err := decodeEvent(`{"instance":"i1","reason":"ingest","documents":3}`)
	if err != nil || ev.Instance != "i1" || ev.Documents != 3 {
		t.Fatalf("decodeEvent: ev=%+v err=%v", ev, err)
	}
	if _, err := decodeEvent("nope"); err == nil {
		t.Fatalf("decodeEvent: want error on garbage")
	}
}
