package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/JetBrains/intellij-plugins-sub025/internal/errorutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/scope"
	"github.com/JetBrains/intellij-plugins-sub025/internal/stream"
	"github.com/JetBrains/intellij-plugins-sub025/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func perf(ts int64, d uint64, frames ...frame.Frame) sample.Event {
	return sample.NewPerformance(sample.Performance{Frames: frames, Timestamp: ts, Duration: d})
}

func create(ts int64, id uint64, class string, size int64) sample.Event {
	return sample.NewCreate(sample.CreateObject{Timestamp: ts, ID: id, ClassName: class, Size: size})
}

func del(ts int64, id uint64, size int64) sample.Event {
	return sample.NewDelete(sample.DeleteObject{Timestamp: ts, ID: id, Size: size})
}

func reference(ts int64, referrer, referent uint64) sample.Event {
	return sample.Event{Kind: sample.KindReference, Reference: &sample.Reference{Timestamp: ts, ReferrerID: referrer, ReferentID: referent}}
}

func newStore(t *testing.T) (*Store, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(zerolog.Nop(), WithRegisterer(reg)), reg
}

func ingest(t *testing.T, s *Store, events ...sample.Event) {
	t.Helper()
	for _, e := range events {
		if err := s.Ingest(e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestEmptyStore(t *testing.T) {
	s, _ := newStore(t)
	if s.State() != Idle {
		t.Fatalf("expected idle, got %v", s.State())
	}
	if s.TotalAllocatedBytes() != 0 || s.LivePerformanceSampleCount() != 0 {
		t.Fatal("expected zero totals")
	}
	ct, err := s.RebuildCallTree(context.Background(), scope.EntireProgram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct.Total() != 0 || len(ct.TopDown().Roots()) != 0 {
		t.Fatal("expected an empty call tree")
	}
	if snapshot := s.RebuildMemorySnapshot(0); len(snapshot.Classes) != 0 {
		t.Fatal("expected an empty memory snapshot")
	}
	if got := s.BackReferencesOf(1); len(got) != 0 {
		t.Fatal("expected no back references")
	}
	if got := s.FunctionMetrics(scope.EntireProgram, 10); len(got) != 0 {
		t.Fatal("expected no function metrics")
	}
}

func TestIngestMemoryEvents(t *testing.T) {
	tests := []struct {
		name      string
		events    []sample.Event
		wantBytes int64
		wantLive  int
	}{
		{
			name:      "delete uses the size recorded at creation",
			events:    []sample.Event{create(1, 1, "Foo", 100), del(2, 1, 999)},
			wantBytes: 0,
		},
		{
			name:      "delete of an unknown id is ignored",
			events:    []sample.Event{create(1, 1, "Foo", 100), del(2, 7, 50)},
			wantBytes: 100,
			wantLive:  1,
		},
		{
			name:      "reference from an unknown id is ignored",
			events:    []sample.Event{create(1, 1, "Foo", 100), reference(2, 9, 1)},
			wantBytes: 100,
			wantLive:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newStore(t)
			ingest(t, s, tt.events...)
			if got := s.TotalAllocatedBytes(); got != tt.wantBytes {
				t.Fatalf("expected %d bytes, got %d", tt.wantBytes, got)
			}
			if got := s.Stats().LiveObjects; got != tt.wantLive {
				t.Fatalf("expected %d live objects, got %d", tt.wantLive, got)
			}
			if s.State() != Accumulating {
				t.Fatalf("expected accumulating, got %v", s.State())
			}
		})
	}
}

func TestBackReferences(t *testing.T) {
	s, _ := newStore(t)
	ingest(t, s,
		create(1, 1, "Node", 8),
		create(2, 2, "Node", 8),
		create(3, 3, "Node", 8),
		reference(4, 2, 1),
		reference(5, 3, 1),
		reference(6, 1, 3),
	)

	var got []uint64
	for _, o := range s.BackReferencesOf(1) {
		got = append(got, o.ID)
	}
	if diff := testutil.Diff(got, []uint64{2, 3}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	got = got[:0]
	for _, r := range s.Retainers(3, 0) {
		got = append(got, r.Object.ID)
	}
	if diff := testutil.Diff(got, []uint64{1, 2}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestIngestRejectsMalformedEvents(t *testing.T) {
	s, reg := newStore(t)
	ingest(t, s, create(1, 1, "Foo", 100))

	malformed := []sample.Event{
		create(2, 2, "Foo", -5),
		create(2, 3, "", 5),
		perf(3, 10, "app::Main/main", ""),
		{Kind: sample.KindDelete},
		{},
	}
	for _, e := range malformed {
		if err := s.Ingest(e); !errors.Is(err, errorutil.ErrMalformedEvent) {
			t.Fatalf("expected a malformed event error, got %v", err)
		}
	}
	if s.TotalAllocatedBytes() != 100 || s.LivePerformanceSampleCount() != 0 {
		t.Fatal("expected the store to be unchanged")
	}
	if got := promtestutil.ToFloat64(s.metrics.rejected.WithLabelValues("create")); got != 2 {
		t.Fatalf("expected 2 rejected creates, got %v", got)
	}
	if n, err := promtestutil.GatherAndCount(reg, "profiler_store_rejected_events_total"); err != nil || n != 4 {
		t.Fatalf("expected 4 rejection series, got %d (%v)", n, err)
	}
}

func TestClearIsIndependent(t *testing.T) {
	s, _ := newStore(t)
	ingest(t, s,
		perf(1, 10, "app::Main/main"),
		create(2, 1, "Foo", 100),
	)
	session := s.SessionID()

	s.ClearPerformance()
	if s.LivePerformanceSampleCount() != 0 || s.TotalAllocatedBytes() != 100 {
		t.Fatal("clearing performance data must keep memory data")
	}
	if s.SessionID() == session {
		t.Fatal("expected a new session id")
	}

	ingest(t, s, perf(3, 5, "app::Main/main"))
	s.ClearMemory()
	if s.LivePerformanceSampleCount() != 1 || s.TotalAllocatedBytes() != 0 {
		t.Fatal("clearing memory data must keep performance data")
	}
}

func TestRebuildCallTree(t *testing.T) {
	s, _ := newStore(t)
	ingest(t, s,
		perf(1, 10, "A", "B", "C"),
		perf(2, 20, "A", "B", "D"),
	)

	ct, err := s.RebuildCallTree(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inclusive, self := ct.TimeMaps()
	if inclusive["A"] != 30 || inclusive["B"] != 30 || self["C"] != 10 || self["D"] != 20 {
		t.Fatalf("unexpected time maps: %v %v", inclusive, self)
	}
	if latest, ok := s.CallTree(); !ok || latest != ct {
		t.Fatal("expected the call tree to be published")
	}

	ingest(t, s, perf(3, 5, "A", "E"))
	if ct.Total() != 30 {
		t.Fatalf("a built tree must not see later samples, total %d", ct.Total())
	}

	s.ClearPerformance()
	if _, ok := s.CallTree(); ok {
		t.Fatal("expected the published call tree to be dropped")
	}
}

func TestRebuildCallTreeCanceled(t *testing.T) {
	s, _ := newStore(t)
	ingest(t, s, perf(1, 10, "A"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.RebuildCallTree(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFunctionMetrics(t *testing.T) {
	s, _ := newStore(t)
	ingest(t, s,
		perf(1, 10, "app::Main/main", "app::Server/serve"),
		perf(2, 30, "app::Main/main", "app::Server/serve"),
		perf(3, 5, "app::Main/main"),
	)
	got := s.FunctionMetrics(scope.EntireProgram, 1)
	if len(got) != 1 {
		t.Fatalf("expected 1 function, got %d", len(got))
	}
	if got[0].Name != "Server.serve" || got[0].Sum != 40 || got[0].Count != 2 || got[0].Worst != s.SessionID() {
		t.Fatalf("unexpected metrics: %+v", got[0])
	}
}

func TestConsume(t *testing.T) {
	tests := []struct {
		name    string
		end     func(c *stream.Chan)
		wantErr error
	}{
		{
			name: "normal completion",
			end:  func(c *stream.Chan) { c.Close() },
		},
		{
			name:    "transport failure",
			end:     func(c *stream.Chan) { c.Fail(errors.New("agent disconnected")) },
			wantErr: errorutil.ErrStreamFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newStore(t)
			src := stream.NewChan(8)
			ctx := context.Background()
			events := []sample.Event{
				perf(1, 10, "app::Main/main"),
				create(2, 1, "Foo", -1),
				create(3, 2, "Foo", 64),
				reference(4, 2, 2),
			}
			for _, e := range events {
				if err := src.Send(ctx, e); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
			tt.end(src)

			err := s.Consume(ctx, src)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if s.LivePerformanceSampleCount() != 1 || s.TotalAllocatedBytes() != 64 {
				t.Fatal("expected ingested data to stay queryable")
			}
		})
	}
}

func TestConsumeStopsOnCancel(t *testing.T) {
	s, _ := newStore(t)
	src := stream.NewChan(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Consume(ctx, src)
	}()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEventsRestore(t *testing.T) {
	s, _ := newStore(t)
	ingest(t, s,
		perf(1, 10, "A", "B"),
		create(2, 1, "Foo", 100),
		create(3, 2, "Bar", 50),
		reference(4, 2, 1),
		perf(5, 20, "A", "C"),
		del(6, 2, 50),
		create(7, 3, "Baz", 10),
		reference(8, 3, 1),
	)

	events := s.Events()
	restored, _ := newStore(t)
	if err := restored.Restore(events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := s.Stats()
	got := restored.Stats()
	want.SessionID, got.SessionID = "", ""
	want.ReferenceEdges = 1
	if diff := testutil.Diff(got, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if diff := testutil.Diff(restored.Events(), events); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestRestoreRejectsMalformedEvents(t *testing.T) {
	s, _ := newStore(t)
	ingest(t, s, perf(1, 10, "A"))
	err := s.Restore([]sample.Event{perf(1, 5, "B"), create(2, 1, "", 1)})
	if !errors.Is(err, errorutil.ErrMalformedEvent) {
		t.Fatalf("expected a malformed event error, got %v", err)
	}
	if s.LivePerformanceSampleCount() != 1 {
		t.Fatal("expected the store to be unchanged")
	}
}

func TestConcurrentIngestAndRebuild(t *testing.T) {
	s, _ := newStore(t)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = s.Ingest(perf(int64(i), 1, "A", "B"))
			_ = s.Ingest(create(int64(i), uint64(i), "Foo", 1))
			_ = s.Ingest(del(int64(i), uint64(i), 1))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			ct, err := s.RebuildCallTree(context.Background(), nil)
			if err == nil {
				inclusive, self := ct.TimeMaps()
				if self.Sum() != ct.Total() || inclusive["A"] != ct.Total() {
					t.Errorf("inconsistent tree: self %d, total %d", self.Sum(), ct.Total())
				}
			}
			if b := s.TotalAllocatedBytes(); b != 0 && b != 1 {
				t.Errorf("observed a half applied event: %d bytes", b)
			}
		}
	}()
	wg.Wait()
	if s.LivePerformanceSampleCount() != 500 || s.TotalAllocatedBytes() != 0 {
		t.Fatalf("unexpected final state: %+v", s.Stats())
	}
}
