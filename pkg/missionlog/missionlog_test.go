package missionlog

import "testing"

type recordingSink struct {
	entries []Entry
}

func (r *recordingSink) Log(e Entry) { r.entries = append(r.entries, e) }

func TestLoggerRingBoundedFIFO(t *testing.T) {
	t.Parallel()

	logger := NewLogger(nil, 3)
	for i := 0; i < 5; i++ {
		logger.Log(Entry{GetSeconds: float64(i), Category: CategoryKernel, Message: "m"})
	}

	recent := logger.Recent()
	if len(recent) != 3 {
		t.Fatalf("len(Recent()) = %d, want 3", len(recent))
	}

	if recent[0].GetSeconds != 2 || recent[2].GetSeconds != 4 {
		t.Fatalf("unexpected FIFO trim: %+v", recent)
	}
}

func TestTransitionSinkDedupes(t *testing.T) {
	t.Parallel()

	rec := &recordingSink{}
	sink := NewTransitionSink(rec)

	sink.Log(Entry{Category: CategoryScheduler, Source: "E1", Message: "armed"})
	sink.Log(Entry{Category: CategoryScheduler, Source: "E1", Message: "armed"})
	sink.Log(Entry{Category: CategoryScheduler, Source: "E1", Message: "active"})

	if len(rec.entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(rec.entries))
	}
}
