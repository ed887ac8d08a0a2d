package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"edutalks/internal/calls"
	"edutalks/internal/journal"
)

func TestReporting_CallsSummaryAggregates(t *testing.T) {
	repo := journal.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	add := func(e journal.Event) {
		e.ID = string(e.Kind) + e.CallID
		e.Status = calls.StatusEnded
		e.CreatedAt = now
		repo.Append(context.Background(), e)
	}
	add(journal.Event{Kind: calls.EventInitiated, CallID: "c1"})
	add(journal.Event{Kind: calls.EventConnected, CallID: "c1"})
	add(journal.Event{Kind: calls.EventEnded, CallID: "c1", DurationSeconds: 60, Reason: calls.EndReasonHangup})
	add(journal.Event{Kind: calls.EventRated, CallID: "c1", Stars: 4})
	add(journal.Event{Kind: calls.EventInitiated, CallID: "c2"})
	add(journal.Event{Kind: calls.EventTimedOut, CallID: "c2"})
	add(journal.Event{Kind: calls.EventInitiationFailed})
	add(journal.Event{Kind: calls.EventInitiated, CallID: "c3"})
	add(journal.Event{Kind: calls.EventConnected, CallID: "c3"})
	add(journal.Event{Kind: calls.EventEnded, CallID: "c3", DurationSeconds: 30, Reason: calls.EndReasonRemote})
	add(journal.Event{Kind: calls.EventRated, CallID: "c3", Stars: 5})

	out, err := NewService(repo).CallsSummary(context.Background(), TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Attempts != 4 || out.FailedInitiations != 1 || out.Connected != 2 || out.TimedOut != 1 || out.Ended != 2 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.TotalTalkSeconds != 90 || out.AverageTalkSeconds != 45 {
		t.Fatalf("unexpected talk time: %+v", out)
	}
	if out.AverageStars != 4.5 || out.ConnectionRate != 0.5 {
		t.Fatalf("unexpected averages: %+v", out)
	}
	if out.EndReasons[calls.EndReasonHangup] != 1 || out.EndReasons[calls.EndReasonRemote] != 1 {
		t.Fatalf("unexpected end reasons: %v", out.EndReasons)
	}
}

func TestReporting_RangeExcludesOutside(t *testing.T) {
	repo := journal.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Append(context.Background(), journal.Event{Kind: calls.EventInitiated, Status: calls.StatusRinging, CreatedAt: now.Add(-2 * time.Hour)})

	out, err := NewService(repo).CallsSummary(context.Background(), TimeRange{From: now.Add(-time.Hour), To: now})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Attempts != 0 {
		t.Fatalf("expected no attempts, got %d", out.Attempts)
	}
}

func TestReporting_InvalidRange(t *testing.T) {
	now := time.Now()
	_, err := NewService(journal.NewMemoryRepo()).CallsSummary(context.Background(), TimeRange{From: now, To: now})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
