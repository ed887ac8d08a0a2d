package reporting

import (
	"context"
	"errors"

	"edutalks/internal/calls"
	"edutalks/internal/journal"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Source is the read side of the journal.
type Source interface {
	List(ctx context.Context, q journal.Query) ([]journal.Event, error)
}

type Service struct {
	src Source
}

func NewService(src Source) *Service { return &Service{src: src} }

func (s *Service) CallsSummary(ctx context.Context, r TimeRange) (CallsSummary, error) {
	if r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.src == nil {
		return CallsSummary{}, errors.New("reporting: source not configured")
	}

	rows, err := s.src.List(ctx, journal.Query{From: r.From, To: r.To})
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: r, EndReasons: map[string]int{}}
	talked := 0
	stars := 0
	for _, e := range rows {
		switch e.Kind {
		case calls.EventInitiated:
			out.Attempts++
		case calls.EventInitiationFailed:
			out.Attempts++
			out.FailedInitiations++
		case calls.EventConnected:
			out.Connected++
		case calls.EventTimedOut:
			out.TimedOut++
		case calls.EventEnded:
			out.Ended++
			if e.Reason != "" {
				out.EndReasons[e.Reason]++
			}
			if e.DurationSeconds > 0 {
				out.TotalTalkSeconds += e.DurationSeconds
				talked++
			}
		case calls.EventRated:
			out.Rated++
			stars += e.Stars
		case calls.EventRatingFailed:
			out.RatingsFailed++
		case calls.EventBlocked:
			out.Blocked++
		case calls.EventReset:
			// not counted
		}
	}
	if talked > 0 {
		out.AverageTalkSeconds = out.TotalTalkSeconds / talked
	}
	if out.Rated > 0 {
		out.AverageStars = float64(stars) / float64(out.Rated)
	}
	if out.Attempts > 0 {
		out.ConnectionRate = float64(out.Connected) / float64(out.Attempts)
	}
	return out, nil
}
