package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummary aggregates the session journal over a time range.
type CallsSummary struct {
	Range TimeRange `json:"range"`

	Attempts          int `json:"attempts"`
	FailedInitiations int `json:"failed_initiations"`
	Connected         int `json:"connected"`
	TimedOut          int `json:"timed_out"`
	Ended             int `json:"ended"`
	Blocked           int `json:"blocked"`

	Rated         int     `json:"rated"`
	RatingsFailed int     `json:"ratings_failed"`
	AverageStars  float64 `json:"average_stars"`

	TotalTalkSeconds   int `json:"total_talk_seconds"`
	AverageTalkSeconds int `json:"average_talk_seconds"`

	// ConnectionRate is Connected / Attempts.
	ConnectionRate float64 `json:"connection_rate"`

	EndReasons map[string]int `json:"end_reasons"`
}
