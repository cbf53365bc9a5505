// Package types contains the JSON read shapes served by the HTTP API.
package types

import "time"

// LapEntry is one row of the best-lap leaderboard.
type LapEntry struct {
	Rank       int       `json:"rank"`
	RaceID     string    `json:"race_id"`
	LapNumber  int       `json:"lap_number"`
	Seconds    float64   `json:"seconds"`
	Formatted  string    `json:"formatted"`
	RecordedAt time.Time `json:"recorded_at"`
}

// LapView is a lap of the current race.
type LapView struct {
	Number    int     `json:"number"`
	Seconds   float64 `json:"seconds"`
	Formatted string  `json:"formatted"`
	Best      bool    `json:"best"`
}

// RaceView is the race status as shown on the dashboard.
type RaceView struct {
	State             string    `json:"state"`
	CurrentLap        int       `json:"current_lap"`
	MaxLaps           int       `json:"max_laps"`
	Laps              []LapView `json:"laps"`
	Elapsed           string    `json:"elapsed,omitempty"`
	CurrentLapElapsed string    `json:"current_lap_elapsed,omitempty"`
	LastLap           string    `json:"last_lap,omitempty"`
	BestLap           string    `json:"best_lap,omitempty"`
	BestLapNumber     int       `json:"best_lap_number,omitempty"`
	TimerVisible      bool      `json:"timer_visible"`
}
