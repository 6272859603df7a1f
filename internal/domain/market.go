package domain

import "fmt"

// GameClock is the server-authoritative progress of the shared game.
// CurrentDay 0 means the game has not started yet.
type GameClock struct {
	CurrentDay       int  `json:"currentDay"`
	IsRunning        bool `json:"isGameStarted"`
	CountdownSeconds int  `json:"countdown"`
	TotalDays        int  `json:"totalDays"`
}

// Validate checks the clock invariants.
func (c GameClock) Validate() error {
	if c.CurrentDay < 0 {
		return fmt.Errorf("currentDay must be >= 0, got %d", c.CurrentDay)
	}
	if c.CountdownSeconds < 0 {
		return fmt.Errorf("countdown must be >= 0, got %d", c.CountdownSeconds)
	}
	if c.TotalDays <= 0 {
		return fmt.Errorf("totalDays must be > 0, got %d", c.TotalDays)
	}
	if c.CurrentDay > c.TotalDays {
		return fmt.Errorf("currentDay %d exceeds totalDays %d", c.CurrentDay, c.TotalDays)
	}
	return nil
}

// IsFinished reports whether the last day has been reached.
func (c GameClock) IsFinished() bool {
	return c.TotalDays > 0 && c.CurrentDay >= c.TotalDays
}
