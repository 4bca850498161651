package model

import "time"

// Escalation level target types.
const (
	TargetUser       = "user"
	TargetSchedule   = "schedule"
	TargetEntireTeam = "entire_team"
)

// EscalationPolicy is an ordered ladder of responder targets with
// per-level timeouts, repeated RepeatCount times before exhaustion.
type EscalationPolicy struct {
	ID          string            `json:"id" db:"id"`
	TeamID      string            `json:"team_id" db:"team_id"`
	Name        string            `json:"name" db:"name"`
	RepeatCount int               `json:"repeat_count" db:"repeat_count"`
	IsActive    bool              `json:"is_active" db:"is_active"`
	Levels      []EscalationLevel `json:"levels"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

type EscalationLevel struct {
	ID             string  `json:"id" db:"id"`
	PolicyID       string  `json:"policy_id" db:"policy_id"`
	LevelNumber    int     `json:"level_number" db:"level_number"`
	TargetType     string  `json:"target_type" db:"target_type"`
	TargetID       *string `json:"target_id,omitempty" db:"target_id"`
	TimeoutMinutes int     `json:"timeout_minutes" db:"timeout_minutes"`
}

// Level returns the level with the given number, or nil.
func (p *EscalationPolicy) Level(n int) *EscalationLevel {
	for i := range p.Levels {
		if p.Levels[i].LevelNumber == n {
			return &p.Levels[i]
		}
	}
	return nil
}

// MaxLevel returns the highest level number, 0 for an empty policy.
func (p *EscalationPolicy) MaxLevel() int {
	max := 0
	for _, l := range p.Levels {
		if l.LevelNumber > max {
			max = l.LevelNumber
		}
	}
	return max
}
