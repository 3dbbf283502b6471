// Package crafting runs timed craft jobs at crafter stations. Inputs are
// consumed when a job starts; outputs are produced when its timer elapses;
// a cancelled job refunds exactly what it consumed.
package crafting

import (
	"time"

	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/pkg/models"
)

// JobID uniquely identifies a craft job.
type JobID string

// MaxQuantity bounds how many crafts one job may batch.
const MaxQuantity = 99

// JobState represents the current state of a craft job.
type JobState int

const (
	JobIdle JobState = iota
	// JobInProgress indicates inputs are consumed and the timer is running.
	JobInProgress
	JobCompleted
	JobCancelled
)

// String returns a human-readable representation of the job state.
func (s JobState) String() string {
	switch s {
	case JobIdle:
		return "Idle"
	case JobInProgress:
		return "InProgress"
	case JobCompleted:
		return "Completed"
	case JobCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Job is one craft at one station for one participant.
type Job struct {
	ID        JobID                `json:"id"`
	Recipe    catalog.RecipeID     `json:"recipe"`
	Station   models.StationID     `json:"station"`
	Owner     models.ParticipantID `json:"owner"`
	Agent     models.AgentID       `json:"agent"`
	Quantity  int                  `json:"quantity"`
	State     JobState             `json:"state"`
	StartTime time.Time            `json:"startTime"`
	Duration  time.Duration        `json:"duration"`
	EndTime   time.Time            `json:"endTime"`
	// Consumed is exactly what was extracted at start; Cancel refunds it.
	Consumed  []inventory.ItemStack `json:"consumed"`
	Outputs   []catalog.Yield       `json:"outputs"`
	Modifiers Modifiers             `json:"modifiers"`
	// Blocked is set while the outputs do not fit the agent's inventory.
	Blocked bool `json:"blocked"`
}

// CalculateProgress returns the current progress (0.0 to 1.0) based on time elapsed.
func (j *Job) CalculateProgress(now time.Time) float64 {
	if j.State != JobInProgress {
		if j.State == JobCompleted {
			return 1.0
		}
		return 0.0
	}
	if now.Before(j.StartTime) {
		return 0.0
	}
	if !now.Before(j.EndTime) {
		return 1.0
	}
	total := j.EndTime.Sub(j.StartTime)
	if total <= 0 {
		return 1.0
	}
	return float64(now.Sub(j.StartTime)) / float64(total)
}

// View is the observer-facing state of a job, enough to resume the visual
// after a reconnect.
type View struct {
	Job       JobID                `json:"job"`
	Recipe    catalog.RecipeID     `json:"recipe"`
	Station   models.StationID     `json:"station"`
	Owner     models.ParticipantID `json:"owner"`
	Agent     models.AgentID       `json:"agent"`
	State     string               `json:"state"`
	StartTime time.Time            `json:"startTime"`
	Duration  time.Duration        `json:"duration"`
	Quantity  int                  `json:"quantity"`
	Progress  float64              `json:"progress"`
	Blocked   bool                 `json:"blocked,omitempty"`
}

// View returns the observer view of j at now.
func (j *Job) View(now time.Time) View {
	return View{
		Job:       j.ID,
		Recipe:    j.Recipe,
		Station:   j.Station,
		Owner:     j.Owner,
		Agent:     j.Agent,
		State:     j.State.String(),
		StartTime: j.StartTime,
		Duration:  j.Duration,
		Quantity:  j.Quantity,
		Progress:  j.CalculateProgress(now),
		Blocked:   j.Blocked,
	}
}

// Inventories gives the manager exclusive access to an agent's store when a
// job completes outside of any request.
type Inventories interface {
	WithInventory(agent models.AgentID, fn func(*inventory.Store) error) error
}
