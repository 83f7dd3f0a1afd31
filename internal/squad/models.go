package squad

import (
	"time"

	"backend-squadrun/internal/route"
)

type Squad struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	SquadID  string    `json:"squad_id"`
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// RunSession is one group run of a squad. EndedAt is nil while it runs.
type RunSession struct {
	ID        string     `json:"id"`
	SquadID   string     `json:"squad_id"`
	StartedBy string     `json:"started_by"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

type EndResult struct {
	Session RunSession        `json:"session"`
	Routes  []route.UserRoute `json:"routes"`
	Error   string            `json:"error,omitempty"`
}
