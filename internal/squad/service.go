// Package squad manages squads, their members and the run sessions they
// start together.
package squad

import (
	"context"
	"errors"
	"fmt"

	"backend-squadrun/internal/db"
	"backend-squadrun/internal/logging"
	"backend-squadrun/internal/route"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

var (
	ErrSquadNotFound   = errors.New("squad not found")
	ErrSessionNotFound = errors.New("run session not found or already ended")
)

// SessionEnder is told when a run session ends so every participant still
// bound to it can be released.
type SessionEnder interface {
	EndSession(ctx context.Context, sessionID string) ([]route.UserRoute, error)
}

type Service struct {
	db    db.Querier
	ender SessionEnder
	log   logrus.FieldLogger
}

func NewService(db db.Querier, ender SessionEnder, log logrus.FieldLogger) *Service {
	return &Service{db: db, ender: ender, log: logging.Component(log, "squad")}
}

func (s *Service) CreateSquad(ctx context.Context, input Squad) (Squad, error) {
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO squads (id, name, created_by)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, input.ID, input.Name, input.CreatedBy)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Squad{}, fmt.Errorf("create squad: %w", err)
	}
	return input, nil
}

func (s *Service) GetSquad(ctx context.Context, id string) (Squad, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, created_by, created_at
		FROM squads WHERE id=$1
	`, id)
	var sq Squad
	if err := row.Scan(&sq.ID, &sq.Name, &sq.CreatedBy, &sq.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Squad{}, ErrSquadNotFound
		}
		return Squad{}, fmt.Errorf("get squad: %w", err)
	}
	return sq, nil
}

func (s *Service) AddMember(ctx context.Context, squadID, userID, role string) (Member, error) {
	if role == "" {
		role = "member"
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO squad_members (squad_id, user_id, role)
		VALUES ($1,$2,$3)
		ON CONFLICT (squad_id, user_id) DO UPDATE SET role=EXCLUDED.role
		RETURNING joined_at
	`, squadID, userID, role)
	member := Member{SquadID: squadID, UserID: userID, Role: role}
	if err := row.Scan(&member.JoinedAt); err != nil {
		return Member{}, fmt.Errorf("add member: %w", err)
	}
	return member, nil
}

func (s *Service) Members(ctx context.Context, squadID string) ([]Member, error) {
	rows, err := s.db.Query(ctx, `
		SELECT squad_id, user_id, role, joined_at
		FROM squad_members WHERE squad_id=$1
		ORDER BY joined_at
	`, squadID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.SquadID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Service) StartSession(ctx context.Context, squadID, startedBy string) (RunSession, error) {
	if _, err := s.GetSquad(ctx, squadID); err != nil {
		return RunSession{}, err
	}

	rs := RunSession{ID: uuid.NewString(), SquadID: squadID, StartedBy: startedBy}
	row := s.db.QueryRow(ctx, `
		INSERT INTO run_sessions (id, squad_id, started_by)
		VALUES ($1,$2,$3)
		RETURNING started_at
	`, rs.ID, rs.SquadID, rs.StartedBy)
	if err := row.Scan(&rs.StartedAt); err != nil {
		return RunSession{}, fmt.Errorf("start session: %w", err)
	}

	s.log.WithFields(logrus.Fields{"session_id": rs.ID, "squad_id": squadID}).Info("run session started")
	return rs, nil
}

// EndSession closes the run session and releases every participant still
// bound to it. The session stays ended even if some routes could not be
// finalized; those failures are returned in the result.
func (s *Service) EndSession(ctx context.Context, sessionID string) (EndResult, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE run_sessions SET ended_at = now()
		WHERE id=$1 AND ended_at IS NULL
		RETURNING id, squad_id, started_by, started_at, ended_at
	`, sessionID)
	var rs RunSession
	if err := row.Scan(&rs.ID, &rs.SquadID, &rs.StartedBy, &rs.StartedAt, &rs.EndedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EndResult{}, ErrSessionNotFound
		}
		return EndResult{}, fmt.Errorf("end session: %w", err)
	}

	res := EndResult{Session: rs, Routes: []route.UserRoute{}}
	if s.ender == nil {
		return res, nil
	}
	routes, err := s.ender.EndSession(ctx, sessionID)
	if routes != nil {
		res.Routes = routes
	}
	if err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("some routes are still pending")
		res.Error = err.Error()
	}
	return res, nil
}
