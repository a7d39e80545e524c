package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
)

var ErrNotFound = errors.New("submission not found")

// Submission is a student's submission of a quest.
// It awaits approval once completed, until a staff member approves it.
type Submission struct {
	ID            int64      `json:"id" db:"id"`
	QuestName     string     `json:"quest_name" db:"quest_name"`
	UserID        int64      `json:"user_id" db:"user_id"`
	Username      string     `json:"username" db:"username"`
	IsCompleted   bool       `json:"is_completed" db:"is_completed"`
	IsApproved    bool       `json:"is_approved" db:"is_approved"`
	TimeCompleted *time.Time `json:"time_completed" db:"time_completed"` // UTC
}

func (s Submission) AwaitingApproval() bool { return s.IsCompleted && !s.IsApproved }

func (s Submission) String() string {
	if s.Username == "" {
		return s.QuestName
	}
	return fmt.Sprintf("%s - %s", s.Username, s.QuestName)
}

func (s Submission) Path() string {
	return fmt.Sprintf("/quests/submission/%d/", s.ID)
}

type Repository interface {
	CreateSubmission(ctx context.Context, schema core.Schema, s Submission) (Submission, error)
	// QueryAwaitingApproval returns every completed, unapproved submission of the tenant,
	// oldest completion first.
	QueryAwaitingApproval(ctx context.Context, schema core.Schema) ([]Submission, error)
}
