package sqlxrepos

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/submission"
)

type submissionRepository struct {
	exec core.DBExecutor
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(exec core.DBExecutor) *submissionRepository {
	return &submissionRepository{exec: exec}
}

func (repo submissionRepository) CreateSubmission(ctx context.Context, schema core.Schema, s submission.Submission) (submission.Submission, error) {
	tbl, err := table(schema, "quest_submission")
	if err != nil {
		return submission.Submission{}, err
	}
	q, args, err := psql.Insert(tbl).
		Columns("quest_name", "user_id", "is_completed", "is_approved", "time_completed").
		Values(s.QuestName, s.UserID, s.IsCompleted, s.IsApproved, s.TimeCompleted).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "building submission insert")
	}

	if err := sqlx.GetContext(ctx, repo.exec, &s.ID, q, args...); err != nil {
		return submission.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return s, nil
}

func (repo submissionRepository) QueryAwaitingApproval(ctx context.Context, schema core.Schema) ([]submission.Submission, error) {
	subTbl, err := table(schema, "quest_submission")
	if err != nil {
		return nil, err
	}
	userTbl, _ := table(schema, "user")

	q, args, err := psql.
		Select("s.id", "s.quest_name", "s.user_id", "u.username", "s.is_completed", "s.is_approved", "s.time_completed").
		From(subTbl+" s").
		Join(fmt.Sprintf("%s u ON u.id = s.user_id", userTbl)).
		Where("s.is_completed AND NOT s.is_approved").
		OrderBy("s.time_completed ASC", "s.id ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building submissions query")
	}

	subs := make([]submission.Submission, 0)
	if err := sqlx.SelectContext(ctx, repo.exec, &subs, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions awaiting approval")
	}
	return subs, nil
}
