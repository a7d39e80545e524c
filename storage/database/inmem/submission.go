package inmemdb

import (
	"context"
	"sort"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/submission"
)

type submissionRepository struct {
	db *DB
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *DB) *submissionRepository {
	return &submissionRepository{db: db}
}

func (repo *submissionRepository) CreateSubmission(_ context.Context, schema core.Schema, s submission.Submission) (submission.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return submission.Submission{}, err
	}
	s.ID = repo.db.nextPK()
	if usr, ok := tbls.users[s.UserID]; ok {
		s.Username = usr.Username
	}
	tbls.submissions[s.ID] = &s
	return s, nil
}

func (repo *submissionRepository) QueryAwaitingApproval(_ context.Context, schema core.Schema) ([]submission.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return nil, err
	}

	subs := make([]submission.Submission, 0)
	for _, s := range tbls.submissions {
		if s.AwaitingApproval() {
			subs = append(subs, *s)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		ti, tj := subs[i].TimeCompleted, subs[j].TimeCompleted
		if ti != nil && tj != nil && !ti.Equal(*tj) {
			return ti.Before(*tj)
		}
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}
