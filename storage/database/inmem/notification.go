package inmemdb

import (
	"context"
	"sort"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, schema core.Schema, n notification.Notification) (notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return notification.Notification{}, err
	}
	n.ID = repo.db.nextPK()
	tbls.notifications[n.ID] = &n
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, schema core.Schema, filter *notification.QueryFilter, ordering ...core.DBOrdering) ([]notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return nil, err
	}

	notifications := make([]notification.Notification, 0)
	for _, n := range tbls.notifications {
		if filter != nil {
			if filter.RecipientID != 0 && n.RecipientID != filter.RecipientID {
				continue
			}
			if filter.Unread != nil && n.Unread != *filter.Unread {
				continue
			}
		}
		notifications = append(notifications, *n)
	}

	sort.SliceStable(notifications, func(i, j int) bool {
		return less(ordering, func(field string) int {
			if field == "created_at" {
				return compareTime(notifications[i].CreatedAt, notifications[j].CreatedAt)
			}
			return compareInt(notifications[i].ID, notifications[j].ID)
		})
	})
	return notifications, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, schema core.Schema, recipientID int64, ids ...int64) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return 0, err
	}

	var only map[int64]bool
	if len(ids) > 0 {
		only = make(map[int64]bool, len(ids))
		for _, id := range ids {
			only[id] = true
		}
	}

	var cnt int
	for _, n := range tbls.notifications {
		if n.RecipientID != recipientID || !n.Unread || (only != nil && !only[n.ID]) {
			continue
		}
		n.Unread = false
		cnt++
	}
	return cnt, nil
}
