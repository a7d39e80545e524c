package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/notification"
)

var notificationColumns = []string{
	"id", "recipient_id", "actor", "verb", "target_kind", "target_id", "target_label", "unread", "created_at",
}

// notificationRow is the flat table layout of a notification.
type notificationRow struct {
	ID          int64                   `db:"id"`
	RecipientID int64                   `db:"recipient_id"`
	Actor       string                  `db:"actor"`
	Verb        string                  `db:"verb"`
	TargetKind  notification.TargetKind `db:"target_kind"`
	TargetID    int64                   `db:"target_id"`
	TargetLabel string                  `db:"target_label"`
	Unread      bool                    `db:"unread"`
	CreatedAt   time.Time               `db:"created_at"`
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		Actor:       r.Actor,
		Verb:        r.Verb,
		Target:      notification.Target{Kind: r.TargetKind, ID: r.TargetID, Label: r.TargetLabel},
		Unread:      r.Unread,
		CreatedAt:   r.CreatedAt,
	}
}

type notificationRepository struct {
	exec core.DBExecutor
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(exec core.DBExecutor) *notificationRepository {
	return &notificationRepository{exec: exec}
}

func (repo notificationRepository) CreateNotification(ctx context.Context, schema core.Schema, n notification.Notification) (notification.Notification, error) {
	tbl, err := table(schema, "notification")
	if err != nil {
		return notification.Notification{}, err
	}
	q, args, err := psql.Insert(tbl).
		Columns(notificationColumns[1:]...).
		Values(n.RecipientID, n.Actor, n.Verb, n.Target.Kind, n.Target.ID, n.Target.Label, n.Unread, n.CreatedAt.UTC()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "building notification insert")
	}

	if err := sqlx.GetContext(ctx, repo.exec, &n.ID, q, args...); err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, schema core.Schema, filter *notification.QueryFilter, ordering ...core.DBOrdering) ([]notification.Notification, error) {
	tbl, err := table(schema, "notification")
	if err != nil {
		return nil, err
	}
	qb := psql.Select(notificationColumns...).From(tbl)
	if filter != nil {
		if filter.RecipientID != 0 {
			qb = qb.Where(sq.Eq{"recipient_id": filter.RecipientID})
		}
		if filter.Unread != nil {
			qb = qb.Where(sq.Eq{"unread": *filter.Unread})
		}
	}
	if len(ordering) > 0 {
		qb = qb.OrderBy(orderBy("", ordering)...)
	}

	q, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building notifications query")
	}
	var rows []notificationRow
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}

	notifications := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		notifications = append(notifications, r.notification())
	}
	return notifications, nil
}

func (repo notificationRepository) MarkRead(ctx context.Context, schema core.Schema, recipientID int64, ids ...int64) (int, error) {
	tbl, err := table(schema, "notification")
	if err != nil {
		return 0, err
	}
	qb := psql.Update(tbl).Set("unread", false).Where(sq.Eq{"recipient_id": recipientID, "unread": true})
	if len(ids) > 0 {
		qb = qb.Where(sq.Eq{"id": ids})
	}

	q, args, err := qb.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building mark read")
	}
	res, err := repo.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	return int(cnt), nil
}
