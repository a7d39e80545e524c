package sqlxrepos

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/user"
)

var userColumns = []string{"id", "username", "email", "name", "is_staff", "is_active", "created_at"}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) CreateUser(ctx context.Context, schema core.Schema, usr user.User) (user.User, error) {
	userTbl, err := table(schema, "user")
	if err != nil {
		return user.User{}, err
	}
	profileTbl, _ := table(schema, "profile")

	// the profile is created along with the user, digest emails off
	q := fmt.Sprintf(`WITH u AS (
	INSERT INTO %s (username, email, name, is_staff, is_active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING %s
), p AS (
	INSERT INTO %s (user_id) SELECT id FROM u
)
SELECT %s FROM u`, userTbl, joinColumns("", userColumns...), profileTbl, joinColumns("", userColumns...))

	var created user.User
	if err := sqlx.GetContext(ctx, repo.exec, &created, q,
		usr.Username, usr.Email, usr.Name, usr.IsStaff, usr.IsActive, usr.CreatedAt.UTC()); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return created, nil
}

func (repo userRepository) getUser(ctx context.Context, schema core.Schema, pred sq.Sqlizer) (user.User, error) {
	tbl, err := table(schema, "user")
	if err != nil {
		return user.User{}, err
	}
	q, args, err := psql.Select(userColumns...).From(tbl).Where(pred).Limit(1).ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building user query")
	}

	var usr user.User
	if err := sqlx.GetContext(ctx, repo.exec, &usr, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, schema core.Schema, id int64) (user.User, error) {
	return repo.getUser(ctx, schema, sq.Eq{"id": id})
}

func (repo userRepository) GetUserByUsername(ctx context.Context, schema core.Schema, username string) (user.User, error) {
	return repo.getUser(ctx, schema, sq.Eq{"username": username})
}

func (repo userRepository) QueryUsers(ctx context.Context, schema core.Schema, filter *user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	userTbl, err := table(schema, "user")
	if err != nil {
		return nil, err
	}
	qb := psql.Select(columns("u.", userColumns...)...).From(userTbl + " u")

	if filter != nil {
		if len(filter.IDs) > 0 {
			qb = qb.Where(sq.Eq{"u.id": filter.IDs})
		}
		if filter.IsActive != nil {
			qb = qb.Where(sq.Eq{"u.is_active": *filter.IsActive})
		}
		if filter.IsStaff != nil {
			qb = qb.Where(sq.Eq{"u.is_staff": *filter.IsStaff})
		}
		if filter.GetNotificationsByEmail != nil {
			profileTbl, _ := table(schema, "profile")
			qb = qb.Join(profileTbl + " p ON p.user_id = u.id").
				Where(sq.Eq{"p.get_notifications_by_email": *filter.GetNotificationsByEmail})
		}
		if filter.HasUnreadNotifications {
			notifTbl, _ := table(schema, "notification")
			qb = qb.Where(fmt.Sprintf("EXISTS (SELECT 1 FROM %s n WHERE n.recipient_id = u.id AND n.unread)", notifTbl))
		}
	}
	if len(ordering) > 0 {
		qb = qb.OrderBy(orderBy("u.", ordering)...)
	}

	q, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}
	users := make([]user.User, 0)
	if err := sqlx.SelectContext(ctx, repo.exec, &users, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo userRepository) GetProfile(ctx context.Context, schema core.Schema, userID int64) (user.Profile, error) {
	tbl, err := table(schema, "profile")
	if err != nil {
		return user.Profile{}, err
	}
	q, args, err := psql.Select("user_id", "get_notifications_by_email").From(tbl).Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return user.Profile{}, errors.Wrap(err, "building profile query")
	}

	var p user.Profile
	if err := sqlx.GetContext(ctx, repo.exec, &p, q, args...); err != nil {
		return user.Profile{}, trapNoRowsErr(err, user.ErrNotFound, "finding profile")
	}
	return p, nil
}

func (repo userRepository) UpdateProfile(ctx context.Context, schema core.Schema, p user.Profile) (user.Profile, error) {
	tbl, err := table(schema, "profile")
	if err != nil {
		return user.Profile{}, err
	}
	q, args, err := psql.Update(tbl).
		Set("get_notifications_by_email", p.GetNotificationsByEmail).
		Where(sq.Eq{"user_id": p.UserID}).
		Suffix("RETURNING user_id, get_notifications_by_email").
		ToSql()
	if err != nil {
		return user.Profile{}, errors.Wrap(err, "building profile update")
	}

	var updated user.Profile
	if err := sqlx.GetContext(ctx, repo.exec, &updated, q, args...); err != nil {
		return user.Profile{}, trapNoRowsErr(err, user.ErrNotFound, "updating profile")
	}
	return updated, nil
}
