package sqlxrepos

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/notification"
	"github.com/bytedeck/deck/core/schedule"
	"github.com/bytedeck/deck/core/siteconfig"
	"github.com/bytedeck/deck/core/user"
)

const school core.Schema = "school"

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return sqlx.NewDb(db, "postgres"), mock
}

func TestTable(t *testing.T) {
	tbl, err := table(school, "user")
	require.NoError(t, err)
	assert.Equal(t, `"school"."user"`, tbl)

	_, err = table(`x"; DROP TABLE tenant; --`, "user")
	assert.True(t, errors.Is(err, ErrInvalidSchema))
}

func TestUserRepository_QueryUsers_digestRecipients(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "school"."user" u JOIN "school"."profile" p ON p.user_id = u.id`) +
		`.*` + regexp.QuoteMeta(`EXISTS (SELECT 1 FROM "school"."notification" n WHERE n.recipient_id = u.id AND n.unread)`) +
		`.*` + regexp.QuoteMeta(`ORDER BY u.id ASC`)).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(2, "student", "student@example.com", "", false, false, now))

	yes := true
	users, err := repo.QueryUsers(context.Background(), school, &user.QueryFilter{
		GetNotificationsByEmail: &yes,
		HasUnreadNotifications:  true,
	}, core.DBOrdering{Field: "id", Ascending: true})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(2), users[0].ID)
	assert.Equal(t, "student@example.com", users[0].Email)
}

func TestUserRepository_GetUser_notFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, username, email, name, is_staff, is_active, created_at FROM "school"."user" WHERE id = $1`)).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetUser(context.Background(), school, 42)
	assert.Equal(t, user.ErrNotFound, err)
}

func TestUserRepository_CreateUser_withProfile(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "school"."profile" (user_id) SELECT id FROM u`)).
		WithArgs("teacher", "teacher@example.com", "Ms. T", true, true, now).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(1, "teacher", "teacher@example.com", "Ms. T", true, true, now))

	usr, err := repo.CreateUser(context.Background(), school, user.User{
		Username: "teacher", Email: "teacher@example.com", Name: "Ms. T", IsStaff: true, IsActive: true, CreatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), usr.ID)
}

func TestNotificationRepository_QueryNotifications_recency(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "school"."notification" WHERE recipient_id = $1 AND unread = $2 ORDER BY created_at DESC, id DESC`)).
		WithArgs(int64(7), true).
		WillReturnRows(sqlmock.NewRows(notificationColumns).
			AddRow(3, 7, "Ms. T", "commented on", "content", 12, "Quest 1", true, now).
			AddRow(2, 7, "Bob", "joined", "", 0, "", true, now.Add(-time.Hour)))

	unread := true
	ns, err := repo.QueryNotifications(context.Background(), school,
		&notification.QueryFilter{RecipientID: 7, Unread: &unread}, notification.RecencyOrdering...)
	require.NoError(t, err)
	require.Len(t, ns, 2)
	assert.Equal(t, notification.Target{Kind: notification.TargetContent, ID: 12, Label: "Quest 1"}, ns[0].Target)
	assert.Equal(t, "Ms. T commented on Quest 1", ns[0].String())
	assert.True(t, ns[1].Target.IsZero())
}

func TestNotificationRepository_MarkRead(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "school"."notification" SET unread = $1 WHERE recipient_id = $2 AND unread = $3 AND id IN ($4,$5)`)).
		WithArgs(false, int64(7), true, int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	cnt, err := repo.MarkRead(context.Background(), school, 7, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)
}

func TestSiteConfigRepository(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSiteConfigRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT short_name, deck_owner_id FROM "school"."site_config" WHERE id = $1`)).
		WithArgs(1).
		WillReturnError(sql.ErrNoRows)
	_, err := repo.GetSiteConfig(ctx, school)
	assert.Equal(t, siteconfig.ErrNotFound, err)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "school"."site_config"`)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"short_name", "deck_owner_id"}).AddRow("Hackerspace", nil))
	conf, err := repo.GetSiteConfig(ctx, school)
	require.NoError(t, err)
	assert.Equal(t, siteconfig.SiteConfig{ShortName: "Hackerspace"}, conf)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (id) DO UPDATE SET short_name = EXCLUDED.short_name`)).
		WithArgs(1, "Deck", int64(3)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	_, err = repo.SaveSiteConfig(ctx, school, siteconfig.SiteConfig{ShortName: "Deck", DeckOwnerID: 3})
	require.NoError(t, err)
}

func TestPeriodicTaskRepository_RegisterTask(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPeriodicTaskRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	task := schedule.PeriodicTask{
		Name:         "digest (school)",
		Task:         schedule.DigestTaskName,
		TenantSchema: school,
		Schedule:     "0 5 * * *",
		Enabled:      true,
		CreatedAt:    now,
	}
	cols := periodicTaskColumns
	insert := regexp.QuoteMeta(`INSERT INTO "public"."periodic_task"`) + `.*` +
		regexp.QuoteMeta(`ON CONFLICT (task, tenant_schema) DO NOTHING RETURNING`)

	// first registration inserts
	mock.ExpectQuery(insert).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, task.Name, task.Task, "school", task.Schedule, true, false, nil, now))
	created, ok, err := repo.RegisterTask(ctx, task)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, school, created.TenantSchema)

	// second registration hits the unique key and returns the stored entry
	mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "public"."periodic_task" WHERE task = $1 AND tenant_schema = $2 ORDER BY id ASC`)).
		WithArgs(schedule.DigestTaskName, school).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, task.Name, task.Task, "school", task.Schedule, true, false, nil, now))
	existing, ok, err := repo.RegisterTask(ctx, task)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, created.ID, existing.ID)
}
