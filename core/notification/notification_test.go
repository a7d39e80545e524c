package notification_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/notification"
	"github.com/bytedeck/deck/tests"
)

func TestNotification_String(t *testing.T) {
	tests := []struct {
		n    notification.Notification
		want string
	}{
		{notification.Notification{Actor: "Ms. T", Verb: "commented on", Target: notification.Target{Label: "Quest 1"}}, "Ms. T commented on Quest 1"},
		{notification.Notification{Actor: "Ms. T", Verb: "approved your submission"}, "Ms. T approved your submission"},
		{notification.Notification{Actor: " ", Verb: "announcement posted "}, "announcement posted"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.n.String())
	}
}

func TestNotification_Path(t *testing.T) {
	tests := []struct {
		target notification.Target
		want   string
	}{
		{notification.Target{}, "/notifications/7/"},
		{notification.Target{Kind: notification.TargetUser, ID: 3}, "/profiles/3/"},
		{notification.Target{Kind: notification.TargetGroup, ID: 4}, "/courses/blocks/4/"},
		{notification.Target{Kind: notification.TargetContent, ID: 5}, "/quests/5/"},
	}
	for _, tc := range tests {
		n := notification.Notification{ID: 7, Target: tc.target}
		assert.Equal(t, tc.want, n.Path())
		assert.Equal(t, "https://school.deck.test"+tc.want, notification.URL("https://school.deck.test/", n))
	}
	assert.True(t, notification.Target{}.IsZero())
	assert.False(t, notification.TargetKind("badge").Valid())
}

func TestService(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos()
	repos.PrepareTenant(t, testutil.Schema, 0)
	validate, _ := core.NewValidator()
	svc := notification.NewService(repos.Notifications, validate)

	usr := testutil.CreateUser(t, repos.Users, testutil.Schema, "alice", "alice@school.test", false)

	first, err := svc.Create(ctx, testutil.Schema, notification.NewNotification{
		RecipientID: usr.ID, Actor: " Ms. T ", Verb: "commented on", TargetKind: notification.TargetContent, TargetID: 1, TargetLabel: "Quest 1",
	})
	require.NoError(t, err)
	assert.True(t, first.Unread)
	assert.Equal(t, "Ms. T", first.Actor)

	second, err := svc.Create(ctx, testutil.Schema, notification.NewNotification{RecipientID: usr.ID, Actor: "Ms. T", Verb: "approved"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, testutil.Schema, notification.NewNotification{RecipientID: usr.ID, Actor: "Ms. T", Verb: "x", TargetKind: "badge"})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, notification.ErrInvalidTargetKind, verr.Err)

	unread, err := svc.Unread(ctx, testutil.Schema, usr.ID)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, second.ID, unread[0].ID, "most recent first")

	n, err := svc.MarkRead(ctx, testutil.Schema, usr.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	unread, err = svc.Unread(ctx, testutil.Schema, usr.ID)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, second.ID, unread[0].ID)
}
