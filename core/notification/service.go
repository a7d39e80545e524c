package notification

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
)

var (
	// errors
	ErrNotFound          = errors.New("notification not found")
	ErrInvalidTargetKind = errors.New("invalid target kind")
)

// RecencyOrdering is the order digests list notifications in: most recent first,
// later insertions first among equal timestamps.
var RecencyOrdering = []core.DBOrdering{{Field: "created_at"}, {Field: "id"}}

type (
	Repository interface {
		CreateNotification(ctx context.Context, schema core.Schema, n Notification) (Notification, error)
		QueryNotifications(ctx context.Context, schema core.Schema, filter *QueryFilter, ordering ...core.DBOrdering) ([]Notification, error)
		// MarkRead clears the unread flag of the recipient's notifications with the given IDs
		// (all of them when no ID is given) and returns the number of updated rows.
		MarkRead(ctx context.Context, schema core.Schema, recipientID int64, ids ...int64) (int, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) Create(ctx context.Context, schema core.Schema, nn NewNotification) (Notification, error) {
	nn.Actor = core.CleanString(nn.Actor)
	nn.Verb = core.CleanString(nn.Verb)
	nn.TargetLabel = core.CleanString(nn.TargetLabel)
	if err := svc.validate.Struct(nn); err != nil {
		return Notification{}, err
	}
	if !nn.TargetKind.Valid() {
		return Notification{}, core.NewFieldValidationError("target_kind", ErrInvalidTargetKind)
	}

	return svc.repo.CreateNotification(ctx, schema, Notification{
		RecipientID: nn.RecipientID,
		Actor:       nn.Actor,
		Verb:        nn.Verb,
		Target:      Target{Kind: nn.TargetKind, ID: nn.TargetID, Label: nn.TargetLabel},
		Unread:      true,
		CreatedAt:   time.Now().UTC(),
	})
}

// Unread returns the recipient's unread notifications, most recent first.
func (svc *Service) Unread(ctx context.Context, schema core.Schema, recipientID int64) ([]Notification, error) {
	unread := true
	return svc.repo.QueryNotifications(ctx, schema, &QueryFilter{RecipientID: recipientID, Unread: &unread}, RecencyOrdering...)
}

func (svc *Service) MarkRead(ctx context.Context, schema core.Schema, recipientID int64, ids ...int64) (int, error) {
	return svc.repo.MarkRead(ctx, schema, recipientID, ids...)
}
