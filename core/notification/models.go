package notification

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedeck/deck/core"
)

// TargetKind is the closed set of entities a notification can point at.
type TargetKind string

const (
	TargetNone    TargetKind = ""
	TargetUser    TargetKind = "user"
	TargetGroup   TargetKind = "group"
	TargetContent TargetKind = "content"
)

var targetKinds = map[TargetKind]bool{TargetNone: true, TargetUser: true, TargetGroup: true, TargetContent: true}

func (k TargetKind) Valid() bool { return targetKinds[k] }

// Linkable is implemented by anything that can be linked to from an email.
type Linkable interface {
	// Path is the site-relative path of the entity, eg. /profiles/12/
	Path() string
}

// Target is the entity a notification is about.
type Target struct {
	Kind  TargetKind `json:"kind"`
	ID    int64      `json:"id"`
	Label string     `json:"label"`
}

var _ Linkable = Target{}

func (t Target) IsZero() bool { return t.Kind == TargetNone }

func (t Target) Path() string {
	id := strconv.FormatInt(t.ID, 10)
	switch t.Kind {
	case TargetUser:
		return "/profiles/" + id + "/"
	case TargetGroup:
		return "/courses/blocks/" + id + "/"
	case TargetContent:
		return "/quests/" + id + "/"
	default:
		return ""
	}
}

type Notification struct {
	ID          int64     `json:"id" db:"id"`
	RecipientID int64     `json:"recipient_id" db:"recipient_id"`
	Actor       string    `json:"actor" db:"actor"`
	Verb        string    `json:"verb" db:"verb"`
	Target      Target    `json:"target" db:"-"`
	Unread      bool      `json:"unread" db:"unread"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
}

var _ Linkable = Notification{}

// String is the human readable representation, eg. "Ms. T commented on Quest 1".
func (n Notification) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{n.Actor, n.Verb, n.Target.Label} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Path links to the notification's target, or to the notification itself when it has none.
func (n Notification) Path() string {
	if p := n.Target.Path(); p != "" {
		return p
	}
	return fmt.Sprintf("/notifications/%d/", n.ID)
}

// URL is the absolute link to the notification on the tenant's site.
func URL(rootURL string, l Linkable) string {
	return core.JoinURL(rootURL, l.Path())
}

// NewNotification contains information needed to create a Notification.
type NewNotification struct {
	RecipientID int64      `json:"recipient_id" validate:"required"`
	Actor       string     `json:"actor" validate:"required,max=150"`
	Verb        string     `json:"verb" validate:"required,max=255"`
	TargetKind  TargetKind `json:"target_kind"`
	TargetID    int64      `json:"target_id"`
	TargetLabel string     `json:"target_label" validate:"max=255"`
}

// QueryFilter applies AND operation on the set fields.
type QueryFilter struct {
	RecipientID int64
	Unread      *bool
}
