package digest

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/notification"
	"github.com/bytedeck/deck/core/siteconfig"
	"github.com/bytedeck/deck/core/submission"
	"github.com/bytedeck/deck/core/user"
)

const templateName = "notification_digest"

// Email is a rendered digest, ready to be handed to a mail transport.
type Email struct {
	Subject string `json:"subject"`
	To      string `json:"to"` // exactly one address
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

func (e Email) Message() *core.EmailMessage {
	return &core.EmailMessage{
		To:          []mail.Address{{Address: e.To}},
		Subject:     e.Subject,
		TextContent: e.Text,
		HTMLContent: e.HTML,
	}
}

type (
	item struct {
		Text string
		URL  string
	}

	templateData struct {
		Subject          string
		Recipient        string
		Notifications    []item
		Submissions      []item
		NotificationsURL string
	}
)

// Builder selects digest recipients and assembles their emails. It only reads.
type Builder struct {
	users         user.Repository
	notifications notification.Repository
	submissions   submission.Repository
	sites         siteconfig.Repository
	shortName     string // used when the tenant has no short name configured
}

func NewBuilder(
	users user.Repository,
	notifications notification.Repository,
	submissions submission.Repository,
	sites siteconfig.Repository,
	shortName string,
) *Builder {
	return &Builder{
		users:         users,
		notifications: notifications,
		submissions:   submissions,
		sites:         sites,
		shortName:     shortName,
	}
}

// Recipients returns the users who receive a digest this cycle: the deck owner, then every user
// with digest emails turned on and at least one unread notification. Each account appears once.
// Inactive accounts are not filtered out.
func (b *Builder) Recipients(ctx context.Context, schema core.Schema, rootURL string) ([]user.User, error) {
	recipients, _, err := b.recipients(ctx, schema, rootURL)
	return recipients, err
}

// recipients also returns the site config it loaded, so a batch reads it once.
func (b *Builder) recipients(ctx context.Context, schema core.Schema, rootURL string) ([]user.User, siteconfig.SiteConfig, error) {
	if !core.IsAbsoluteURL(rootURL) {
		return nil, siteconfig.SiteConfig{}, errors.Wrap(ErrInvalidRootURL, rootURL)
	}

	conf, err := b.sites.GetSiteConfig(ctx, schema)
	if err != nil && errors.Cause(err) != siteconfig.ErrNotFound {
		return nil, conf, errors.Wrap(err, "loading site config")
	}

	var recipients []user.User
	seen := make(map[int64]bool)
	if conf.DeckOwnerID != 0 {
		owner, err := b.users.GetUser(ctx, schema, conf.DeckOwnerID)
		if err != nil {
			return nil, conf, errors.Wrap(err, "loading deck owner")
		}
		recipients = append(recipients, owner)
		seen[owner.ID] = true
	}

	yes := true
	users, err := b.users.QueryUsers(ctx, schema, &user.QueryFilter{
		GetNotificationsByEmail: &yes,
		HasUnreadNotifications:  true,
	}, core.DBOrdering{Field: "id", Ascending: true})
	if err != nil {
		return nil, conf, errors.Wrap(err, "querying recipients")
	}
	for _, u := range users {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		recipients = append(recipients, u)
	}
	return recipients, conf, nil
}

// RecipientEmails is Recipients flattened to their email addresses. An address shared by two accounts
// appears twice; a blank address is kept so that Build reports the recipient as invalid.
func (b *Builder) RecipientEmails(ctx context.Context, schema core.Schema, rootURL string) ([]string, error) {
	recipients, err := b.Recipients(ctx, schema, rootURL)
	if err != nil {
		return nil, err
	}
	emails := make([]string, len(recipients))
	for i, u := range recipients {
		emails[i] = core.CleanString(u.Email)
	}
	return emails, nil
}

// BuildFor resolves the recipient by ID then builds their digest.
func (b *Builder) BuildFor(ctx context.Context, schema core.Schema, userID int64, rootURL string) (Email, error) {
	usr, err := b.users.GetUser(ctx, schema, userID)
	if errors.Cause(err) == user.ErrNotFound {
		return Email{}, errors.Wrapf(ErrInvalidRecipient, "user %d does not exist", userID)
	} else if err != nil {
		return Email{}, err
	}
	return b.Build(ctx, schema, usr, rootURL)
}

// Build assembles the digest of usr: their unread notifications, most recent first, and for staff
// every quest submission awaiting approval. It does not send anything nor mark anything read.
func (b *Builder) Build(ctx context.Context, schema core.Schema, usr user.User, rootURL string) (Email, error) {
	if !core.IsAbsoluteURL(rootURL) {
		return Email{}, errors.Wrap(ErrInvalidRootURL, rootURL)
	}
	subject, err := b.subject(ctx, schema)
	if err != nil {
		return Email{}, err
	}
	return b.build(ctx, schema, usr, rootURL, subject)
}

// build assembles the digest with an already resolved subject.
func (b *Builder) build(ctx context.Context, schema core.Schema, usr user.User, rootURL, subject string) (Email, error) {
	addr, err := usr.MailAddress()
	if err != nil {
		return Email{}, errors.Wrapf(ErrInvalidRecipient, "user %d (%s): %v", usr.ID, usr.Username, err)
	}

	unread := true
	notifications, err := b.notifications.QueryNotifications(ctx, schema, &notification.QueryFilter{
		RecipientID: usr.ID,
		Unread:      &unread,
	}, notification.RecencyOrdering...)
	if err != nil {
		return Email{}, errors.Wrap(err, "querying unread notifications")
	}

	var submissions []submission.Submission
	if usr.IsStaff {
		if submissions, err = b.submissions.QueryAwaitingApproval(ctx, schema); err != nil {
			return Email{}, errors.Wrap(err, "querying submissions awaiting approval")
		}
	}

	data := templateData{
		Subject:          subject,
		Recipient:        usr.DisplayName(),
		Notifications:    make([]item, 0, len(notifications)),
		Submissions:      make([]item, 0, len(submissions)),
		NotificationsURL: core.JoinURL(rootURL, "/notifications/"),
	}
	for _, n := range notifications {
		data.Notifications = append(data.Notifications, item{Text: n.String(), URL: notification.URL(rootURL, n)})
	}
	for _, s := range submissions {
		data.Submissions = append(data.Submissions, item{Text: s.String(), URL: notification.URL(rootURL, s)})
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{addr},
		Subject:      subject,
		TemplateName: templateName,
		TemplateData: data,
		RootURL:      rootURL,
	}
	if err := msg.Render(); err != nil {
		return Email{}, errors.Wrap(err, "rendering digest")
	}

	return Email{
		Subject: subject,
		To:      addr.Address,
		Text:    msg.TextContent,
		HTML:    msg.HTMLContent,
	}, nil
}

// subject resolves the short name of the tenant, falling back to the configured default.
func (b *Builder) subject(ctx context.Context, schema core.Schema) (string, error) {
	conf, err := b.sites.GetSiteConfig(ctx, schema)
	if err != nil && errors.Cause(err) != siteconfig.ErrNotFound {
		return "", errors.Wrap(err, "loading site config")
	}
	return b.subjectOf(conf), nil
}

func (b *Builder) subjectOf(conf siteconfig.SiteConfig) string {
	return Subject(conf.ShortNameOr(b.shortName))
}

// Subject is the digest subject line, eg. "Deck Notifications".
func Subject(shortName string) string { return shortName + " Notifications" }
