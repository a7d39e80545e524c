package siteconfig

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
)

const DefaultShortName = "Deck"

var ErrNotFound = errors.New("site config not found")

// SiteConfig holds the tenant wide settings.
type SiteConfig struct {
	ShortName string `json:"short_name" db:"short_name"`
	// DeckOwnerID is the operator account that always receives the notification digest.
	DeckOwnerID int64 `json:"deck_owner_id" db:"deck_owner_id"`
}

// ShortNameOr returns the configured short name, or fallback when it is blank.
func (c SiteConfig) ShortNameOr(fallback string) string {
	if name := core.CleanString(c.ShortName); name != "" {
		return name
	}
	if fallback != "" {
		return fallback
	}
	return DefaultShortName
}

type Repository interface {
	GetSiteConfig(ctx context.Context, schema core.Schema) (SiteConfig, error)
	SaveSiteConfig(ctx context.Context, schema core.Schema, c SiteConfig) (SiteConfig, error)
}
