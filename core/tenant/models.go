package tenant

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bytedeck/deck/core"
)

// Tenant is a school running its own isolated deck.
type Tenant struct {
	ID          int64       `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	SchemaName  core.Schema `json:"schema_name" db:"schema_name"`
	DomainURL   string      `json:"domain_url" db:"domain_url"`
	Description string      `json:"description" db:"description"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"` // UTC
}

// SchemaName derives the database schema of a tenant from its name, eg. "Hacker-Space" => "hacker_space".
func SchemaName(name string) core.Schema {
	return core.Schema(strings.ToLower(strings.ReplaceAll(core.CleanString(name), "-", "_")))
}

// DomainURL derives the tenant's domain from its name, eg. "hacker-space.deck.example"
func DomainURL(name, siteDomain string) string {
	return strings.ToLower(core.CleanString(name)) + "." + siteDomain
}

// IsPublicName reports whether name designates the restricted public tenant.
func IsPublicName(name string) bool {
	return strings.EqualFold(core.CleanString(name), core.PublicSchema.String())
}

// NewTenant contains information needed to create a new Tenant.
type NewTenant struct {
	Name        string `json:"name" validate:"required,max=63,tenantname"`
	Description string `json:"description" validate:"max=255"`

	OwnerUsername string `json:"owner_username" validate:"required,min=3,max=150,alphanum_"`
	OwnerEmail    string `json:"owner_email" validate:"omitempty,email"`
	ShortName     string `json:"short_name" validate:"max=20"`
}

func (nt *NewTenant) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Description = core.CleanString(nt.Description)
	nt.OwnerUsername = core.CleanString(nt.OwnerUsername, true /* lower */)
	nt.OwnerEmail = core.CleanString(nt.OwnerEmail, true /* lower */)
	nt.ShortName = core.CleanString(nt.ShortName)
	return validate.Struct(nt)
}

// UpdateTenant defines what information may be provided to modify an existing Tenant.
// All fields are optional.
type UpdateTenant struct {
	Name        *string `json:"name" validate:"omitempty,max=63,tenantname"`
	Description *string `json:"description" validate:"omitempty,max=255"`
}

// QueryFilter applies AND operation on the set fields.
type QueryFilter struct {
	SchemaName core.Schema
	Name       string
}
