// Package tenant resolves inbound channel tokens to tenant identities and
// loads the per-tenant configuration the orchestrator runs under.
package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	bookingx "github.com/frontdesk-ai/frontdesk/agent/booking"
	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
)

// BusinessContext is the free-form business blob fed verbatim into prompt
// construction. The orchestrator never interprets it.
type BusinessContext struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	ServiceCatalog string `json:"service_catalog,omitempty"`
	ProductCatalog string `json:"product_catalog,omitempty"`
	Highlights     string `json:"highlights,omitempty"`
	WorkingHours   string `json:"working_hours,omitempty"`
}

// Config is one tenant's resolved configuration. It is read once at the
// start of an orchestration call and treated as immutable for the call's
// duration; credentials arrive already decrypted and live only in memory.
type Config struct {
	ID     string `validate:"required"`
	Name   string `validate:"required"`
	Active bool

	Channel      contractx.Channel
	ChannelToken string `validate:"required"`

	SystemKind  bookingx.SystemKind `validate:"required"`
	Credentials bookingx.Credentials

	Business BusinessContext

	// MaxDispatchRounds bounds the model/tool loop for this tenant.
	// Always finite; zero falls back to the process default.
	MaxDispatchRounds int `validate:"gte=0,lte=20"`

	SessionTTL    time.Duration
	RetentionDays int `validate:"gte=0"`
}

var validate = validator.New()

// Validate rejects malformed configuration before any session work begins.
// An unknown external-system kind is a configuration error here, not a
// call-time fallback.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: tenant config is nil", contractx.ErrConfiguration)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrConfiguration, err)
	}
	if !c.SystemKind.Valid() {
		return fmt.Errorf("%w: unsupported external system kind=%q", contractx.ErrConfiguration, c.SystemKind)
	}
	if !c.Active {
		return fmt.Errorf("%w: tenant %s is suspended", contractx.ErrTenantNotFound, c.ID)
	}
	return nil
}

// Registry resolves a transport token to tenant configuration. Unknown or
// inactive tenants short-circuit the orchestrator with
// contract.ErrTenantNotFound before any session is touched.
type Registry interface {
	Resolve(ctx context.Context, channelToken string) (*Config, error)
	ListActive(ctx context.Context) ([]RetentionPolicy, error)
}

// RetentionPolicy is what the retention sweep needs per tenant.
type RetentionPolicy struct {
	TenantID      string
	RetentionDays int
}
