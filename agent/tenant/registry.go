package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	bookingx "github.com/frontdesk-ai/frontdesk/agent/booking"
	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
)

type PostgresConfig struct {
	DSN string `envconfig:"DSN" split_words:"true" required:"true"`
}

// NewDB opens a bun handle over the pgdriver connector. Shared by the
// registry and the audit recorder.
func NewDB(cfg PostgresConfig) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

type tenantRow struct {
	bun.BaseModel `bun:"table:tenants,alias:t"`

	ID       string `bun:"id,pk"`
	Name     string `bun:"name"`
	IsActive bool   `bun:"is_active"`

	Description    string `bun:"description"`
	ServiceCatalog string `bun:"service_catalog"`
	ProductCatalog string `bun:"product_catalog"`
	Highlights     string `bun:"highlights"`
	WorkingHours   string `bun:"working_hours"`

	MaxDispatchRounds int `bun:"max_dispatch_rounds"`
	SessionTTLSeconds int `bun:"session_ttl_seconds"`
	RetentionDays     int `bun:"retention_days"`
}

type channelRow struct {
	bun.BaseModel `bun:"table:tenant_channels,alias:tc"`

	ID           string `bun:"id,pk"`
	TenantID     string `bun:"tenant_id"`
	ChannelType  string `bun:"channel_type"`
	WebhookToken string `bun:"webhook_token"`
	IsActive     bool   `bun:"is_active"`
}

type crmSettingsRow struct {
	bun.BaseModel `bun:"table:tenant_crm_settings,alias:tcs"`

	TenantID        string `bun:"tenant_id,pk"`
	SystemKind      string `bun:"system_kind"`
	APIKeyEncrypted string `bun:"api_key_encrypted"`
	BaseURL         string `bun:"base_url"`
	CompanyIDInCRM  string `bun:"company_id_in_crm"`
}

// PostgresRegistry resolves channel tokens against the tenants schema.
// Reads are safe for concurrent use; tenant mutation happens outside this
// process through the configuration path.
type PostgresRegistry struct {
	db    *bun.DB
	vault *Vault
}

func NewPostgresRegistry(db *bun.DB, vault *Vault) (*PostgresRegistry, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if vault == nil {
		return nil, errors.New("vault is required")
	}
	return &PostgresRegistry{db: db, vault: vault}, nil
}

func (r *PostgresRegistry) Resolve(ctx context.Context, channelToken string) (*Config, error) {
	token := strings.TrimSpace(channelToken)
	if token == "" {
		return nil, fmt.Errorf("%w: channel token is empty", contractx.ErrTenantNotFound)
	}

	var channel channelRow
	err := r.db.NewSelect().
		Model(&channel).
		Where("tc.webhook_token = ?", token).
		Where("tc.is_active").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no channel for token", contractx.ErrTenantNotFound)
		}
		return nil, fmt.Errorf("resolve channel: %w", err)
	}

	var row tenantRow
	err = r.db.NewSelect().
		Model(&row).
		Where("t.id = ?", channel.TenantID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: tenant %s missing", contractx.ErrTenantNotFound, channel.TenantID)
		}
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if !row.IsActive {
		return nil, fmt.Errorf("%w: tenant %s is suspended", contractx.ErrTenantNotFound, row.ID)
	}

	var crm crmSettingsRow
	err = r.db.NewSelect().
		Model(&crm).
		Where("tcs.tenant_id = ?", row.ID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: tenant %s has no external system configured", contractx.ErrConfiguration, row.ID)
		}
		return nil, fmt.Errorf("load crm settings: %w", err)
	}

	apiKey, err := r.vault.Decrypt(crm.APIKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt credentials for tenant %s: %v", contractx.ErrConfiguration, row.ID, err)
	}

	cfg := &Config{
		ID:           row.ID,
		Name:         row.Name,
		Active:       row.IsActive,
		Channel:      contractx.Channel(channel.ChannelType),
		ChannelToken: token,
		SystemKind:   bookingx.SystemKind(crm.SystemKind),
		Credentials: bookingx.Credentials{
			APIKey:    apiKey,
			BaseURL:   crm.BaseURL,
			CompanyID: crm.CompanyIDInCRM,
		},
		Business: BusinessContext{
			Name:           row.Name,
			Description:    row.Description,
			ServiceCatalog: row.ServiceCatalog,
			ProductCatalog: row.ProductCatalog,
			Highlights:     row.Highlights,
			WorkingHours:   row.WorkingHours,
		},
		MaxDispatchRounds: row.MaxDispatchRounds,
		SessionTTL:        time.Duration(row.SessionTTLSeconds) * time.Second,
		RetentionDays:     row.RetentionDays,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("tenant_id", cfg.ID).
		Str("system_kind", string(cfg.SystemKind)).
		Msg("tenant_resolved")
	return cfg, nil
}

func (r *PostgresRegistry) ListActive(ctx context.Context) ([]RetentionPolicy, error) {
	var rows []tenantRow
	err := r.db.NewSelect().
		Model(&rows).
		Column("t.id", "t.retention_days").
		Where("t.is_active").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}

	policies := make([]RetentionPolicy, 0, len(rows))
	for _, row := range rows {
		policies = append(policies, RetentionPolicy{
			TenantID:      row.ID,
			RetentionDays: row.RetentionDays,
		})
	}
	return policies, nil
}
