// Package booking defines the uniform capability contract the orchestrator
// uses to act on a tenant's external booking system, plus the concrete
// per-vendor adapters.
package booking

import (
	"context"
	"time"
)

// Service is one offerable service from the tenant's catalog.
type Service struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Price           float64 `json:"price,omitempty"`
	DurationMinutes int     `json:"duration_minutes,omitempty"`
	Category        string  `json:"category,omitempty"`
}

// Slot is one bookable time slot.
type Slot struct {
	Date            string `json:"date"` // YYYY-MM-DD
	Time            string `json:"time"` // HH:MM
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	EmployeeID      string `json:"employee_id,omitempty"`
	ServiceID       string `json:"service_id,omitempty"`
}

// Booking is a confirmed appointment in the external system.
type Booking struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	ServiceID  string `json:"service_id"`
	Slot       Slot   `json:"slot"`
}

// DateRange bounds a slot search.
type DateRange struct {
	From string `json:"from"` // YYYY-MM-DD
	To   string `json:"to"`   // YYYY-MM-DD
}

// Adapter is the tenant-agnostic capability set. Every operation honors the
// context deadline, retries transient failures internally, and returns
// results that serialize cleanly into a tool response. Implementations must
// be idempotent where the operation name implies it: FindOrCreateCustomer
// looks up by phone before creating, and CreateBooking surfaces
// contract.ErrSlotConflict instead of double-booking.
type Adapter interface {
	Kind() SystemKind
	ListServices(ctx context.Context, category string) ([]Service, error)
	ListSlots(ctx context.Context, serviceID string, rng DateRange) ([]Slot, error)
	FindOrCreateCustomer(ctx context.Context, phone, name string) (string, error)
	CreateBooking(ctx context.Context, customerID, serviceID string, slot Slot) (string, error)
	CancelBooking(ctx context.Context, bookingID string) error
}

// Credentials are the decrypted connection parameters for one tenant's
// external system. They live in memory only for the duration of a call.
type Credentials struct {
	APIKey    string
	BaseURL   string
	CompanyID string
}

const defaultCallTimeout = 15 * time.Second
