package booking

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const altegioDefaultBaseURL = "https://api.alteg.io/api/v1"

// altegioAdapter talks to the Altegio (ex-YCLIENTS) REST API. Auth is a
// partner bearer token; every resource path is scoped by company id.
type altegioAdapter struct {
	rest      restClient
	companyID string
}

func newAltegioAdapter(creds Credentials, settings factorySettings) *altegioAdapter {
	baseURL := strings.TrimSpace(creds.BaseURL)
	if baseURL == "" {
		baseURL = altegioDefaultBaseURL
	}
	return &altegioAdapter{
		rest: restClient{
			baseURL: baseURL,
			headers: map[string]string{
				"Authorization": "Bearer " + strings.TrimSpace(creds.APIKey),
				"Accept":        "application/vnd.api.v2+json",
			},
			httpClient: settings.httpClient,
			sleep:      settings.sleep,
		},
		companyID: strings.TrimSpace(creds.CompanyID),
	}
}

func (a *altegioAdapter) Kind() SystemKind {
	return SystemAltegio
}

type altegioService struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Comment      string  `json:"comment"`
	PriceMin     float64 `json:"price_min"`
	SeanceLength int     `json:"seance_length"` // seconds
	Category     string  `json:"category_title"`
	Active       int     `json:"active"`
}

func (a *altegioAdapter) ListServices(ctx context.Context, category string) ([]Service, error) {
	query := url.Values{}
	if strings.TrimSpace(category) != "" {
		query.Set("category", category)
	}

	var payload struct {
		Data []altegioService `json:"data"`
	}
	path := fmt.Sprintf("/company/%s/services", a.companyID)
	if err := a.rest.doJSON(ctx, "altegio.list_services", http.MethodGet, path, query, nil, &payload); err != nil {
		return nil, err
	}

	services := make([]Service, 0, len(payload.Data))
	for _, s := range payload.Data {
		if s.Active == 0 {
			continue
		}
		services = append(services, Service{
			ID:              strconv.FormatInt(s.ID, 10),
			Title:           s.Title,
			Description:     s.Comment,
			Price:           s.PriceMin,
			DurationMinutes: s.SeanceLength / 60,
			Category:        s.Category,
		})
	}
	return services, nil
}

func (a *altegioAdapter) ListSlots(ctx context.Context, serviceID string, rng DateRange) ([]Slot, error) {
	query := url.Values{}
	query.Set("service_id", serviceID)
	query.Set("date_from", rng.From)
	query.Set("date_to", rng.To)

	var payload struct {
		Data []struct {
			Date         string `json:"date"`
			Time         string `json:"time"`
			SeanceLength int    `json:"seance_length"`
			StaffID      int64  `json:"staff_id"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/book_times/%s", a.companyID)
	if err := a.rest.doJSON(ctx, "altegio.list_slots", http.MethodGet, path, query, nil, &payload); err != nil {
		return nil, err
	}

	slots := make([]Slot, 0, len(payload.Data))
	for _, s := range payload.Data {
		slots = append(slots, Slot{
			Date:            s.Date,
			Time:            s.Time,
			DurationMinutes: s.SeanceLength / 60,
			EmployeeID:      strconv.FormatInt(s.StaffID, 10),
			ServiceID:       serviceID,
		})
	}
	return slots, nil
}

// FindOrCreateCustomer looks the client up by phone first so that duplicate
// deliveries of the same event never create duplicate records.
func (a *altegioAdapter) FindOrCreateCustomer(ctx context.Context, phone, name string) (string, error) {
	query := url.Values{}
	query.Set("phone", phone)

	var found struct {
		Data []struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	searchPath := fmt.Sprintf("/company/%s/clients", a.companyID)
	if err := a.rest.doJSON(ctx, "altegio.find_customer", http.MethodGet, searchPath, query, nil, &found); err != nil {
		return "", err
	}
	if len(found.Data) > 0 {
		return strconv.FormatInt(found.Data[0].ID, 10), nil
	}

	var created struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	createPath := fmt.Sprintf("/clients/%s", a.companyID)
	body := map[string]any{"phone": phone, "name": name}
	if err := a.rest.doJSON(ctx, "altegio.create_customer", http.MethodPost, createPath, nil, body, &created); err != nil {
		return "", err
	}
	return strconv.FormatInt(created.Data.ID, 10), nil
}

func (a *altegioAdapter) CreateBooking(ctx context.Context, customerID, serviceID string, slot Slot) (string, error) {
	body := map[string]any{
		"client_id":  customerID,
		"service_id": serviceID,
		"date":       slot.Date,
		"time":       slot.Time,
	}
	if slot.EmployeeID != "" {
		body["staff_id"] = slot.EmployeeID
	}

	var created struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/book_record/%s", a.companyID)
	if err := a.rest.doJSON(ctx, "altegio.create_booking", http.MethodPost, path, nil, body, &created); err != nil {
		return "", err
	}
	return strconv.FormatInt(created.Data.ID, 10), nil
}

func (a *altegioAdapter) CancelBooking(ctx context.Context, bookingID string) error {
	path := fmt.Sprintf("/record/%s/%s", a.companyID, bookingID)
	return a.rest.doJSON(ctx, "altegio.cancel_booking", http.MethodDelete, path, nil, nil, nil)
}
