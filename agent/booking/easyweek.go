package booking

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const easyweekDefaultBaseURL = "https://api.easyweek.io/v1"

// easyweekAdapter talks to the EasyWeek public API. Auth is an X-Api-Key
// header; resources are flat, the key itself is scoped to one location.
type easyweekAdapter struct {
	rest restClient
}

func newEasyWeekAdapter(creds Credentials, settings factorySettings) *easyweekAdapter {
	baseURL := strings.TrimSpace(creds.BaseURL)
	if baseURL == "" {
		baseURL = easyweekDefaultBaseURL
	}
	return &easyweekAdapter{
		rest: restClient{
			baseURL: baseURL,
			headers: map[string]string{
				"X-Api-Key": strings.TrimSpace(creds.APIKey),
			},
			httpClient: settings.httpClient,
			sleep:      settings.sleep,
		},
	}
}

func (a *easyweekAdapter) Kind() SystemKind {
	return SystemEasyWeek
}

type easyweekService struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Duration    int     `json:"duration"` // minutes
	Category    string  `json:"category"`
	Archived    bool    `json:"archived"`
}

func (a *easyweekAdapter) ListServices(ctx context.Context, category string) ([]Service, error) {
	query := url.Values{}
	if strings.TrimSpace(category) != "" {
		query.Set("category", category)
	}

	var payload struct {
		Items []easyweekService `json:"items"`
	}
	if err := a.rest.doJSON(ctx, "easyweek.list_services", http.MethodGet, "/services", query, nil, &payload); err != nil {
		return nil, err
	}

	services := make([]Service, 0, len(payload.Items))
	for _, s := range payload.Items {
		if s.Archived {
			continue
		}
		services = append(services, Service{
			ID:              s.ID,
			Title:           s.Name,
			Description:     s.Description,
			Price:           s.Price,
			DurationMinutes: s.Duration,
			Category:        s.Category,
		})
	}
	return services, nil
}

func (a *easyweekAdapter) ListSlots(ctx context.Context, serviceID string, rng DateRange) ([]Slot, error) {
	query := url.Values{}
	query.Set("service_id", serviceID)
	query.Set("from", rng.From)
	query.Set("to", rng.To)

	var payload struct {
		Items []struct {
			Date     string `json:"date"`
			Start    string `json:"start"`
			Duration int    `json:"duration"`
			StaffID  string `json:"staff_id"`
		} `json:"items"`
	}
	if err := a.rest.doJSON(ctx, "easyweek.list_slots", http.MethodGet, "/timeslots", query, nil, &payload); err != nil {
		return nil, err
	}

	slots := make([]Slot, 0, len(payload.Items))
	for _, s := range payload.Items {
		slots = append(slots, Slot{
			Date:            s.Date,
			Time:            s.Start,
			DurationMinutes: s.Duration,
			EmployeeID:      s.StaffID,
			ServiceID:       serviceID,
		})
	}
	return slots, nil
}

func (a *easyweekAdapter) FindOrCreateCustomer(ctx context.Context, phone, name string) (string, error) {
	query := url.Values{}
	query.Set("phone", phone)

	var found struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := a.rest.doJSON(ctx, "easyweek.find_customer", http.MethodGet, "/clients", query, nil, &found); err != nil {
		return "", err
	}
	if len(found.Items) > 0 {
		return found.Items[0].ID, nil
	}

	var created struct {
		ID string `json:"id"`
	}
	body := map[string]any{"phone": phone, "name": name}
	if err := a.rest.doJSON(ctx, "easyweek.create_customer", http.MethodPost, "/clients", nil, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (a *easyweekAdapter) CreateBooking(ctx context.Context, customerID, serviceID string, slot Slot) (string, error) {
	body := map[string]any{
		"client_id":  customerID,
		"service_id": serviceID,
		"date":       slot.Date,
		"start":      slot.Time,
	}
	if slot.EmployeeID != "" {
		body["staff_id"] = slot.EmployeeID
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := a.rest.doJSON(ctx, "easyweek.create_booking", http.MethodPost, "/appointments", nil, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (a *easyweekAdapter) CancelBooking(ctx context.Context, bookingID string) error {
	return a.rest.doJSON(ctx, "easyweek.cancel_booking", http.MethodDelete, "/appointments/"+bookingID, nil, nil, nil)
}
