package booking

import (
	"fmt"
	"net/http"
	"strings"

	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
)

// SystemKind is the closed set of supported external booking systems.
// Unknown kinds are rejected at tenant-configuration validation, never
// defaulted.
type SystemKind string

const (
	SystemAltegio  SystemKind = "altegio"
	SystemEasyWeek SystemKind = "easyweek"
)

func (k SystemKind) Valid() bool {
	switch k {
	case SystemAltegio, SystemEasyWeek:
		return true
	}
	return false
}

// FactoryOption customizes adapter construction, mainly for tests.
type FactoryOption func(*factorySettings)

type factorySettings struct {
	httpClient *http.Client
	sleep      sleepFunc
}

func WithFactoryHTTPClient(client *http.Client) FactoryOption {
	return func(s *factorySettings) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func withFactorySleep(sleep sleepFunc) FactoryOption {
	return func(s *factorySettings) {
		s.sleep = sleep
	}
}

// New constructs the adapter variant for one tenant's external system. Each
// orchestration call gets its own instance scoped to that call's
// credentials; there is no process-wide shared adapter.
func New(kind SystemKind, creds Credentials, opts ...FactoryOption) (Adapter, error) {
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is required for %s", contractx.ErrConfiguration, kind)
	}

	settings := factorySettings{
		httpClient: &http.Client{Timeout: defaultCallTimeout},
		sleep:      sleepWithContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	switch kind {
	case SystemAltegio:
		return newAltegioAdapter(creds, settings), nil
	case SystemEasyWeek:
		return newEasyWeekAdapter(creds, settings), nil
	default:
		return nil, fmt.Errorf("%w: unsupported external system kind=%q", contractx.ErrConfiguration, kind)
	}
}
