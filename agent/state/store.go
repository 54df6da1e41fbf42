package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
)

var (
	ErrStateNotFound   = errors.New("session state not found")
	ErrVersionConflict = errors.New("session version conflict")
	ErrNilSession      = errors.New("session is nil")
)

const (
	defaultStoreKeyPrefix = "frontdesk:session:"
	defaultStoreTTL       = 24 * time.Hour
	maxResponseSizeBytes  = 2 << 20
)

// Store is the persistence and locking contract used by the orchestrator.
// Save enforces optimistic versioning; AcquireLock serializes writers per
// session key.
type Store interface {
	Load(ctx context.Context, key Key) (*Session, error)
	// Save persists the session with the given TTL; ttl <= 0 falls back to
	// the store default.
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, key Key) error
	AcquireLock(ctx context.Context, key Key, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key Key, token string) error
}

// compare-and-set: reject when a newer version is already stored.
const saveScript = `local cur = redis.call('GET', KEYS[1])
if cur then
  local decoded = cjson.decode(cur)
  if decoded.version and tonumber(decoded.version) >= tonumber(ARGV[2]) then
    return 'CONFLICT'
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[3])
return 'OK'`

// compare-and-delete: only the lock holder may release.
const unlockScript = `if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0`

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashRedisStore persists sessions in Upstash Redis via its REST
// protocol: each request is one command encoded as a JSON array.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashRedisStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix: defaultStoreKeyPrefix,
		ttl:       defaultStoreTTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if store.ttl <= 0 {
		return nil, errors.New("ttl must be > 0")
	}

	return store, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, key Key) (*Session, error) {
	redisKey, err := s.sessionKey(key)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", redisKey})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrStateNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(encoded), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if session.Facts == nil {
		session.Facts = make(Facts, 8)
	}
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session loaded from store: %w", err)
	}

	return &session, nil
}

func (s *UpstashRedisStore) Save(ctx context.Context, session *Session, ttl time.Duration) error {
	if session == nil {
		return ErrNilSession
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	if err := session.Validate(); err != nil {
		return err
	}

	redisKey, err := s.sessionKey(session.Key())
	if err != nil {
		return err
	}

	next := session.Version + 1
	prev := session.Version
	session.Version = next

	payload, err := json.Marshal(session)
	if err != nil {
		session.Version = prev
		return fmt.Errorf("marshal session: %w", err)
	}

	resp, err := s.exec(ctx, []any{
		"EVAL", saveScript, 1, redisKey,
		string(payload), next, ttlSeconds(ttl),
	})
	if err != nil {
		session.Version = prev
		return err
	}

	var verdict string
	if err := json.Unmarshal(bytes.TrimSpace(resp.Result), &verdict); err != nil {
		session.Version = prev
		return fmt.Errorf("decode save verdict: %w", err)
	}
	if verdict != "OK" {
		session.Version = prev
		return fmt.Errorf("%w: key=%s version=%d", ErrVersionConflict, session.Key(), next)
	}
	return nil
}

func (s *UpstashRedisStore) Delete(ctx context.Context, key Key) error {
	redisKey, err := s.sessionKey(key)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", redisKey})
	return err
}

// AcquireLock takes the per-session write lock via SET NX PX. The returned
// token must be presented to ReleaseLock; a lock already held maps to
// contract.ErrSessionBusy so callers can fail fast.
func (s *UpstashRedisStore) AcquireLock(ctx context.Context, key Key, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("%w: lock ttl must be > 0", contractx.ErrValidation)
	}
	lockKey, err := s.lockKey(key)
	if err != nil {
		return "", err
	}

	token := newLockToken()
	resp, err := s.exec(ctx, []any{"SET", lockKey, token, "NX", "PX", ttl.Milliseconds()})
	if err != nil {
		return "", err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return "", fmt.Errorf("%w: key=%s", contractx.ErrSessionBusy, key)
	}
	return token, nil
}

// ReleaseLock releases the lock only when the token matches; an expired or
// stolen lock is not an error, the hold timeout already reclaimed it.
func (s *UpstashRedisStore) ReleaseLock(ctx context.Context, key Key, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: lock token is empty", contractx.ErrValidation)
	}
	lockKey, err := s.lockKey(key)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"EVAL", unlockScript, 1, lockKey, token})
	return err
}

func (s *UpstashRedisStore) sessionKey(key Key) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	return s.keyPrefix + key.String(), nil
}

func (s *UpstashRedisStore) lockKey(key Key) (string, error) {
	sessionKey, err := s.sessionKey(key)
	if err != nil {
		return "", err
	}
	return sessionKey + ":lock", nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func newLockToken() string {
	return uuid.NewString()
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
