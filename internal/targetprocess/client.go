// Package targetprocess is the REST client for the remote planning service.
// It distinguishes network, validation, not-found, and server failures with a
// typed error, caches read queries in an explicit cache object owned by the
// caller, and retries recoverable failures with bounded backoff.
package targetprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clintrovert/tpsync/pkg/types"
)

// ErrorKind names a class of API failure.
type ErrorKind string

const (
	ErrKindNetwork    ErrorKind = "network"
	ErrKindValidation ErrorKind = "validation"
	ErrKindNotFound   ErrorKind = "not_found"
	ErrKindServer     ErrorKind = "server"
)

// APIError is the typed failure every client method returns.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("targetprocess: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("targetprocess: %s: %s", e.Kind, e.Message)
}

// QueryCache caches read-query responses keyed by query signature. It is
// constructed by the caller and passed to the client, so its lifetime and
// invalidation are explicit rather than hidden client state.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewQueryCache creates an empty cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{entries: make(map[string][]byte)}
}

func (c *QueryCache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[key]
	return b, ok
}

func (c *QueryCache) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Invalidate drops every cached response. The client calls it after any
// write; callers may call it to force fresh reads.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
}

// Client talks to the TargetProcess REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	cache      *QueryCache
	retry      RetryPolicy
	logger     *zap.Logger
}

// NewClient creates a TargetProcess client. A nil cache gets a private one.
func NewClient(baseURL, token string, cache *QueryCache, logger *zap.Logger) *Client {
	if cache == nil {
		cache = NewQueryCache()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		retry:      DefaultRetryPolicy,
		logger:     logger,
	}
}

// Wire shapes of the remote API.
type tpItems struct {
	Items []tpAssignable `json:"Items"`
}

type tpAssignable struct {
	ID          int            `json:"Id"`
	Name        string         `json:"Name"`
	Description string         `json:"Description"`
	Effort      *float64       `json:"Effort"`
	EntityState *tpEntityState `json:"EntityState"`
	Owner       *tpUser        `json:"Owner"`
}

type tpEntityState struct {
	Name string `json:"Name"`
}

type tpUser struct {
	FullName string `json:"FullName"`
}

// GetTeamObjectives fetches the team's objectives for a release, with their
// epics, ordered as the remote returns them.
func (c *Client) GetTeamObjectives(ctx context.Context, release, team string) ([]types.Objective, error) {
	where := fmt.Sprintf("(Release.Name eq '%s') and (Team.Name eq '%s')", escape(release), escape(team))
	body, err := c.get(ctx, "TeamObjectives", url.Values{"where": {where}})
	if err != nil {
		return nil, err
	}
	var items tpItems
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &APIError{Kind: ErrKindServer, Message: fmt.Sprintf("malformed response: %v", err)}
	}

	objectives := make([]types.Objective, 0, len(items.Items))
	for _, item := range items.Items {
		obj := types.Objective{
			ID:          item.ID,
			Name:        item.Name,
			Description: item.Description,
		}
		if item.Effort != nil {
			obj.Effort = int(*item.Effort)
		}
		if item.EntityState != nil {
			obj.Status = item.EntityState.Name
		}
		if item.Owner != nil {
			obj.Owner = item.Owner.FullName
		}
		epics, err := c.getEpics(ctx, item.ID)
		if err != nil {
			c.logger.Warn("failed to fetch epics for objective",
				zap.Int("objective_id", item.ID),
				zap.Error(err),
			)
		} else {
			obj.Epics = epics
		}
		objectives = append(objectives, obj)
	}
	return objectives, nil
}

// GetProgramObjectives fetches the ART-level objectives for a release, for
// read-only reference in the plan document.
func (c *Client) GetProgramObjectives(ctx context.Context, release, art string) ([]types.ProgramObjective, error) {
	where := fmt.Sprintf("(Release.Name eq '%s') and (AgileReleaseTrain.Name eq '%s')", escape(release), escape(art))
	body, err := c.get(ctx, "ProgramObjectives", url.Values{"where": {where}})
	if err != nil {
		return nil, err
	}
	var items tpItems
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &APIError{Kind: ErrKindServer, Message: fmt.Sprintf("malformed response: %v", err)}
	}

	objectives := make([]types.ProgramObjective, 0, len(items.Items))
	for _, item := range items.Items {
		obj := types.ProgramObjective{ID: item.ID, Name: item.Name}
		if item.EntityState != nil {
			obj.Status = item.EntityState.Name
		}
		objectives = append(objectives, obj)
	}
	return objectives, nil
}

func (c *Client) getEpics(ctx context.Context, objectiveID int) ([]types.Epic, error) {
	where := fmt.Sprintf("(TeamObjective.Id eq %d)", objectiveID)
	body, err := c.get(ctx, "Epics", url.Values{"where": {where}})
	if err != nil {
		return nil, err
	}
	var items tpItems
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &APIError{Kind: ErrKindServer, Message: fmt.Sprintf("malformed response: %v", err)}
	}

	epics := make([]types.Epic, 0, len(items.Items))
	for _, item := range items.Items {
		epic := types.Epic{ID: item.ID, Name: item.Name}
		if item.EntityState != nil {
			epic.Status = item.EntityState.Name
		}
		if item.Owner != nil {
			epic.Owner = item.Owner.FullName
		}
		if item.Effort != nil {
			effort := int(*item.Effort)
			epic.Effort = &effort
		}
		epics = append(epics, epic)
	}
	return epics, nil
}

// Execute runs one create/update call derived by the sync engine. Every write
// invalidates the query cache.
func (c *Client) Execute(ctx context.Context, call types.APICall) error {
	var path string
	switch call.Entity {
	case "objective":
		path = "TeamObjectives"
	case "epic":
		path = "Epics"
	default:
		return &APIError{Kind: ErrKindValidation, Message: fmt.Sprintf("unknown entity %q", call.Entity)}
	}

	switch call.Operation {
	case "create":
	case "update":
		if call.ID == 0 {
			return &APIError{Kind: ErrKindValidation, Message: "update requires an entity id"}
		}
		path = path + "/" + strconv.Itoa(call.ID)
	default:
		return &APIError{Kind: ErrKindValidation, Message: fmt.Sprintf("unknown operation %q", call.Operation)}
	}

	payload, err := json.Marshal(requestBody(call.Fields))
	if err != nil {
		return &APIError{Kind: ErrKindValidation, Message: err.Error()}
	}

	err = c.retry.Do(ctx, c.logger, call.Operation+" "+path, func() error {
		_, derr := c.do(ctx, http.MethodPost, path, nil, payload)
		return derr
	})
	if err != nil {
		return err
	}

	c.cache.Invalidate()
	c.logger.Info("executed remote call",
		zap.String("operation", call.Operation),
		zap.String("entity", call.Entity),
		zap.Int("id", call.ID),
	)
	return nil
}

// requestBody maps the engine's flat field set to the remote's nested JSON.
func requestBody(fields map[string]string) map[string]interface{} {
	body := make(map[string]interface{})
	if v, ok := fields["name"]; ok {
		body["Name"] = v
	}
	if v, ok := fields["description"]; ok {
		body["Description"] = v
	}
	if v, ok := fields["status"]; ok {
		body["EntityState"] = map[string]interface{}{"Name": v}
	}
	if v, ok := fields["effort"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			body["Effort"] = n
		}
	}
	if v, ok := fields["owner"]; ok {
		body["Owner"] = map[string]interface{}{"FullName": v}
	}
	if v, ok := fields["objective_id"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			body["TeamObjective"] = map[string]interface{}{"Id": n}
		}
	}
	return body
}

// get serves read queries from the cache when possible and retries
// recoverable failures.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	key := path + "?" + query.Encode()
	if body, ok := c.cache.get(key); ok {
		return body, nil
	}

	var body []byte
	err := c.retry.Do(ctx, c.logger, "GET "+path, func() error {
		b, derr := c.do(ctx, http.MethodGet, path, query, nil)
		if derr != nil {
			return derr
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.cache.put(key, body)
	return body, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("format", "json")
	query.Set("access_token", c.token)
	endpoint := c.baseURL + "/api/v1/" + path + "?" + query.Encode()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &APIError{Kind: ErrKindValidation, Message: err.Error()}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: ErrKindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: ErrKindNetwork, Message: err.Error()}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &APIError{Kind: ErrKindNotFound, StatusCode: resp.StatusCode, Message: truncate(body)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &APIError{Kind: ErrKindValidation, StatusCode: resp.StatusCode, Message: truncate(body)}
	default:
		return nil, &APIError{Kind: ErrKindServer, StatusCode: resp.StatusCode, Message: truncate(body)}
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func truncate(body []byte) string {
	const max = 512
	s := string(body)
	if len(s) > max {
		return s[:max]
	}
	return s
}
