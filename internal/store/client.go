package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"medadmin/internal/metrics"
	"medadmin/internal/models"
)

// Client is an HTTP client for one partition of a Firebase-style JSON document store.
type Client struct {
	partition  int
	baseURL    string
	auth       string
	httpClient *http.Client
	limiter    *rate.Limiter

	redis    *redis.Client
	cacheTTL time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit limits outgoing requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRedisCache enables read-through caching of collection reads.
func WithRedisCache(rdb *redis.Client, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.UseRedisCache(rdb, ttl)
	}
}

// NewClient constructs a client for partition index partition rooted at baseURL.
// auth is appended as the "auth" query parameter when set.
func NewClient(partition int, baseURL, auth string, opts ...ClientOption) *Client {
	c := &Client{
		partition:  partition,
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseRedisCache configures optional Redis caching for collection reads.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// Partition returns the partition index this client serves.
func (c *Client) Partition() int {
	return c.partition
}

// Users fetches the users collection.
func (c *Client) Users(ctx context.Context) (map[string]models.User, error) {
	var raw map[string]json.RawMessage
	if err := c.getCollection(ctx, OpGetUsers, "users", &raw); err != nil {
		return nil, err
	}

	users := make(map[string]models.User, len(raw))
	for id, rec := range raw {
		u := models.User{ID: id}
		var profile map[string]interface{}
		if err := json.Unmarshal(rec, &profile); err == nil {
			u.Profile = profile
		}
		users[id] = u
	}
	return users, nil
}

// Appointments fetches the appointments collection ordered by key.
func (c *Client) Appointments(ctx context.Context) ([]models.Appointment, error) {
	var raw map[string]models.Appointment
	if err := c.getCollection(ctx, OpGetAppointments, "appointments", &raw); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.Appointment, 0, len(ids))
	for _, id := range ids {
		a := raw[id]
		a.ID = id
		out = append(out, a)
	}
	return out, nil
}

// CreateAppointment posts a new appointment and returns the assigned key.
func (c *Client) CreateAppointment(ctx context.Context, appt models.Appointment) (string, error) {
	var resp struct {
		Name string `json:"name"`
	}
	if err := c.send(ctx, OpCreateAppointment, http.MethodPost, "appointments", appt, &resp); err != nil {
		return "", err
	}
	c.invalidate(ctx, "appointments")
	if resp.Name == "" {
		return "", &TransportError{Partition: c.partition, Op: OpCreateAppointment, Err: fmt.Errorf("response carries no key")}
	}
	return resp.Name, nil
}

// ReplaceAppointment overwrites the appointment under id.
func (c *Client) ReplaceAppointment(ctx context.Context, id string, appt models.Appointment) error {
	path := "appointments/" + url.PathEscape(id)
	if err := c.send(ctx, OpPutAppointment, http.MethodPut, path, appt, nil); err != nil {
		return err
	}
	c.invalidate(ctx, "appointments")
	return nil
}

// DeleteAppointment removes the appointment under id.
func (c *Client) DeleteAppointment(ctx context.Context, id string) error {
	path := "appointments/" + url.PathEscape(id)
	if err := c.send(ctx, OpDeleteAppointment, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	c.invalidate(ctx, "appointments")
	return nil
}

func (c *Client) getCollection(ctx context.Context, op, collection string, out any) error {
	key := c.cacheKey(collection)
	if c.readCache(ctx, key, out) {
		return nil
	}

	var body json.RawMessage
	if err := c.send(ctx, op, http.MethodGet, collection, nil, &body); err != nil {
		return err
	}
	// An empty collection is returned as a JSON null; out keeps its zero value.
	if len(body) == 0 || string(body) == "null" {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Partition: c.partition, Op: op, Err: fmt.Errorf("decode %s: %w", collection, err)}
	}
	c.writeCache(ctx, key, body)
	return nil
}

func (c *Client) send(ctx context.Context, op, method, path string, body, out any) error {
	started := time.Now()
	err := c.do(ctx, op, method, path, body, out)
	metrics.ObserveStoreRequest(op, started)
	if err != nil {
		metrics.IncPartitionError(c.partition, op)
	}
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Partition: c.partition, Op: op, Err: err}
		}
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return &TransportError{Partition: c.partition, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Partition: c.partition, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &TransportError{Partition: c.partition, Op: op, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return &TransportError{Partition: c.partition, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	u := c.baseURL + "/" + path + ".json"
	if c.auth != "" {
		u += "?auth=" + url.QueryEscape(c.auth)
	}
	return u
}

func (c *Client) cacheKey(collection string) string {
	return fmt.Sprintf("medadmin:partition:%d:%s", c.partition, collection)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		metrics.IncCacheLookup(false)
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		metrics.IncCacheLookup(false)
		return false
	}
	metrics.IncCacheLookup(true)
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, data []byte) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) invalidate(ctx context.Context, collection string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, c.cacheKey(collection)).Err()
}
