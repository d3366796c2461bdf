// Package apiclient is the Go client for the drift HTTP API. It decodes the
// API's JSON envelope and maps error statuses onto sentinel errors so callers
// can branch without parsing messages.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/driftapp/drift-app-backend/api"
)

var (
	// ErrUnauthenticated means the token is missing, expired or invalid.
	ErrUnauthenticated = fmt.Errorf("not authenticated")
	// ErrUnauthorized means the caller is authenticated but not allowed to
	// touch the resource, e.g. deleting someone else's post.
	ErrUnauthorized = fmt.Errorf("not authorized")
	// ErrNotFound means the resource does not exist or has expired.
	ErrNotFound = fmt.Errorf("not found")
	// ErrInvalidInput means the server rejected the request data.
	ErrInvalidInput = fmt.Errorf("invalid input")
	// ErrRateLimited means the post-creation rate limit was hit.
	ErrRateLimited = fmt.Errorf("rate limited")
	// ErrQueryFailed wraps server-side failures (5xx).
	ErrQueryFailed = fmt.Errorf("query failed")
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to a drift API server. It is safe for concurrent use once the
// token is set; SetToken and Login must not race queries.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New creates a client against baseURL. A nil httpClient falls back to a
// default with a sane timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// SetToken installs a previously obtained JWT.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req *api.Register) error {
	return c.do(ctx, http.MethodPost, "/register", nil, req, nil)
}

// Login exchanges credentials for a JWT and installs it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*api.LoginResponse, error) {
	var login api.LoginResponse
	err := c.do(ctx, http.MethodPost, "/login", nil, &api.Login{Email: email, Password: password}, &login)
	if err != nil {
		return nil, err
	}
	c.token = login.Token
	return &login, nil
}

// RefreshToken obtains a fresh JWT and installs it on the client.
func (c *Client) RefreshToken(ctx context.Context) (*api.LoginResponse, error) {
	var login api.LoginResponse
	if err := c.do(ctx, http.MethodGet, "/refresh", nil, nil, &login); err != nil {
		return nil, err
	}
	c.token = login.Token
	return &login, nil
}

// CreatePost publishes content anchored at the given coordinates.
func (c *Client) CreatePost(ctx context.Context, content string, lat, lng float64) (*api.Post, error) {
	var post api.Post
	req := &api.CreatePost{
		Content:  content,
		Location: api.Location{Type: "Point", Coordinates: []float64{lng, lat}},
	}
	if err := c.do(ctx, http.MethodPost, "/posts", nil, req, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// GetPost fetches a single post. Expired posts report ErrNotFound.
func (c *Client) GetPost(ctx context.Context, id string) (*api.Post, error) {
	var post api.Post
	if err := c.do(ctx, http.MethodGet, "/posts/"+id, nil, nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes the caller's own post before its natural expiry.
func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/posts/"+id, nil, nil, nil)
}

// NearbyPosts returns unexpired posts within radiusKm of the center, newest
// first. The server clamps the radius into its allowed range.
func (c *Client) NearbyPosts(ctx context.Context, lat, lng, radiusKm float64) ([]api.Post, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	query.Set("radiusKm", strconv.FormatFloat(radiusKm, 'f', -1, 64))

	var wrapper api.PostsWrapper
	if err := c.do(ctx, http.MethodGet, "/posts/nearby", query, nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Posts, nil
}

// NearbyUsers returns active users within radiusKm of the center, nearest
// first. term optionally narrows results by name.
func (c *Client) NearbyUsers(ctx context.Context, lat, lng, radiusKm float64, term string) ([]api.NearbyUser, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	query.Set("radiusKm", strconv.FormatFloat(radiusKm, 'f', -1, 64))
	if term != "" {
		query.Set("term", term)
	}

	var wrapper api.NearbyUsersWrapper
	if err := c.do(ctx, http.MethodGet, "/users/nearby", query, nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Users, nil
}

// FriendsFeed returns the unexpired posts of the caller's friends, newest
// first, regardless of where they were posted.
func (c *Client) FriendsFeed(ctx context.Context) ([]api.Post, error) {
	var wrapper api.PostsWrapper
	if err := c.do(ctx, http.MethodGet, "/posts/feed", nil, nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Posts, nil
}

// Profile returns the caller's own profile.
func (c *Client) Profile(ctx context.Context) (map[string]interface{}, error) {
	var profile map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/profile", nil, nil, &profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// PushLocation uploads a fresh position fix. Updated reports whether the
// server applied it: a fix older than the stored one is discarded without
// being an error.
func (c *Client) PushLocation(ctx context.Context, lat, lng float64, capturedAt time.Time) (bool, error) {
	req := &api.UpdateLocation{
		Location: api.Location{Type: "Point", Coordinates: []float64{lng, lat}},
	}
	if !capturedAt.IsZero() {
		req.CapturedAt = &capturedAt
	}
	var result api.UpdateLocationResponse
	if err := c.do(ctx, http.MethodPost, "/profile/location", nil, req, &result); err != nil {
		return false, err
	}
	return result.Updated, nil
}

// do runs one request against the API and decodes the response envelope into
// out, which may be nil when no data is expected.
func (c *Client) do(ctx context.Context, method, apiPath string, query url.Values, body, out interface{}) error {
	u, err := url.Parse(c.baseURL + apiPath)
	if err != nil {
		return err
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope api.Response
	envelope.Data = out
	if len(data) > 0 {
		if err := json.Unmarshal(data, &envelope); err != nil {
			return fmt.Errorf("invalid response payload: %w", err)
		}
	}

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, envelope.Header.Message)
	}
	return nil
}

// statusError maps an HTTP status onto the client's sentinel errors, keeping
// the server message for context.
func statusError(status int, message string) error {
	var sentinel error
	switch status {
	case http.StatusBadRequest:
		sentinel = ErrInvalidInput
	case http.StatusUnauthorized:
		sentinel = ErrUnauthenticated
	case http.StatusForbidden:
		sentinel = ErrUnauthorized
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	default:
		sentinel = ErrQueryFailed
	}
	if message == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}
