package upstream

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/nodusnet/console/pkg/rbac"
)

// Client talks to the platform server's REST API. A client carries either no
// credentials (login only) or a token source bound to one user's session.
// Token-bound clients implement rbac.Source.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource authenticates every request with tokens from source
func WithTokenSource(source oauth2.TokenSource) Option {
	return func(c *Client) {
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc := *c.httpClient
		hc.Transport = &oauth2.Transport{Source: source, Base: base}
		c.httpClient = &hc
	}
}

// WithTracing wraps the transport with OpenTelemetry instrumentation
func WithTracing() Option {
	return func(c *Client) {
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc := *c.httpClient
		hc.Transport = otelhttp.NewTransport(base)
		c.httpClient = &hc
	}
}

// NewClient creates a client for the platform server at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid platform URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid platform URL scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		userAgent:  "nodus-console",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithToken returns a copy of the client authenticated with the given token.
// Used to bind a session's credentials after login.
func (c *Client) WithToken(token *Token) *Client {
	bound := *c
	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   "Bearer",
	})
	WithTokenSource(source)(&bound)
	return &bound
}

// Login exchanges credentials for a token pair
func (c *Client) Login(ctx context.Context, username, password string) (*Token, error) {
	body := map[string]string{"username": username, "password": password}
	var token Token
	if err := c.do(ctx, http.MethodPost, "/api/token/user", nil, body, &token); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return &token, nil
}

// Refresh exchanges a refresh token for a fresh token pair
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var token Token
	if err := c.do(ctx, http.MethodPost, "/api/token/refresh", nil, body, &token); err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return &token, nil
}

// ruleRecord is the catalog wire format; axis values are validated before a
// rule enters the console's model.
type ruleRecord struct {
	ID        int64  `json:"id"`
	Operation string `json:"operation"`
	Name      string `json:"name"`
	Scope     string `json:"scope"`
}

// Rules fetches the full rule catalog, following pagination. Rules with
// unknown operation, resource or scope values are skipped: the console
// treats triples it cannot interpret as non-applicable rather than failing
// the whole catalog.
func (c *Client) Rules(ctx context.Context) ([]rbac.Rule, error) {
	var rules []rbac.Rule
	page := "/api/rule"
	for page != "" {
		var records []ruleRecord
		next, err := c.getPage(ctx, page, &records)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch rule catalog: %w", err)
		}
		for _, rec := range records {
			rule, ok := parseRule(rec)
			if !ok {
				continue
			}
			rules = append(rules, rule)
		}
		page = next
	}
	return rules, nil
}

func parseRule(rec ruleRecord) (rbac.Rule, bool) {
	op, err := rbac.ParseOperation(rec.Operation)
	if err != nil {
		return rbac.Rule{}, false
	}
	res, err := rbac.ParseResource(rec.Name)
	if err != nil {
		return rbac.Rule{}, false
	}
	scope, err := rbac.ParseScope(rec.Scope)
	if err != nil {
		return rbac.Rule{}, false
	}
	return rbac.Rule{ID: rec.ID, Operation: op, Resource: res, Scope: scope}, true
}

// userRecord is the user wire format with embedded roles and direct rules
type userRecord struct {
	ID             int64        `json:"id"`
	Username       string       `json:"username"`
	Email          string       `json:"email"`
	OrganizationID int64        `json:"organization_id"`
	Rules          []ruleRecord `json:"rules"`
	Roles          []roleRecord `json:"roles"`
}

type roleRecord struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	OrganizationID *int64       `json:"organization_id"`
	Rules          []ruleRecord `json:"rules"`
}

func (rec userRecord) toUser() *rbac.User {
	user := &rbac.User{
		ID:             rec.ID,
		Username:       rec.Username,
		Email:          rec.Email,
		OrganizationID: rec.OrganizationID,
	}
	for _, r := range rec.Rules {
		if rule, ok := parseRule(r); ok {
			user.Rules = append(user.Rules, rule)
		}
	}
	for _, r := range rec.Roles {
		user.Roles = append(user.Roles, r.toRole())
	}
	return user
}

func (rec roleRecord) toRole() rbac.Role {
	role := rbac.Role{
		ID:             rec.ID,
		Name:           rec.Name,
		Description:    rec.Description,
		OrganizationID: rec.OrganizationID,
	}
	for _, r := range rec.Rules {
		if rule, ok := parseRule(r); ok {
			role.Rules = append(role.Rules, rule)
		}
	}
	return role
}

// CurrentUser fetches the logged-in user's record including roles and rules
func (c *Client) CurrentUser(ctx context.Context) (*rbac.User, error) {
	var rec userRecord
	if err := c.do(ctx, http.MethodGet, "/api/user/current", nil, nil, &rec); err != nil {
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	return rec.toUser(), nil
}

// User fetches one user's record including roles and rules
func (c *Client) User(ctx context.Context, id int64) (*rbac.User, error) {
	var rec userRecord
	path := "/api/user/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &rec); err != nil {
		return nil, fmt.Errorf("failed to fetch user %d: %w", id, err)
	}
	return rec.toUser(), nil
}

// Roles lists roles, optionally filtered to one organization (nil lists all
// roles visible to the caller).
func (c *Client) Roles(ctx context.Context, organizationID *int64) ([]rbac.Role, error) {
	query := url.Values{}
	if organizationID != nil {
		query.Set("organization_id", strconv.FormatInt(*organizationID, 10))
	}

	var roles []rbac.Role
	page := "/api/role"
	first := true
	for page != "" {
		var records []roleRecord
		q := url.Values{}
		if first {
			q = query
			first = false
		}
		next, err := c.getPageQuery(ctx, page, q, &records)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch roles: %w", err)
		}
		for _, rec := range records {
			roles = append(roles, rec.toRole())
		}
		page = next
	}
	return roles, nil
}

// Role fetches one role with its rules
func (c *Client) Role(ctx context.Context, id int64) (*rbac.Role, error) {
	var rec roleRecord
	path := "/api/role/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &rec); err != nil {
		return nil, fmt.Errorf("failed to fetch role %d: %w", id, err)
	}
	role := rec.toRole()
	return &role, nil
}

// CreateRole creates a role from the matrix editor's emitted rule list
func (c *Client) CreateRole(ctx context.Context, spec RoleSpec) (*rbac.Role, error) {
	var rec roleRecord
	if err := c.do(ctx, http.MethodPost, "/api/role", nil, spec, &rec); err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	role := rec.toRole()
	return &role, nil
}

// UpdateRole replaces a role's definition, including its complete rule list
func (c *Client) UpdateRole(ctx context.Context, id int64, spec RoleSpec) (*rbac.Role, error) {
	var rec roleRecord
	path := "/api/role/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodPatch, path, nil, spec, &rec); err != nil {
		return nil, fmt.Errorf("failed to update role %d: %w", id, err)
	}
	role := rec.toRole()
	return &role, nil
}

// SetUserRules replaces a user's role and direct-rule assignments
func (c *Client) SetUserRules(ctx context.Context, userID int64, roleIDs, ruleIDs []int64) (*rbac.User, error) {
	body := map[string][]int64{"roles": roleIDs, "rules": ruleIDs}
	var rec userRecord
	path := "/api/user/" + strconv.FormatInt(userID, 10)
	if err := c.do(ctx, http.MethodPatch, path, nil, body, &rec); err != nil {
		return nil, fmt.Errorf("failed to update user %d assignments: %w", userID, err)
	}
	return rec.toUser(), nil
}

// Organizations lists all organizations visible to the caller
func (c *Client) Organizations(ctx context.Context) ([]Organization, error) {
	var out []Organization
	page := "/api/organization"
	for page != "" {
		var records []Organization
		next, err := c.getPage(ctx, page, &records)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch organizations: %w", err)
		}
		out = append(out, records...)
		page = next
	}
	return out, nil
}

// Collaborations lists all collaborations visible to the caller
func (c *Client) Collaborations(ctx context.Context) ([]Collaboration, error) {
	var out []Collaboration
	page := "/api/collaboration"
	for page != "" {
		var records []Collaboration
		next, err := c.getPage(ctx, page, &records)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch collaborations: %w", err)
		}
		out = append(out, records...)
		page = next
	}
	return out, nil
}

// Nodes lists compute nodes visible to the caller
func (c *Client) Nodes(ctx context.Context) ([]Node, error) {
	var out []Node
	page := "/api/node"
	for page != "" {
		var records []Node
		next, err := c.getPage(ctx, page, &records)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch nodes: %w", err)
		}
		out = append(out, records...)
		page = next
	}
	return out, nil
}

// Tasks lists computation tasks visible to the caller
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var out []Task
	page := "/api/task"
	for page != "" {
		var records []Task
		next, err := c.getPage(ctx, page, &records)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tasks: %w", err)
		}
		out = append(out, records...)
		page = next
	}
	return out, nil
}

// Ping checks that the platform API is reachable. Used by the console's
// readiness probe; it needs no token.
func (c *Client) Ping(ctx context.Context) error {
	var out map[string]interface{}
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out)
}

// getPage fetches one page of an enveloped list and returns the next page
// path, if any.
func (c *Client) getPage(ctx context.Context, path string, out interface{}) (string, error) {
	return c.getPageQuery(ctx, path, nil, out)
}

func (c *Client) getPageQuery(ctx context.Context, path string, query url.Values, out interface{}) (string, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, path, query, nil, &env); err != nil {
		return "", err
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return "", fmt.Errorf("failed to decode page data: %w", err)
	}
	return env.Links.Next, nil
}

// do performs one API request and decodes a JSON response into out
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := *c.baseURL
	parsed, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid request path %q: %w", path, err)
	}
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + parsed.Path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	} else if parsed.RawQuery != "" {
		u.RawQuery = parsed.RawQuery
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Msg   string `json:"msg"`
		Error string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && json.Unmarshal(data, &payload) == nil {
		if payload.Msg != "" {
			apiErr.Message = payload.Msg
		} else {
			apiErr.Message = payload.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
