package marzban

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"marzban-tg-admin/internal/config"
	"marzban-tg-admin/internal/constants"
	apperrors "marzban-tg-admin/internal/errors"
	"marzban-tg-admin/internal/models"
)

// Client represents a Marzban API client
type Client struct {
	httpClient *resty.Client
	cfg        config.MarzbanConfig
	token      string
	mu         sync.RWMutex
	logger     *logrus.Logger
}

// tokenResponse represents the response of the token endpoint
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ListUsersParams filters the user listing
type ListUsersParams struct {
	Status models.PanelUserStatus
	Offset int
	Limit  int
}

// NewClient creates a Marzban API client and obtains an access token.
// The client cannot be used without a token, so a failed login is returned as
// a ConnectivityError.
func NewClient(ctx context.Context, cfg config.MarzbanConfig, logger *logrus.Logger) (*Client, error) {
	httpClient := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(constants.DefaultTimeout * time.Second)

	c := &Client{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,
	}

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}

	logger.Infof("MarzbanAPI initialized for %s", cfg.URL)
	return c, nil
}

// Refresh requests a new access token and replaces the cached one
func (c *Client) Refresh(ctx context.Context) error {
	c.logger.Debugf("Requesting token from %s/api/admin/token", c.cfg.URL)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.Username, c.cfg.Password).
		SetFormData(map[string]string{
			"grant_type": "password",
			"username":   c.cfg.Username,
			"password":   c.cfg.Password,
		}).
		Post("/api/admin/token")
	if err != nil {
		c.logger.Errorf("Token request failed: %v", err)
		return &apperrors.ConnectivityError{Target: "Marzban API", Err: err}
	}

	if !resp.IsSuccess() {
		c.logger.Errorf("Token request failed - Status: %d, Response: %s", resp.StatusCode(), resp.String())
		return &apperrors.ConnectivityError{
			Target: "Marzban API",
			Err:    &apperrors.PanelAPIError{Operation: "token", Status: resp.StatusCode(), Body: resp.String()},
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return &apperrors.ConnectivityError{Target: "Marzban API", Err: fmt.Errorf("failed to parse token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return &apperrors.ConnectivityError{Target: "Marzban API", Err: errors.New("empty access token received")}
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	c.mu.Unlock()

	c.logger.Info("Successfully obtained access token")
	return nil
}

// Token returns the cached access token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// request performs an authenticated request and decodes a JSON response into out
func (c *Client) request(ctx context.Context, operation, method, path string, query url.Values, body interface{}, out interface{}) error {
	req := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.Token()).
		SetHeader("Accept", "application/json")

	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	c.logger.Debugf("Making %s request to %s%s", method, c.cfg.URL, path)

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Errorf("Request failed: %v", err)
		return &apperrors.ConnectivityError{Target: "Marzban API", Err: err}
	}

	c.logger.Debugf("Response status: %d", resp.StatusCode())

	if !resp.IsSuccess() {
		apiErr := &apperrors.PanelAPIError{Operation: operation, Status: resp.StatusCode(), Body: resp.String()}
		if resp.StatusCode() != http.StatusNotFound {
			c.logger.Error(apiErr.Error())
		}
		return apiErr
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", operation, err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the panel
func IsNotFound(err error) bool {
	var apiErr *apperrors.PanelAPIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// DefaultUserPayload returns the fields sent for every new user unless overridden.
// Empty credentials are generated by the panel.
func DefaultUserPayload() map[string]interface{} {
	return map[string]interface{}{
		"proxies": map[string]interface{}{
			"vmess":       map[string]interface{}{"id": ""},
			"vless":       map[string]interface{}{"id": ""},
			"trojan":      map[string]interface{}{"password": ""},
			"shadowsocks": map[string]interface{}{"password": ""},
		},
		"inbounds": map[string]interface{}{
			"vmess":       []string{"VMESS_INBOUND"},
			"vless":       []string{"VLESS TCP REALITY"},
			"trojan":      []string{"TROJAN_INBOUND"},
			"shadowsocks": []string{"SHADOWSOCKS_INBOUND"},
		},
		"data_limit":                constants.DefaultDataLimit,
		"data_limit_reset_strategy": "no_reset",
		"expire":                    nil,
		"status":                    string(models.PanelUserActive),
		"note":                      "",
	}
}

// CreateUser creates a user from the default payload overlaid with fields.
// fields must contain a non-empty username.
func (c *Client) CreateUser(ctx context.Context, fields map[string]interface{}) (*models.PanelUser, error) {
	payload := DefaultUserPayload()
	for k, v := range fields {
		payload[k] = v
	}

	username, _ := payload["username"].(string)
	if username == "" {
		return nil, &apperrors.ValidationError{Field: "username", Message: "username is required"}
	}

	var user models.PanelUser
	if err := c.request(ctx, "create user", http.MethodPost, "/api/user", nil, payload, &user); err != nil {
		return nil, err
	}

	c.logger.Infof("User %s created", username)
	return &user, nil
}

// GetUser returns a user, or nil when the panel does not know it
func (c *Client) GetUser(ctx context.Context, username string) (*models.PanelUser, error) {
	var user models.PanelUser
	err := c.request(ctx, "get user", http.MethodGet, "/api/user/"+url.PathEscape(username), nil, nil, &user)
	if IsNotFound(err) {
		c.logger.Warnf("User %s not found", username)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser modifies the given fields of a user
func (c *Client) UpdateUser(ctx context.Context, username string, fields map[string]interface{}) (*models.PanelUser, error) {
	var user models.PanelUser
	if err := c.request(ctx, "update user", http.MethodPut, "/api/user/"+url.PathEscape(username), nil, fields, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes a user and reports whether it succeeded. Errors are logged.
func (c *Client) DeleteUser(ctx context.Context, username string) bool {
	if err := c.request(ctx, "delete user", http.MethodDelete, "/api/user/"+url.PathEscape(username), nil, nil, nil); err != nil {
		c.logger.Errorf("Failed to delete user %s: %v", username, err)
		return false
	}
	c.logger.Infof("User %s deleted successfully", username)
	return true
}

// ListUsers returns a page of users
func (c *Client) ListUsers(ctx context.Context, params ListUsersParams) (*models.UsersPage, error) {
	if params.Limit <= 0 {
		params.Limit = constants.DefaultUsersLimit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	query := url.Values{}
	query.Set("offset", strconv.Itoa(params.Offset))
	query.Set("limit", strconv.Itoa(params.Limit))
	if params.Status != "" {
		query.Set("status", string(params.Status))
	}

	var page models.UsersPage
	if err := c.request(ctx, "list users", http.MethodGet, "/api/users", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetSystemStats returns the panel host statistics
func (c *Client) GetSystemStats(ctx context.Context) (*models.SystemStats, error) {
	var stats models.SystemStats
	if err := c.request(ctx, "system stats", http.MethodGet, "/api/system", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// RevokeUserSubscription regenerates a user's subscription credentials
func (c *Client) RevokeUserSubscription(ctx context.Context, username string) (*models.PanelUser, error) {
	var user models.PanelUser
	if err := c.request(ctx, "revoke subscription", http.MethodPost, "/api/user/"+url.PathEscape(username)+"/revoke_sub", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ResetUserTraffic resets a user's used traffic
func (c *Client) ResetUserTraffic(ctx context.Context, username string) (*models.PanelUser, error) {
	var user models.PanelUser
	if err := c.request(ctx, "reset traffic", http.MethodPost, "/api/user/"+url.PathEscape(username)+"/reset_traffic", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserUsage returns a user's traffic per node
func (c *Client) GetUserUsage(ctx context.Context, username string) (*models.UserUsage, error) {
	var usage models.UserUsage
	if err := c.request(ctx, "user usage", http.MethodGet, "/api/user/"+url.PathEscape(username)+"/usage", nil, nil, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

// GetNodes returns all nodes
func (c *Client) GetNodes(ctx context.Context) ([]models.Node, error) {
	var raw json.RawMessage
	if err := c.request(ctx, "list nodes", http.MethodGet, "/api/nodes", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeNodes(raw)
}

// decodeNodes accepts both a bare array and an object with a "nodes" field
func decodeNodes(raw json.RawMessage) ([]models.Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var nodes []models.Node
	if err := json.Unmarshal(raw, &nodes); err == nil {
		return nodes, nil
	}

	var wrapped struct {
		Nodes []models.Node `json:"nodes"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse nodes response: %w", err)
	}
	return wrapped.Nodes, nil
}

// GetNode returns a single node
func (c *Client) GetNode(ctx context.Context, id int) (*models.Node, error) {
	var node models.Node
	if err := c.request(ctx, "get node", http.MethodGet, "/api/node/"+strconv.Itoa(id), nil, nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}
