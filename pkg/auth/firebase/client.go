package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/user/vernacular/internal/types"
	"github.com/user/vernacular/pkg/auth"
)

// DefaultBaseURL is the Identity Toolkit REST endpoint.
const DefaultBaseURL = "https://identitytoolkit.googleapis.com"

// Client implements the auth.Backend interface for the Identity Toolkit
// email/password REST API.
type Client struct {
	config     *auth.Config
	httpClient *http.Client

	mu      sync.Mutex
	idToken string
}

// New creates a new Identity Toolkit client. It fails when no API key is set.
func New(config *auth.Config) (*Client, error) {
	if config == nil || strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("creating firebase client: api key is required")
	}
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		config: &cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IDToken     string `json:"idToken"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn signs in with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*types.Identity, error) {
	body, err := json.Marshal(signInRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.config.BaseURL + "/v1/accounts:signInWithPassword?key=" + url.QueryEscape(c.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &auth.BackendError{Code: auth.CodeNetworkFailed, Message: "sending request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &auth.BackendError{Code: auth.CodeNetworkFailed, Message: "reading response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		if err := json.Unmarshal(respBody, &er); err != nil || er.Error.Message == "" {
			return nil, &auth.BackendError{
				Code:    auth.CodeInternal,
				Message: fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody)),
			}
		}
		return nil, &auth.BackendError{Code: MapErrorMessage(er.Error.Message), Message: er.Error.Message}
	}

	var sr signInResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if sr.LocalID == "" {
		return nil, &auth.BackendError{Code: auth.CodeInternal, Message: "response carried no user id"}
	}

	c.mu.Lock()
	c.idToken = sr.IDToken
	c.mu.Unlock()

	id := &types.Identity{
		ID:          types.UserID(sr.LocalID),
		DisplayName: sr.DisplayName,
	}
	if sr.Email != "" {
		e := sr.Email
		id.Email = &e
	}
	return id, nil
}

// SignOut drops the cached ID token. The REST API keeps no server-side
// session for password sign-ins.
func (c *Client) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.idToken = ""
	c.mu.Unlock()
	return nil
}

// SignedIn reports whether a token from a successful sign-in is held.
func (c *Client) SignedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idToken != ""
}

// MapErrorMessage converts an Identity Toolkit error message such as
// "TOO_MANY_ATTEMPTS_TRY_LATER : Access disabled" into an auth/* code.
func MapErrorMessage(msg string) string {
	key := msg
	if i := strings.IndexAny(key, " :"); i >= 0 {
		key = key[:i]
	}
	switch key {
	case "EMAIL_NOT_FOUND":
		return auth.CodeUserNotFound
	case "INVALID_PASSWORD":
		return auth.CodeWrongPassword
	case "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED":
		return auth.CodeInvalidCredential
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return auth.CodeTooManyRequests
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return auth.CodeInvalidEmail
	default:
		return auth.CodeInternal
	}
}
