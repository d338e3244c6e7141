package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"saxo-trader/internal/config"
	apperrors "saxo-trader/internal/errors"
	"saxo-trader/internal/models"
	"saxo-trader/pkg/utils"
)

// AuthClient talks to the Saxo logon server. It implements the token
// exchange used by the session manager and the one-time authorization
// code grant used by the login flow.
type AuthClient struct {
	env       config.Environment
	appKey    string
	appSecret string
	http      *http.Client
	retry     utils.RetryConfig
}

// NewAuthClient creates an auth client for the environment.
func NewAuthClient(env config.Environment, creds config.AppCredentials) *AuthClient {
	return &AuthClient{
		env:       env,
		appKey:    creds.AppKey,
		appSecret: creds.AppSecret,
		http:      &http.Client{Timeout: 15 * time.Second},
		retry: utils.RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  300 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2.0,
			RetryIf:       apperrors.IsTransient,
		},
	}
}

// AuthorizeURL returns the URL the user must visit to grant access.
func (a *AuthClient) AuthorizeURL(redirectURI, state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", a.appKey)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	return a.env.AuthURL + "/authorize?" + q.Encode()
}

// ExchangeCode trades an authorization code for the initial token pair.
func (a *AuthClient) ExchangeCode(ctx context.Context, code, redirectURI string) (models.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	return a.tokenRequest(ctx, form)
}

// Exchange trades a refresh token for a new token pair. Transient
// logon-server failures are retried once before the failure counts
// against the manager's renewal budget.
func (a *AuthClient) Exchange(ctx context.Context, refreshToken string) (models.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return utils.RetryWithResult(ctx, a.retry, func() (models.Token, error) {
		return a.tokenRequest(ctx, form)
	})
}

type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int    `json:"expires_in"`
	RefreshTokenExpiresIn int    `json:"refresh_token_expires_in"`
}

func (a *AuthClient) tokenRequest(ctx context.Context, form url.Values) (models.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.env.AuthURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return models.Token{}, fmt.Errorf("building token request: %w", err)
	}
	req.SetBasicAuth(a.appKey, a.appSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(req)
	if err != nil {
		return models.Token{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return models.Token{}, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Token{}, apperrors.NewBrokerError(resp.StatusCode, "token_request_failed", strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return models.Token{}, fmt.Errorf("parsing token response: %w", err)
	}
	if tr.AccessToken == "" {
		return models.Token{}, apperrors.New("token response carried no access token")
	}

	now := time.Now()
	return models.Token{
		AccessToken:      tr.AccessToken,
		RefreshToken:     tr.RefreshToken,
		ObtainedAt:       now,
		AccessExpiresAt:  now.Add(time.Duration(tr.ExpiresIn) * time.Second),
		RefreshExpiresAt: now.Add(time.Duration(tr.RefreshTokenExpiresIn) * time.Second),
		Environment:      a.env.Name,
	}, nil
}
