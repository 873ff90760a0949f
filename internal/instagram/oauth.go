package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

const defaultOAuthScopes = "instagram_basic,instagram_manage_insights,pages_show_list,pages_read_engagement"

// OAuthScopes returns the permission scopes requested during connect,
// overridable via INSTAGRAM_OAUTH_SCOPES.
func OAuthScopes() string {
	if scopes := os.Getenv("INSTAGRAM_OAUTH_SCOPES"); scopes != "" {
		return scopes
	}
	return defaultOAuthScopes
}

// BuildAuthURL builds the dialog URL the user is sent to for approval.
func (c *Client) BuildAuthURL(redirectURI, state string) string {
	u, _ := url.Parse(c.dialogBase + "/dialog/oauth")
	q := u.Query()
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", OAuthScopes())
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}

// tokenResponse covers both shapes the token endpoints answer with.
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	Error        *GraphError `json:"error"`
	ErrorType    string      `json:"error_type"`
	ErrorMessage string      `json:"error_message"`
}

func (r *tokenResponse) errorMessage() string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	if r.Error != nil && r.Error.Message != "" {
		return r.Error.Message
	}
	return ""
}

// ExchangeCode trades an authorization code for an access token, then
// best-effort upgrades it to a long-lived token. A failed long-lived
// exchange falls back to the short-lived token rather than failing the
// whole connect.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResult, error) {
	u, err := url.Parse(c.graphBase + "/oauth/access_token")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client_id", c.clientID)
	q.Set("client_secret", c.clientSecret)
	q.Set("redirect_uri", redirectURI)
	q.Set("code", code)
	u.RawQuery = q.Encode()

	payload, err := c.fetchToken(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code for token: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("token exchange returned no access token")
	}

	result := &TokenResult{
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
		ExpiresIn:   payload.ExpiresIn,
	}
	if result.TokenType == "" {
		result.TokenType = "bearer"
	}

	longLived, err := c.exchangeLongLived(ctx, payload.AccessToken)
	if err == nil && longLived.AccessToken != "" {
		result.AccessToken = longLived.AccessToken
		result.ExpiresIn = longLived.ExpiresIn
		if longLived.TokenType != "" {
			result.TokenType = longLived.TokenType
		}
	}

	return result, nil
}

func (c *Client) exchangeLongLived(ctx context.Context, shortLived string) (*tokenResponse, error) {
	u, err := url.Parse(c.graphBase + "/oauth/access_token")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", c.clientID)
	q.Set("client_secret", c.clientSecret)
	q.Set("fb_exchange_token", shortLived)
	u.RawQuery = q.Encode()

	return c.fetchToken(ctx, u.String())
}

func (c *Client) fetchToken(ctx context.Context, rawURL string) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.mediaClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("instagram token request timed out: %w", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || payload.errorMessage() != "" {
		message := payload.errorMessage()
		if message == "" {
			message = fmt.Sprintf("token request failed (%d)", resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	return &payload, nil
}

// ResolveInstagramUserID finds the Instagram business account id behind a
// token by walking the user's pages. Returns an empty string when no page
// has a linked Instagram account.
func (c *Client) ResolveInstagramUserID(ctx context.Context, token string) (string, error) {
	u, err := url.Parse(c.graphBase + "/me/accounts")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("fields", "instagram_business_account{id}")
	q.Set("limit", "50")
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	var payload struct {
		Data []struct {
			InstagramBusinessAccount *struct {
				ID string `json:"id"`
			} `json:"instagram_business_account"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.mediaClient, u.String(), &payload, "instagram accounts request timed out"); err != nil {
		return "", err
	}

	for _, page := range payload.Data {
		if page.InstagramBusinessAccount != nil && page.InstagramBusinessAccount.ID != "" {
			return page.InstagramBusinessAccount.ID, nil
		}
	}
	return "", nil
}
