// Package google handles OAuth2 authentication and service construction
// shared by the Calendar and Gmail adapters.
package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// OAuthConfig holds client credentials and requested scopes.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// DefaultOAuthConfig returns read-oriented scopes for both APIs, with
// credentials from the environment.
func DefaultOAuthConfig() OAuthConfig {
	return OAuthConfig{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  "http://localhost:8765/callback",
		Scopes: []string{
			calendar.CalendarReadonlyScope,
			calendar.CalendarEventsScope,
			gmail.GmailModifyScope,
		},
	}
}

// OAuthClient performs token exchange and builds authenticated services.
type OAuthClient struct {
	config *oauth2.Config
}

// NewOAuthClient creates an OAuth client.
func NewOAuthClient(cfg OAuthConfig) *OAuthClient {
	return &OAuthClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     oauthgoogle.Endpoint,
		},
	}
}

// AuthURL returns the URL the user must visit to authorize access.
func (c *OAuthClient) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges an authorization code for tokens.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return c.config.Exchange(ctx, code)
}

// RefreshToken refreshes an expired token.
func (c *OAuthClient) RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	return c.config.TokenSource(ctx, token).Token()
}

// HTTPClient returns an HTTP client that authenticates with token.
func (c *OAuthClient) HTTPClient(ctx context.Context, token *oauth2.Token) *http.Client {
	return c.config.Client(ctx, token)
}

// CalendarService builds a Calendar API service from a token.
func (c *OAuthClient) CalendarService(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(c.HTTPClient(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return svc, nil
}

// GmailService builds a Gmail API service from a token.
func (c *OAuthClient) GmailService(ctx context.Context, token *oauth2.Token) (*gmail.Service, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(c.HTTPClient(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// Authorize runs the complete local-callback flow: prints the consent URL,
// waits for the redirect, and exchanges the code.
func (c *OAuthClient) Authorize(ctx context.Context, port int) (*oauth2.Token, error) {
	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	srv := newLocalAuthServer(port, state)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("start auth callback server: %w", err)
	}
	defer srv.Stop(ctx)

	fmt.Printf("\nOpen this URL in your browser to authorize Meridian:\n\n%s\n\n", c.AuthURL(state))
	fmt.Println("Waiting for authorization...")

	code, err := srv.WaitForCode(ctx, 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}

	token, err := c.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return token, nil
}

// randomState produces an unguessable CSRF token for the consent flow.
func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
