// Package oauthtoken implements the OAuth2 client-credentials token source
// used to authenticate against the remote signing service: a cached bearer
// token, re-requested only once its safety margin has elapsed.
package oauthtoken

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// safetyMargin is the minimum remaining validity a cached token must have
// before it is reused; once within this margin of expiry, a fresh token is
// requested instead.
const safetyMargin = 30 * time.Second

// Config holds the client-credentials grant parameters.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Audience     string
}

// Source vends bearer tokens, caching the underlying token until it is
// within safetyMargin of expiring.
type Source struct {
	ts oauth2.TokenSource
}

// New constructs a Source. The client secret is sent via HTTP Basic auth on
// the token request, and audience is sent as a form field, per the
// provider's client-credentials contract.
func New(cfg Config) *Source {
	base := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
		EndpointParams: url.Values{
			"audience": {cfg.Audience},
		},
	}
	return &Source{
		ts: oauth2.ReuseTokenSourceWithExpiry(nil, base.TokenSource(context.Background()), safetyMargin),
	}
}

// BearerToken returns the current access token's secret verbatim, fetching
// or refreshing it as needed.
func (s *Source) BearerToken(ctx context.Context) (string, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return "", fmt.Errorf("fetch oauth token: %w", err)
	}
	return tok.AccessToken, nil
}
