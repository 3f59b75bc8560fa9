package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/init4tech/zenith-builder/oauthtoken"
	"github.com/init4tech/zenith-builder/signing"
)

// ErrSignatureError covers every SIGN-stage failure that drops the batch:
// remote signer non-2xx, malformed response body, or a recovered address
// that does not match the authorized sequencer.
var ErrSignatureError = errors.New("signature error")

// RemoteSigner is the remote SIGN-stage collaborator: an authenticated
// HTTP call to the remote signing service (Quincey).
type RemoteSigner interface {
	Sign(ctx context.Context, req signing.Request) (signing.Response, error)
}

// HTTPRemoteSigner posts a SignRequest to the remote signer URL with a
// bearer token obtained from the OAuth2 client-credentials source.
type HTTPRemoteSigner struct {
	url    string
	client *http.Client
	tokens *oauthtoken.Source
}

// NewHTTPRemoteSigner constructs a RemoteSigner against url, authenticating
// with tokens.
func NewHTTPRemoteSigner(url string, tokens *oauthtoken.Source) *HTTPRemoteSigner {
	return &HTTPRemoteSigner{
		url:    url,
		client: &http.Client{},
		tokens: tokens,
	}
}

// Sign posts req as JSON and decodes a SignResponse. A non-2xx response or
// an undecodable body is wrapped in ErrSignatureError.
func (s *HTTPRemoteSigner) Sign(ctx context.Context, req signing.Request) (signing.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return signing.Response{}, fmt.Errorf("marshal sign request: %w", err)
	}

	token, err := s.tokens.BearerToken(ctx)
	if err != nil {
		return signing.Response{}, fmt.Errorf("%w: obtain bearer token: %v", ErrSignatureError, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return signing.Response{}, fmt.Errorf("build sign request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	res, err := s.client.Do(httpReq)
	if err != nil {
		return signing.Response{}, fmt.Errorf("%w: remote signer request failed: %v", ErrSignatureError, err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return signing.Response{}, fmt.Errorf("%w: remote signer returned status %d: %s", ErrSignatureError, res.StatusCode, respBody)
	}

	var resp signing.Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return signing.Response{}, fmt.Errorf("%w: decode sign response: %v", ErrSignatureError, err)
	}
	return resp, nil
}
