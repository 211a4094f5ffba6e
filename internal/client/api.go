package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/openclaw/deviceauth-go/internal/httputil"
	"github.com/openclaw/deviceauth-go/internal/model"
)

const defaultHTTPTimeout = 15 * time.Second

// ErrTransient marks a redeem failure worth retrying on the next poll:
// network errors and unexpected statuses.
var ErrTransient = errors.New("transient server error")

// PairingAPI is the server surface the login loop drives.
type PairingAPI interface {
	BeginPairing(ctx context.Context) (*model.PairingStart, error)
	Redeem(ctx context.Context, deviceID string) (*model.Redemption, error)
}

// APIClient talks to the device authorization endpoints over HTTP.
type APIClient struct {
	baseURL string
	client  *http.Client
}

var _ PairingAPI = (*APIClient)(nil)

type APIClientOption func(*APIClient)

func WithHTTPClient(c *http.Client) APIClientOption {
	return func(a *APIClient) {
		a.client = c
	}
}

func NewAPIClient(baseURL string, opts ...APIClientOption) (*APIClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}

	a := &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// BeginPairing requests a new device id and pairing code.
func (a *APIClient) BeginPairing(ctx context.Context) (*model.PairingStart, error) {
	resp, err := a.post(ctx, "/v1/device/code", nil)
	if err != nil {
		return nil, fmt.Errorf("requesting pairing code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("requesting pairing code: %s", describeError(resp))
	}

	var start model.PairingStart
	if err := json.NewDecoder(resp.Body).Decode(&start); err != nil {
		return nil, fmt.Errorf("decoding pairing response: %w", err)
	}
	if start.DeviceID == "" || start.PairingCode == "" {
		return nil, fmt.Errorf("pairing response is missing device id or code")
	}
	return &start, nil
}

// Redeem polls once. Known statuses map to outcomes; anything else wraps ErrTransient.
func (a *APIClient) Redeem(ctx context.Context, deviceID string) (*model.Redemption, error) {
	resp, err := a.post(ctx, "/v1/device/token", map[string]string{"deviceId": deviceID})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var issued model.IssuedCredential
		if err := json.NewDecoder(resp.Body).Decode(&issued); err != nil {
			return nil, fmt.Errorf("decoding credential: %w", err)
		}
		return &model.Redemption{Outcome: model.OutcomeIssued, Credential: &issued}, nil
	case httputil.StatusAuthorizationPending:
		return &model.Redemption{Outcome: model.OutcomePending}, nil
	case http.StatusForbidden:
		return &model.Redemption{Outcome: model.OutcomeDenied}, nil
	case http.StatusGone:
		return &model.Redemption{Outcome: model.OutcomeExpired}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrTransient, describeError(resp))
	}
}

func (a *APIClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	endpoint, err := url.JoinPath(a.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	return a.client.Do(req)
}

func describeError(resp *http.Response) string {
	var body httputil.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
