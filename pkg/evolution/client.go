package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"evocrm/internal/constants"
	"evocrm/internal/errors"
	"evocrm/internal/retry"
)

const maxErrorBodySize = 4 * 1024

// Client talks to an Evolution API gateway over HTTP.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient builds a gateway client. Zero timeout and retry count fall back
// to the package defaults.
func NewClient(config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = time.Duration(constants.DefaultGatewayTimeoutSec) * time.Second
	}
	if config.RetryCount <= 0 {
		config.RetryCount = constants.DefaultMaxAttempts
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// FetchProfilePictureURL asks the gateway for a contact's avatar URL.
// A contact without an avatar yields an empty URL and no error.
func (c *Client) FetchProfilePictureURL(ctx context.Context, instance, jid string) (string, error) {
	if instance == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "instance name is required")
	}
	if jid == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "jid is required")
	}

	endpoint := "/chat/fetchProfilePictureUrl/" + url.PathEscape(instance)
	payload := map[string]string{"number": jid}

	var resp ProfilePictureResponse
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &resp); err != nil {
		return "", err
	}
	return resp.ProfilePictureURL, nil
}

// FetchInstances lists the instances the gateway currently serves.
func (c *Client) FetchInstances(ctx context.Context) ([]Instance, error) {
	var envelopes []instanceEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/instance/fetchInstances", nil, &envelopes); err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(envelopes))
	for _, env := range envelopes {
		instances = append(instances, env.Instance)
	}
	return instances, nil
}

// doJSON performs one API call with retries on retryable failures and
// decodes the response body into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode request payload")
		}
	}

	backoff := retry.DefaultBackoffConfig()
	backoff.MaxAttempts = c.config.RetryCount

	var respBody []byte
	operation := func() error {
		var err error
		respBody, err = c.doOnce(ctx, method, endpoint, body)
		return err
	}

	if err := retry.NewBackoff(backoff).RetryWithPredicate(ctx, operation, errors.IsRetryable); err != nil {
		return err
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeGatewayAPI,
			fmt.Sprintf("failed to decode response from %s", endpoint))
	}
	return nil
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, reader)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGatewayAPI, "failed to build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("apikey", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WrapRetryable(err, errors.ErrCodeGatewayAPI,
			fmt.Sprintf("gateway request to %s failed", endpoint))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseBodySize))
	if err != nil {
		return nil, errors.WrapRetryable(err, errors.ErrCodeGatewayAPI, "failed to read gateway response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(respBody)
		return nil, errors.NewGatewayError(endpoint, resp.StatusCode,
			fmt.Errorf("gateway returned %d: %s", resp.StatusCode, apiErr))
	}
	return respBody, nil
}

func parseAPIError(body []byte) string {
	if len(body) > maxErrorBodySize {
		body = body[:maxErrorBodySize]
	}
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "no response body"
	}
	return trimmed
}
