package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// restClient is the shared HTTP plumbing both adapters build on, ported
// from connectors/phemexConnector.go's NewClient/doRequest/signRequest.
// Retry policy lives entirely in resty's built-in retry machinery rather
// than a hand-rolled backoff loop, matching the teacher exactly.
const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type restClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 || code == 408 {
		return true
	}
	return false
}

func newRestClient(apiKey, apiSecret, baseURL string) *restClient {
	retryCount := defaultRetryAttempts - 1

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &restClient{apiKey: apiKey, apiSecret: apiSecret, baseURL: baseURL, http: httpClient}
}

func signRequest(path, query, body string, expiry int64, secret string) string {
	base := path
	if query != "" {
		base += query
	}
	base += fmt.Sprintf("%d", expiry)
	if body != "" {
		base += body
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *restClient) doRequest(method, path, query string, body []byte) (*apiResponse, error) {
	expiry := time.Now().Add(1 * time.Minute).Unix()
	sig := signRequest(path, query, string(body), expiry, c.apiSecret)

	req := c.http.R().
		SetHeader("x-access-token", c.apiKey).
		SetHeader("x-request-expiry", fmt.Sprintf("%d", expiry)).
		SetHeader("x-request-signature", sig)

	if query != "" {
		req = req.SetQueryString(query)
	}
	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}

	raw := resp.Body()

	if resp.StatusCode() == 401 {
		return nil, &ErrPermission{Detail: string(raw)}
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func (c *restClient) logRequest(op, symbol string) {
	logger.WithFields(map[string]interface{}{
		"component": "exchange", "op": op, "symbol": symbol,
	}).Debug("exchange request")
}
