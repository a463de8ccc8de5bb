package gatesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Chaptergate HTTP client. Cookies set by the server
// (the signed auth cookie) are kept in a jar and sent on later calls.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with a cookie jar and no redirect following, so gate
// redirects are reported rather than followed.
func New(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	timeout := 10 * time.Second
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/api",
		Timeout:  timeout,
		HTTPClient: &http.Client{
			Jar:           jar,
			Timeout:       timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

type Act struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	State string `json:"state"`
	Timed bool   `json:"timed,omitempty"`
}

type ActsResponse struct {
	States map[string]string `json:"states"`
	Acts   []Act             `json:"acts"`
}

type Transition struct {
	Act     string `json:"act"`
	From    string `json:"from"`
	To      string `json:"to"`
	Outcome string `json:"outcome"`
}

type PlaqueResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type KeywordResult struct {
	Number int  `json:"number"`
	Match  bool `json:"match"`
}

type Decision struct {
	Decision string `json:"decision"`
	Act      string `json:"act,omitempty"`
	Location string `json:"location,omitempty"`
}

// APIError wraps non-2xx responses. Code, Message and RequestID come from
// the error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s request_id=%s", e.StatusCode, e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Acts returns every act's state.
func (c *Client) Acts(ctx context.Context) (ActsResponse, error) {
	var resp ActsResponse
	err := c.do(ctx, http.MethodGet, "acts", nil, &resp)
	return resp, err
}

// Act returns one act.
func (c *Client) Act(ctx context.Context, id string) (Act, error) {
	var resp Act
	err := c.do(ctx, http.MethodGet, "acts/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Advance moves an act along its transition table. Requires BearerToken.
// An empty outcome means success.
func (c *Client) Advance(ctx context.Context, id, outcome string) (Transition, error) {
	body := map[string]any{}
	if outcome != "" {
		body["outcome"] = outcome
	}
	var resp Transition
	err := c.do(ctx, http.MethodPost, "admin/acts/"+url.PathEscape(id)+"/advance", body, &resp)
	return resp, err
}

// CheckKeyword probes numbered keyword number.
func (c *Client) CheckKeyword(ctx context.Context, number int, keyword string) (KeywordResult, error) {
	var resp KeywordResult
	err := c.do(ctx, http.MethodPost, "keywords/check", map[string]any{"keyword": keyword, "number": number}, &resp)
	return resp, err
}

// ValidatePlaque submits a plaque answer. On success the auth cookie lands in
// the client's jar.
func (c *Client) ValidatePlaque(ctx context.Context, plaqueID, provided string) (PlaqueResult, error) {
	var resp PlaqueResult
	err := c.do(ctx, http.MethodPost, "plaques/validate", map[string]any{"plaqueId": plaqueID, "provided": provided}, &resp)
	return resp, err
}

// PlaqueStatus returns solved/unsolved per plaque for the jar's cookie.
func (c *Client) PlaqueStatus(ctx context.Context) (map[string]string, error) {
	var resp struct {
		Plaques map[string]string `json:"plaques"`
	}
	err := c.do(ctx, http.MethodGet, "plaques/status", nil, &resp)
	return resp.Plaques, err
}

// Gate asks where a chapter request would go.
func (c *Client) Gate(ctx context.Context, chapter string) (Decision, error) {
	var resp Decision
	err := c.do(ctx, http.MethodGet, "gate/"+url.PathEscape(chapter), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code      string `json:"code"`
				Message   string `json:"message"`
				RequestID string `json:"request_id"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.RequestID = env.Error.RequestID
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
