// Package apiprobe sweeps the target application's HTTP API with raw,
// browserless requests. Probes are fault-tolerant: an unreachable or
// failing endpoint is reported, never fatal to the sweep.
package apiprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/copymill/webprobe/log"
)

// Check describes one endpoint probe.
type Check struct {
	Name   string
	Method string
	Path   string
	// Body, when non-nil, is marshaled as the JSON request body.
	Body any
	// ExpectStatus, when valid, is the status the endpoint must return
	// for the check to pass. Invalid means any response counts as
	// reachable.
	ExpectStatus null.Int
	// Auth sends the bearer token captured by Login.
	Auth bool
}

// Result is the outcome of one check.
type Result struct {
	Name     string        `json:"name"`
	Method   string        `json:"method"`
	Path     string        `json:"path"`
	Status   int           `json:"status,omitempty"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Prober issues checks against a base URL, carrying the auth token
// across them once Login has succeeded.
type Prober struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
	token   string
}

// New returns a Prober for the application at baseURL.
func New(baseURL string, timeout time.Duration, logger *log.Logger) *Prober {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Prober{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Login authenticates against /api/auth/login and stores the returned
// bearer token for subsequent authed checks.
func (p *Prober) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	resp, err := p.do(ctx, http.MethodPost, "/api/auth/login", body, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if out.Token == "" {
		return fmt.Errorf("login response carried no token")
	}
	p.token = out.Token

	return nil
}

// Token returns the bearer token captured by Login, if any.
func (p *Prober) Token() string { return p.token }

// Health probes /api/health and reports whether it answered 200.
func (p *Prober) Health(ctx context.Context) error {
	resp, err := p.do(ctx, http.MethodGet, "/api/health", nil, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned status %d", resp.StatusCode)
	}
	return nil
}

// Run executes the checks sequentially and returns one result per
// check. Run never returns an error: failures live in the results.
func (p *Prober) Run(ctx context.Context, checks []Check) []Result {
	results := make([]Result, 0, len(checks))
	for _, check := range checks {
		results = append(results, p.run(ctx, check))
	}
	return results
}

func (p *Prober) run(ctx context.Context, check Check) Result {
	result := Result{
		Name:   check.Name,
		Method: check.Method,
		Path:   check.Path,
	}

	start := time.Now()
	resp, err := p.do(ctx, check.Method, check.Path, check.Body, check.Auth)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		p.logger.Warnf("apiprobe", "%s %s unreachable: %v", check.Method, check.Path, err)
		return result
	}
	defer resp.Body.Close() //nolint:errcheck

	result.Status = resp.StatusCode
	if check.ExpectStatus.Valid {
		result.OK = int64(resp.StatusCode) == check.ExpectStatus.Int64
		if !result.OK {
			result.Error = fmt.Sprintf("expected status %d, got %d",
				check.ExpectStatus.Int64, resp.StatusCode)
		}
	} else {
		// Reachability check only.
		result.OK = true
	}
	p.logger.Debugf("apiprobe", "%s %s -> %d in %s",
		check.Method, check.Path, resp.StatusCode, result.Duration)

	return result
}

func (p *Prober) do(ctx context.Context, method, path string, body any, auth bool) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	// Absolute paths probe third-party services the application
	// depends on; everything else is relative to the target.
	url := p.baseURL + path
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		url = path
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// RenderCheck probes the external rendering service the application
// hands asset generation to. url is absolute; any response counts as
// reachable since the service is not ours to assert on.
func RenderCheck(url string) Check {
	return Check{Name: "render service", Method: http.MethodGet, Path: url}
}

// DefaultChecks is the standing endpoint sweep for the target
// application. Login and signup get bodies built from the given
// credentials; generation endpoints get minimal valid payloads.
func DefaultChecks(email, password string) []Check {
	creds := map[string]string{"email": email, "password": password}
	return []Check{
		{Name: "health", Method: http.MethodGet, Path: "/api/health", ExpectStatus: null.IntFrom(http.StatusOK)},
		{Name: "login", Method: http.MethodPost, Path: "/api/auth/login", Body: creds, ExpectStatus: null.IntFrom(http.StatusOK)},
		{Name: "signup duplicate", Method: http.MethodPost, Path: "/api/auth/signup", Body: creds},
		{Name: "clients", Method: http.MethodGet, Path: "/api/clients", Auth: true},
		{Name: "templates", Method: http.MethodGet, Path: "/api/templates", Auth: true},
		{Name: "assets", Method: http.MethodGet, Path: "/api/assets", Auth: true},
		{Name: "ai generate", Method: http.MethodPost, Path: "/api/ai/generate", Auth: true,
			Body: map[string]string{"prompt": "one-line tagline for a probe"}},
		{Name: "parse brief", Method: http.MethodPost, Path: "/api/flow/parse-brief", Auth: true,
			Body: map[string]string{"brief": "Launch campaign for existing customers."}},
		{Name: "generate motivations", Method: http.MethodPost, Path: "/api/flow/generate-motivations", Auth: true,
			Body: map[string]any{"briefData": map[string]string{"title": "Launch", "audience": "customers", "goal": "upsell"}}},
		{Name: "generate copy", Method: http.MethodPost, Path: "/api/flow/generate-copy", Auth: true,
			Body: map[string]any{"motivations": []string{"m1"}}},
	}
}
