// Package healthcheck probes the launched service's health endpoint. It
// backs the container HEALTHCHECK (voiced healthcheck) and the status
// server's /readyz.
package healthcheck

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Contract mirrors the container HEALTHCHECK settings.
type Contract struct {
	Interval time.Duration
	Timeout  time.Duration
	Retries  int
	Path     string
}

// DefaultContract is the image's HEALTHCHECK: every 30s, 10s timeout,
// unhealthy after 3 consecutive failures.
func DefaultContract() Contract {
	return Contract{Interval: 30 * time.Second, Timeout: 10 * time.Second, Retries: 3, Path: "/health"}
}

// Directive renders the Dockerfile HEALTHCHECK instruction for cmd.
func (c Contract) Directive(cmd string) string {
	return fmt.Sprintf("HEALTHCHECK --interval=%s --timeout=%s --retries=%d CMD %s", c.Interval, c.Timeout, c.Retries, cmd)
}

// URL builds the probe target. Wildcard bind addresses are probed on
// loopback.
func URL(host string, port int, path string) string {
	switch strings.Trim(host, "[]") {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port)) + path
}

// StatusError is returned for a non-2xx answer.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.URL, e.Code)
	}
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.Code, e.Body)
}

// Check performs one GET against url and succeeds on any 2xx.
func Check(ctx context.Context, client *http.Client, url string) error {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &StatusError{URL: url, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}

// Probe checks url up to c.Retries times, c.Timeout per attempt and
// c.Interval apart, and returns the last error.
func Probe(ctx context.Context, client *http.Client, url string, c Contract) error {
	attempts := c.Retries
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		actx, cancel := context.WithTimeout(ctx, c.Timeout)
		err = Check(actx, client, url)
		cancel()
		if err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(c.Interval):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last error: %v)", url, ctx.Err(), err)
		}
	}
	return err
}

// Upstream reports readiness of the launched service.
type Upstream struct {
	URL    string
	Client *http.Client
}

// Ready is a single Check bounded by ctx.
func (u Upstream) Ready(ctx context.Context) bool {
	return Check(ctx, u.Client, u.URL) == nil
}
