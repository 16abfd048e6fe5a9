package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"codeberg.org/docforge/server/api/rest/operations"
	"codeberg.org/docforge/server/api/rest/usage"
	"codeberg.org/docforge/server/internal/auth"
	"codeberg.org/docforge/server/internal/errors"
	"codeberg.org/docforge/server/internal/progress"
)

const requestTimeout = 10 * time.Minute

// talks to the docforge REST and websocket API
type Client struct {
	endpoint   string
	token      string
	clientID   string
	httpClient *http.Client
}

// reads DOCFORGE_API_ENDPOINT, DOCFORGE_TOKEN and DOCFORGE_CLIENT_ID
func NewClientFromEnv() *Client {
	endpoint := os.Getenv("DOCFORGE_API_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:8080"
	}

	return NewClient(endpoint, os.Getenv("DOCFORGE_TOKEN"), os.Getenv("DOCFORGE_CLIENT_ID"))
}

func NewClient(endpoint, token, clientID string) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		clientID:   clientID,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// error returned by the API
type APIError struct {
	Status int
	Body   errors.LimitResponse
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Body.Error, e.Body.Message)

	if e.Body.RetryAfterSeconds > 0 {
		msg += fmt.Sprintf(" (retry in %ds)", e.Body.RetryAfterSeconds)
	}

	if e.Body.UpgradeURL != "" {
		msg += " - upgrade at " + e.Body.UpgradeURL
	}

	return msg
}

// what a run produced: a file on disk, or an artifact that still has to be downloaded
type RunResult struct {
	SavedTo string
	Staged  *operations.StagedResponse
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.identify(req.Header)

	return req, nil
}

func (c *Client) identify(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}

	if c.clientID != "" {
		h.Set(auth.ClientIDHeader, c.clientID)
	}
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort error body

	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(body, &apiErr.Body); err != nil || apiErr.Body.Error == "" {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil, apiErr
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

func (c *Client) Operations(ctx context.Context) (*operations.ListResponse, error) {
	var out operations.ListResponse
	if err := c.getJSON(ctx, "/api/v1/operations", &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *Client) Usage(ctx context.Context) (*usage.UsageResponse, error) {
	var out usage.UsageResponse
	if err := c.getJSON(ctx, "/api/v1/usage", &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// uploads path and runs op. a direct result is written into outDir
func (c *Client) Run(ctx context.Context, op, path string, params map[string]string, progressID, outDir string) (*RunResult, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied input file
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	body, contentType, err := multipartBody(f, filepath.Base(path), params, progressID)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/operations/"+url.PathEscape(op), body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var staged operations.StagedResponse
		if err := json.NewDecoder(resp.Body).Decode(&staged); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}

		return &RunResult{Staged: &staged}, nil
	}

	saved, err := save(resp, outDir, op+".out")
	if err != nil {
		return nil, err
	}

	return &RunResult{SavedTo: saved}, nil
}

// fetches an artifact into outDir. the server deletes it afterwards
func (c *Client) Download(ctx context.Context, id, outDir string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/artifacts/"+url.PathEscape(id), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	return save(resp, outDir, id+".zip")
}

// streams progress events for progressID until the done event or ctx ends.
// ready is closed once the subscription is live
func (c *Client) Watch(ctx context.Context, progressID string, ready chan<- struct{}, onMessage func(progress.Message)) error {
	wsURL := "ws" + strings.TrimPrefix(c.endpoint, "http") + "/api/v1/progress/" + progressID

	header := http.Header{}
	header.Set("Origin", c.endpoint)
	c.identify(header)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck,gosec // handshake body
	}

	if err != nil {
		close(ready)
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	close(ready)

	go func() {
		<-ctx.Done()
		conn.Close() //nolint:errcheck,gosec // unblocks ReadJSON
	}()

	for {
		var msg progress.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		onMessage(msg)

		if msg.Type == progress.TypeDone || msg.Type == progress.TypeServerShutdown {
			return nil
		}
	}
}

func multipartBody(file io.Reader, filename string, params map[string]string, progressID string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	// stable field order keeps requests reproducible
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := mw.WriteField(k, params[k]); err != nil {
			return nil, "", err
		}
	}

	if progressID != "" {
		if err := mw.WriteField("progress_id", progressID); err != nil {
			return nil, "", err
		}
	}

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}

	if _, err := io.Copy(fw, file); err != nil {
		return nil, "", fmt.Errorf("failed to read input: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return &buf, mw.FormDataContentType(), nil
}

// writes the body under the name from Content-Disposition
func save(resp *http.Response, outDir, fallback string) (string, error) {
	name := fallback

	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = filepath.Base(params["filename"])
	}

	if outDir == "" {
		outDir = "."
	}

	path := filepath.Join(outDir, name)

	out, err := os.Create(path) //nolint:gosec // path built from a cleaned base name
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()     //nolint:errcheck,gosec // already failing
		os.Remove(path) //nolint:errcheck,gosec // partial file
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, out.Close()
}
