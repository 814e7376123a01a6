package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
)

// apiClient talks to a running kotae server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// apiError is a non-2xx reply from the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) userPath(user, suffix string) string {
	return c.baseURL + "/api/v1/users/" + url.PathEscape(user) + suffix
}

func (c *apiClient) do(ctx context.Context, method, u, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) postJSON(ctx context.Context, u string, in, out any) error {
	var buf bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return err
		}
	}
	return c.do(ctx, http.MethodPost, u, "application/json", &buf, out)
}

// Upload sends the file at path. An empty mimeType lets the file name decide.
func (c *apiClient) Upload(ctx context.Context, user, path, mimeType string) (server.UploadResponse, error) {
	var out server.UploadResponse
	f, err := os.Open(path)
	if err != nil {
		return out, err
	}
	defer f.Close()

	name := filepath.Base(path)
	if mimeType == "" {
		mimeType = extract.MIMETypeFromFilename(name)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	hdr.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return out, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return out, err
	}
	if err := mw.Close(); err != nil {
		return out, err
	}
	err = c.do(ctx, http.MethodPost, c.userPath(user, "/documents"), mw.FormDataContentType(), &buf, &out)
	return out, err
}

func (c *apiClient) Documents(ctx context.Context, user string) ([]models.Document, error) {
	var out server.DocumentsResponse
	err := c.do(ctx, http.MethodGet, c.userPath(user, "/documents"), "", nil, &out)
	return out.Documents, err
}

func (c *apiClient) State(ctx context.Context, user string) (server.StateResponse, error) {
	var out server.StateResponse
	err := c.do(ctx, http.MethodGet, c.userPath(user, "/state"), "", nil, &out)
	return out, err
}

func (c *apiClient) Select(ctx context.Context, user, docID string) (server.StateResponse, error) {
	var out server.StateResponse
	err := c.postJSON(ctx, c.userPath(user, "/select"), server.SelectRequest{DocumentID: docID}, &out)
	return out, err
}

func (c *apiClient) Finish(ctx context.Context, user string) (server.StateResponse, error) {
	var out server.StateResponse
	err := c.postJSON(ctx, c.userPath(user, "/finish"), nil, &out)
	return out, err
}

func (c *apiClient) Ask(ctx context.Context, user, question string) (server.OutcomeResponse, error) {
	var out server.OutcomeResponse
	err := c.postJSON(ctx, c.userPath(user, "/ask"), server.AskRequest{Question: question}, &out)
	return out, err
}

func (c *apiClient) Status(ctx context.Context) (models.Status, error) {
	var out models.Status
	err := c.do(ctx, http.MethodGet, c.baseURL+"/api/v1/status", "", nil, &out)
	return out, err
}
