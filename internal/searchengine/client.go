// Package searchengine is the HTTP client for the external Meilisearch
// instance that the EPG Synchroniser fills with the programs/services
// catalog.
package searchengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mjkirchner/tvrecorder/pkg/httpclient"
)

// Client wraps the Meilisearch REST API: index creation and bulk
// add-or-update, which is all the Synchroniser needs.
type Client struct {
	baseURI   string
	masterKey string
	http      *httpclient.Client
	logger    *slog.Logger
}

// New constructs a Client against baseURI (e.g. "http://localhost:7700").
// masterKey may be empty when the instance has no auth configured.
func New(baseURI, masterKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := httpclient.DefaultConfig()
	cfg.Logger = logger
	cfg.UserAgent = "tvrecorder-searchengine-client/1.0"
	return &Client{
		baseURI:   strings.TrimRight(baseURI, "/"),
		masterKey: masterKey,
		http:      httpclient.New(cfg),
		logger:    logger,
	}
}

func (c *Client) url(path string) string {
	return c.baseURI + path
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.masterKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.masterKey)
	}
	return req, nil
}

type createIndexRequest struct {
	UID        string `json:"uid"`
	PrimaryKey string `json:"primaryKey,omitempty"`
}

// CreateIndex creates an index with the given primary key. A 409
// conflict (index already exists) is treated as success.
func (c *Client) CreateIndex(ctx context.Context, name, primaryKey string) error {
	body, err := json.Marshal(createIndexRequest{UID: name, PrimaryKey: primaryKey})
	if err != nil {
		return fmt.Errorf("marshaling create-index request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/indexes", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building create-index request: %w", err)
	}

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("creating index %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("create index %s returned status %d", name, resp.StatusCode)
	}
	return nil
}

// AddOrUpdate bulk-upserts docs into indexName. Meilisearch accepts a
// JSON array of documents at the documents endpoint and processes the
// upsert as a background task; the Synchroniser does not wait on task
// completion.
func (c *Client) AddOrUpdate(ctx context.Context, indexName, primaryKey string, docs []json.RawMessage) error {
	if len(docs) == 0 {
		return nil
	}

	body, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshaling documents: %w", err)
	}

	path := fmt.Sprintf("/indexes/%s/documents", indexName)
	if primaryKey != "" {
		path += "?primaryKey=" + primaryKey
	}

	req, err := c.newRequest(ctx, http.MethodPut, path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building add-or-update request: %w", err)
	}

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("upserting documents into %s: %w", indexName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("upsert into %s returned status %d", indexName, resp.StatusCode)
	}
	return nil
}

// Search performs a raw query against indexName, returning the decoded
// response body. The HTTP surface does not call it; its program-listing
// fallback reads the local SQLite catalog instead.
func (c *Client) Search(ctx context.Context, indexName, query string, out any) error {
	body, err := json.Marshal(map[string]string{"q": query})
	if err != nil {
		return fmt.Errorf("marshaling search request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/indexes/%s/search", indexName), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building search request: %w", err)
	}

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("searching %s: %w", indexName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search %s returned status %d", indexName, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
