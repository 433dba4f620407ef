package wal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/metad/internal/fault"
)

// DefaultTimeout bounds each request to the authority.
const DefaultTimeout = 10 * time.Second

// maxFetchBytes bounds a fetched log body.
const maxFetchBytes = 64 << 20

// Authority is the upstream WAL service.
type Authority interface {
	// Fetch returns every entry the authority currently holds, committed
	// or not, in log order.
	Fetch(ctx context.Context) ([]Entry, error)

	// Commit acknowledges that e was applied.
	Commit(ctx context.Context, e Entry) error
}

// HTTPAuthority talks to the authority over HTTP.
type HTTPAuthority struct {
	FetchURL  string
	CommitURL string
	client    *http.Client
}

// NewHTTPAuthority creates an HTTP authority client. An empty commitURL
// defaults to fetchURL + "/commit".
func NewHTTPAuthority(fetchURL, commitURL string, timeout time.Duration) *HTTPAuthority {
	if commitURL == "" {
		commitURL = strings.TrimRight(fetchURL, "/") + "/commit"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPAuthority{
		FetchURL:  fetchURL,
		CommitURL: commitURL,
		client:    &http.Client{Timeout: timeout},
	}
}

// Fetch implements Authority. The body may be a bare array or an object
// with an "entries" array.
func (a *HTTPAuthority) Fetch(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.FetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch wal: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.UpstreamIO, "fetch wal", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fault.Wrap(fault.UpstreamIO, "fetch wal: read body", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fault.Newf(fault.UpstreamIO, "fetch wal: status %d", resp.StatusCode)
	}
	return DecodeEntries(body)
}

// Commit implements Authority.
func (a *HTTPAuthority) Commit(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("commit wal entry: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.CommitURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("commit wal entry: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fault.Wrap(fault.UpstreamIO, "commit wal entry", err).WithPath(e.Path)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode/100 != 2 {
		return fault.Newf(fault.UpstreamIO, "commit wal entry: status %d", resp.StatusCode).WithPath(e.Path)
	}
	return nil
}

// DecodeEntries parses a fetched log body.
func DecodeEntries(body []byte) ([]Entry, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []Entry{}, nil
	}

	var entries []Entry
	if body[0] == '{' {
		var wrapped struct {
			Entries []Entry `json:"entries"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fault.Wrap(fault.ParseFailure, "decode wal entries", err)
		}
		entries = wrapped.Entries
	} else if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fault.Wrap(fault.ParseFailure, "decode wal entries", err)
	}

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
