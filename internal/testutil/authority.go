package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/roach88/metad/internal/wal"
)

// FakeAuthority is an in-process WAL authority served over httptest.
//
// GET /wal returns the log; POST /wal/commit marks the posted entry
// committed. Entries are matched by id, or by op+path when no id is set.
// Failures can be injected for either endpoint.
type FakeAuthority struct {
	Server *httptest.Server

	mu          sync.Mutex
	entries     []wal.Entry
	commits     []wal.Entry
	failFetch   bool
	failCommits int
}

// NewFakeAuthority starts a fake authority holding entries. The server is
// closed when the test ends.
func NewFakeAuthority(t testing.TB, entries ...wal.Entry) *FakeAuthority {
	t.Helper()
	a := &FakeAuthority{entries: append([]wal.Entry(nil), entries...)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /wal", a.handleFetch)
	mux.HandleFunc("POST /wal/commit", a.handleCommit)
	a.Server = httptest.NewServer(mux)
	t.Cleanup(a.Server.Close)
	return a
}

// FetchURL is the log endpoint.
func (a *FakeAuthority) FetchURL() string { return a.Server.URL + "/wal" }

// CommitURL is the acknowledgement endpoint.
func (a *FakeAuthority) CommitURL() string { return a.Server.URL + "/wal/commit" }

// Client returns a wal.HTTPAuthority pointed at the fake.
func (a *FakeAuthority) Client() *wal.HTTPAuthority {
	return wal.NewHTTPAuthority(a.FetchURL(), a.CommitURL(), 0)
}

// Append adds entries to the log.
func (a *FakeAuthority) Append(entries ...wal.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entries...)
}

// FailFetch makes GET /wal answer 503 while on is true.
func (a *FakeAuthority) FailFetch(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failFetch = on
}

// FailCommits makes the next n commits answer 500.
func (a *FakeAuthority) FailCommits(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failCommits = n
}

// Commits returns every successfully acknowledged entry, in order.
func (a *FakeAuthority) Commits() []wal.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]wal.Entry(nil), a.commits...)
}

// Entries returns the current log.
func (a *FakeAuthority) Entries() []wal.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]wal.Entry(nil), a.entries...)
}

func (a *FakeAuthority) handleFetch(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failFetch {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a.entries)
}

func (a *FakeAuthority) handleCommit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var e wal.Entry
	if err := json.Unmarshal(body, &e); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failCommits > 0 {
		a.failCommits--
		http.Error(w, "commit failed", http.StatusInternalServerError)
		return
	}
	for i := range a.entries {
		if sameEntry(a.entries[i], e) {
			a.entries[i].Committed = true
		}
	}
	a.commits = append(a.commits, e)
	w.WriteHeader(http.StatusNoContent)
}

func sameEntry(a, b wal.Entry) bool {
	if a.ID != "" || b.ID != "" {
		return a.ID == b.ID
	}
	return a.Op == b.Op && a.Path == b.Path
}
