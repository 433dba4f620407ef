package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/metad/internal/fault"
	"github.com/roach88/metad/internal/wal"
)

func TestFixedClock(t *testing.T) {
	c := NewFixedClock(time.Time{})
	assert.Equal(t, DefaultNow, c.Now())
	assert.Equal(t, c.Now(), c.Now())

	c.Advance(time.Hour)
	assert.Equal(t, DefaultNow.Add(time.Hour), c.Now())

	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(at)
	assert.Equal(t, at, c.Now())
}

func TestSequentialIDs_Concurrent(t *testing.T) {
	g := NewSequentialIDs("")
	var wg sync.WaitGroup
	seen := make(chan string, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- g.Next()
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[string]bool{}
	for id := range seen {
		unique[id] = true
	}
	assert.Len(t, unique, 100)
	assert.Equal(t, "conn-101", g.Next())
}

func TestFakeAuthority_FetchAndCommit(t *testing.T) {
	fa := NewFakeAuthority(t, wal.Entry{ID: "e1", Op: "CREATE", Path: "/a"})
	client := fa.Client()
	ctx := context.Background()

	entries, err := client.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Committed)

	fa.FailCommits(1)
	assert.Error(t, client.Commit(ctx, entries[0]))
	require.NoError(t, client.Commit(ctx, entries[0]))

	entries, err = client.Fetch(ctx)
	require.NoError(t, err)
	assert.True(t, entries[0].Committed)
	assert.Len(t, fa.Commits(), 1)

	fa.FailFetch(true)
	_, err = client.Fetch(ctx)
	assert.True(t, fault.Is(err, fault.UpstreamIO))
}

func TestFakeOracle(t *testing.T) {
	o := NewFakeOracle(map[string]string{"list all": `{"action":"list"}`})
	ctx := context.Background()

	out, err := o.Ask(ctx, "list all")
	require.NoError(t, err)
	assert.Equal(t, `{"action":"list"}`, out)

	_, err = o.Ask(ctx, "unknown")
	assert.True(t, fault.Is(err, fault.OracleUnavailable))

	o.SetUnavailable(true)
	_, err = o.Ask(ctx, "list all")
	assert.True(t, fault.Is(err, fault.OracleUnavailable))
	assert.Equal(t, []string{"list all", "unknown", "list all"}, o.Asked())
}
