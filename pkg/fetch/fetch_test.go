package fetch

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGetter struct {
	errs  []error
	calls int
}

func (g *stubGetter) Get(wd, src, dst string) error {
	defer func() { g.calls++ }()
	if g.calls >= len(g.errs) {
		return nil
	}
	return g.errs[g.calls]
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestRetryingFetcherRetriesOnNetErrorThenSucceeds(t *testing.T) {
	g := &stubGetter{errs: []error{timeoutError{}, timeoutError{}}}
	var slept []time.Duration
	f := &RetryingFetcher{
		Getter: g, Attempts: 3, BaseDelay: 10 * time.Millisecond,
		Sleep: func(d time.Duration) { slept = append(slept, d) },
	}

	dst := t.TempDir()
	_, err := f.Fetch(context.Background(), "local/path", dst)
	require.NoError(t, err)
	assert.Equal(t, 3, g.calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, slept)
}

func TestRetryingFetcherNeverRetriesNotFound(t *testing.T) {
	g := &stubGetter{errs: []error{&NotFoundError{Src: "x"}}}
	f := &RetryingFetcher{Getter: g, Attempts: 3, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}

	_, err := f.Fetch(context.Background(), "local/path", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, 1, g.calls)
}

func TestRetryingFetcherExhaustsAttempts(t *testing.T) {
	g := &stubGetter{errs: []error{timeoutError{}, timeoutError{}, timeoutError{}}}
	f := &RetryingFetcher{Getter: g, Attempts: 3, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}

	_, err := f.Fetch(context.Background(), "local/path", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, 3, g.calls)
}

func TestRetryableClassifiesNotFoundAsNonRetryable(t *testing.T) {
	assert.False(t, Retryable(&NotFoundError{Src: "x"}))
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(timeoutError{}))
	assert.False(t, Retryable(errors.New("some other failure")))
}

func TestIsRemoteDistinguishesSchemesFromLocalPaths(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/archive.zip"))
	assert.True(t, IsRemote("git::https://github.com/foo/bar.git"))
	assert.False(t, IsRemote("/local/absolute/path"))
	assert.False(t, IsRemote("relative/path"))
	assert.False(t, IsRemote(`C:\Users\foo\archive.zip`))
}

func TestLocateReturnsLocalPathUnchangedWhenNotRemote(t *testing.T) {
	got, err := Locate(context.Background(), nil, "/some/local/dir", t.TempDir(), "file.json")
	require.NoError(t, err)
	assert.Equal(t, "/some/local/dir", got)
}
