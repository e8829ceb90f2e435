// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveParamsLayering(t *testing.T) {
	defaults := map[string]string{"timeout": "5s", "retries": "3"}
	group := map[string]string{"timeout": "10s"}
	sinkOverride := map[string]string{"timeout": "1s", "secret": "leak"}

	got := ResolveParams(defaults, group, sinkOverride, []string{"timeout"})

	require.Equal(t, "1s", got["timeout"])
	require.Equal(t, "3", got["retries"])
	require.NotContains(t, got, "secret")
}

func TestResolveParamsNoAllowListAllowsEverything(t *testing.T) {
	got := ResolveParams(nil, nil, map[string]string{"url": "https://example.com"}, nil)
	require.Equal(t, "https://example.com", got["url"])
}

func TestFileSinkAppendsNewlineDelimited(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.jsonl")

	s, err := OpenFileSink("file1", path)
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), []byte(`{"a":1}`)))
	require.NoError(t, s.Write(context.Background(), []byte(`{"a":2}`)))
	require.NoError(t, s.Stop(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\"a\":1}\n{\"a\":2}\n", string(data))
}

func TestHTTPSinkPostsPayload(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSink("webhook1", srv.URL, WithHTTPTimeout(time.Second))
	err := s.Write(context.Background(), []byte(`{"alert_id":"x"}`))
	require.NoError(t, err)
	require.Equal(t, `{"alert_id":"x"}`, string(gotBody))
	require.NoError(t, s.Stop(context.Background()))
}

func TestHTTPSinkNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPSink("webhook2", srv.URL)
	err := s.Write(context.Background(), []byte(`{}`))
	require.Error(t, err)
}

type failingSink struct {
	name string
	fail bool
}

func (f *failingSink) Name() string { return f.name }
func (f *failingSink) Write(_ context.Context, _ []byte) error {
	if f.fail {
		return errors.New("downstream unavailable")
	}
	return nil
}
func (f *failingSink) Stop(_ context.Context) error { return nil }

func TestBreakerTripsOpenAfterConsecutiveFailures(t *testing.T) {
	inner := &failingSink{name: "flaky", fail: true}
	b := NewBreaker(inner, BreakerSettings{FailureThreshold: 2, Timeout: time.Minute})

	require.Error(t, b.Write(context.Background(), []byte("x")))
	require.Error(t, b.Write(context.Background(), []byte("x")))

	err := b.Write(context.Background(), []byte("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "open")
}

func TestBreakerPassesThroughWhenHealthy(t *testing.T) {
	inner := &failingSink{name: "healthy", fail: false}
	b := NewBreaker(inner, BreakerSettings{})
	require.NoError(t, b.Write(context.Background(), []byte("x")))
}
