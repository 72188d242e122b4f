package quotes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) (*HTTPSource, *observer.ObservedLogs) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	core, logs := observer.New(zapcore.DebugLevel)
	return NewHTTPSource(server.URL, server.Client(), time.Second, zap.New(core)), logs
}

func requireFetchError(t *testing.T, err error, kind Kind) *FetchError {
	t.Helper()

	var fe *FetchError
	require.True(t, errors.As(err, &fe), "expected *FetchError, got %v", err)
	assert.Equal(t, kind, fe.Kind)
	return fe
}

func TestFetchQuotes(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		// mislabeled on purpose, the body must be parsed anyway
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(`[{"text":"A","author":"B"},{"text":"C"}]`))
	})

	list, err := src.FetchQuotes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Quote{
		{Text: "A", Author: "B"},
		{Text: "C", Author: DefaultAuthor},
	}, list)
}

func TestFetchQuotesEmptyList(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(` [] `))
	})

	list, err := src.FetchQuotes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFetchQuotesHTTPStatus(t *testing.T) {
	src, logs := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := src.FetchQuotes(context.Background())
	fe := requireFetchError(t, err, KindHTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, fe.StatusCode)
	assert.Equal(t, "HttpStatus(500)", err.Error())

	entries := logs.FilterMessage("Failed to fetch quotes").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "HttpStatus", entries[0].ContextMap()["kind"])
	assert.EqualValues(t, 500, entries[0].ContextMap()["status"])
}

func TestFetchQuotesMalformedJSON(t *testing.T) {
	src, logs := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"text": "A",`))
	})

	_, err := src.FetchQuotes(context.Background())
	requireFetchError(t, err, KindParse)

	entries := logs.FilterMessage("Failed to fetch quotes").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ParseError", entries[0].ContextMap()["kind"])
}

func TestFetchQuotesUnexpectedShape(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"A","author":"B"}`))
	})

	_, err := src.FetchQuotes(context.Background())
	requireFetchError(t, err, KindUnexpectedShape)
}

func TestFetchQuotesNonObjectElements(t *testing.T) {
	for _, body := range []string{`["plain"]`, `[null]`, `[{"text":"A"}, 42]`} {
		t.Run(body, func(t *testing.T) {
			src, logs := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})

			list, err := src.FetchQuotes(context.Background())
			assert.Nil(t, list)
			fe := requireFetchError(t, err, KindUnexpectedShape)
			assert.ErrorIs(t, fe, ErrNotObject)
			assert.Equal(t, 1, logs.FilterMessage("Failed to fetch quotes").Len())
		})
	}
}

func TestFetchQuotesNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	src := NewHTTPSource(url, nil, time.Second, nil)
	_, err := src.FetchQuotes(context.Background())
	requireFetchError(t, err, KindNetwork)
}

func TestFetchQuotesTimeout(t *testing.T) {
	release := make(chan struct{})
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	src.Timeout = 20 * time.Millisecond

	_, err := src.FetchQuotes(context.Background())
	fe := requireFetchError(t, err, KindNetwork)
	assert.ErrorIs(t, fe, context.DeadlineExceeded)
}
