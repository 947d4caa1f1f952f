package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string, retryMax int) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(HTTPClientConfig{BaseURL: baseURL, Timeout: 5 * time.Second, RetryMax: retryMax})
	require.NoError(t, err)
	c.client.RetryWaitMin = time.Millisecond
	c.client.RetryWaitMax = 5 * time.Millisecond
	return c
}

func TestFetch_Success(t *testing.T) {
	var gotPath, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Apoferritin tilt series","experiment_type":"SPA"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/empiar/api/entry/", 0)
	md, err := c.Fetch(context.Background(), "11759")
	require.NoError(t, err)

	assert.Equal(t, "/empiar/api/entry/11759/", gotPath)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "Apoferritin tilt series", md.Title("11759"))
	assert.Equal(t, "SPA", md["experiment_type"])
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such entry", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	_, err := c.Fetch(context.Background(), "99999")

	var fe *FetchError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, "99999", fe.EntryID)
	assert.Contains(t, fe.Error(), "no such entry")
}

func TestFetch_ServerErrorWithoutRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	_, err := c.Fetch(context.Background(), "11759")

	var fe *FetchError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"title":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	md, err := c.Fetch(context.Background(), "11759")
	require.NoError(t, err)
	assert.Equal(t, "ok", md.Title("11759"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetch_InvalidJSON(t *testing.T) {
	for name, body := range map[string]string{
		"garbage": "<html>",
		"array":   `[1,2,3]`,
		"null":    `null`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL, 0).Fetch(context.Background(), "11759")
			var fe *FetchError
			assert.True(t, errors.As(err, &fe), "got %v", err)
		})
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url, 0).Fetch(context.Background(), "11759")
	var fe *FetchError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, 0, fe.StatusCode)
}

func TestNewHTTPClient_Validation(t *testing.T) {
	_, err := NewHTTPClient(HTTPClientConfig{})
	assert.Error(t, err)

	_, err = NewHTTPClient(HTTPClientConfig{BaseURL: "http://x", RetryMax: -1})
	assert.Error(t, err)
}

func TestDatasetMetadata_Description(t *testing.T) {
	tests := []struct {
		name string
		md   DatasetMetadata
		want string
	}{
		{"flat title", DatasetMetadata{"title": "Ribosome"}, "Ribosome"},
		{"nested under accession", DatasetMetadata{"EMPIAR-11759": map[string]any{"title": "Nested"}}, "Nested"},
		{"missing title", DatasetMetadata{"other": 1}, "EBI EMPIAR dataset 11759"},
		{"blank title", DatasetMetadata{"title": "  "}, "EBI EMPIAR dataset 11759"},
		{"non-string title", DatasetMetadata{"title": 42}, "EBI EMPIAR dataset 11759"},
		{"nil document", nil, "EBI EMPIAR dataset 11759"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.md.Description("11759"))
		})
	}
}
