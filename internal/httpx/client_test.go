package httpx

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidatesBaseURL(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)

	_, err = NewClient("://bad")
	require.Error(t, err)

	_, err = NewClient("/relative/only")
	require.Error(t, err)

	_, err = NewClient("https://api.example.com")
	require.NoError(t, err)
}

func TestBuildURL(t *testing.T) {
	c, err := NewClient("https://api.example.com/base/")
	require.NoError(t, err)

	got, err := c.buildURL("/v6/listFiles", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/base/v6/listFiles", got)

	got, err = c.buildURL("v6/listFiles", map[string][]string{"a": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/base/v6/listFiles?a=1", got)

	got, err = c.buildURL("https://sea1.ingest.example.com/key?x=1", map[string][]string{"y": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, "https://sea1.ingest.example.com/key?x=1&y=2", got)
}

func TestDoMergesHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "default", r.Header.Get("X-Default"))
		assert.Equal(t, "override", r.Header.Get("X-Shared"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithHeaders(http.Header{
		"X-Default": {"default"},
		"X-Shared":  {"base"},
	}))
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), &Request{
		Method: http.MethodGet,
		Path:   "/",
		Header: http.Header{"X-Shared": {"override"}},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestDoReturnsHTTPError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"boom"}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/x"})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.JSONEq(t, `{"error":"boom"}`, string(httpErr.Body))
	assert.True(t, httpErr.Retryable())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "default policy must not retry")
}

func TestDoRetriesWithPolicy(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"n":1}`, string(body))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithRetryPolicy(RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}))
	require.NoError(t, err)

	body, contentType, err := WithJSONBody(map[string]int{"n": 1})
	require.NoError(t, err)
	var out struct {
		OK bool `json:"ok"`
	}
	err = c.DoJSON(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/retry",
		Header: http.Header{"Content-Type": {contentType}},
		Body:   body,
	}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}))
	require.NoError(t, err)

	_, err = c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/"})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDoHonoursCancelledContext(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Do(ctx, &Request{Method: http.MethodGet, Path: "/"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoJSONEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, c.DoJSON(context.Background(), &Request{Method: http.MethodGet, Path: "/"}, &out))
	assert.Nil(t, out)
}

func TestDoJSONUsesDecoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"has_more":true}`)
	}))
	defer srv.Close()

	var seen string
	c, err := NewClient(srv.URL, WithDecoder(func(body []byte, out any) error {
		seen = string(body)
		*(out.(*bool)) = strings.Contains(seen, "has_more")
		return nil
	}))
	require.NoError(t, err)

	var out bool
	require.NoError(t, c.DoJSON(context.Background(), &Request{Method: http.MethodGet, Path: "/"}, &out))
	assert.True(t, out)
	assert.Equal(t, `{"has_more":true}`, seen)

	c, err = NewClient(srv.URL, WithDecoder(func([]byte, any) error { return errors.New("bad shape") }))
	require.NoError(t, err)
	err = c.DoJSON(context.Background(), &Request{Method: http.MethodGet, Path: "/"}, &out)
	assert.EqualError(t, err, "decode response body: bad shape")
}

func TestMultipartFile(t *testing.T) {
	body, contentType, err := MultipartFile("file", `we"ird.png`, "image/png", []byte("png-bytes"))
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)

	reader := multipart.NewReader(body, params["boundary"])
	part, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "file", part.FormName())
	assert.Equal(t, `we"ird.png`, part.FileName())
	assert.Equal(t, "image/png", part.Header.Get("Content-Type"))
	data, err := io.ReadAll(part)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	_, err = reader.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://x/y", redactURL("https://x/y?signature=secret"))
	assert.Equal(t, "https://x/y", redactURL("https://x/y"))
	assert.False(t, strings.Contains(redactURL("https://x/?a=b"), "a=b"))
}
