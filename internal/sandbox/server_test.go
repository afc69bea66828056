package sandbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/farmisen/upyloadthing/internal/httpx"
	"github.com/farmisen/upyloadthing/pkg/uploadthing"
	"github.com/farmisen/upyloadthing/pkg/uploadthing/mock"
)

const testAPIKey = "sk_sandbox_test"

func startSandbox(t *testing.T, cfg Config) (*Server, *httptest.Server, *uploadthing.Client) {
	t.Helper()
	if cfg.APIKey == "" {
		cfg.APIKey = testAPIKey
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	token, err := srv.Token()
	require.NoError(t, err)
	client, err := uploadthing.New(token,
		uploadthing.WithAPIURL(ts.URL),
		uploadthing.WithIngestURL(ts.URL+IngestPrefix))
	require.NoError(t, err)
	return srv, ts, client
}

func TestSandboxRoundTrip(t *testing.T) {
	srv, ts, client := startSandbox(t, Config{Store: mock.New(mock.WithAppID("app1"))})
	ctx := context.Background()
	assert.Equal(t, Region, client.Region())

	results, err := client.UploadFiles(ctx, []uploadthing.File{
		{Name: "a.txt", Reader: strings.NewReader("alpha")},
		{Name: "b.txt", Reader: strings.NewReader("bravo!")},
	}, &uploadthing.UploadOptions{ContentDisposition: uploadthing.DispositionAttachment})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://utfs.io/f/"+results[0].FileKey, results[0].URL)
	assert.Equal(t, "text/plain", results[0].Type)

	data, _, err := srv.Store().Open(ctx, results[1].FileKey)
	require.NoError(t, err)
	assert.Equal(t, "bravo!", string(data))

	resp, err := http.Get(ts.URL + "/f/" + results[0].FileKey)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alpha", string(body))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	list, err := client.ListFiles(ctx, &uploadthing.ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.True(t, list.HasMore)
	require.Len(t, list.Files, 1)

	ren, err := client.RenameFiles(ctx, []uploadthing.RenameUpdate{{FileKey: results[0].FileKey, NewName: "renamed.txt"}})
	require.NoError(t, err)
	assert.Equal(t, 1, ren.RenamedCount)

	acl, err := client.UpdateACL(ctx, []uploadthing.ACLUpdate{{FileKey: results[0].FileKey, ACL: uploadthing.ACLPrivate}})
	require.NoError(t, err)
	assert.Equal(t, 1, acl.UpdatedCount)

	resp, err = http.Get(ts.URL + "/f/" + results[0].FileKey)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	usage, err := client.GetUsageInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), usage.TotalBytes)
	assert.Equal(t, int64(2), usage.FilesUploaded)

	del, err := client.DeleteFiles(ctx, []string{results[0].FileKey, results[1].FileKey}, uploadthing.KeyTypeFileKey)
	require.NoError(t, err)
	assert.Equal(t, 2, del.DeletedCount)

	list, err = client.ListFiles(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, list.Files)
}

func TestSandboxDeleteByCustomID(t *testing.T) {
	srv, _, client := startSandbox(t, Config{})
	ctx := context.Background()

	res, err := client.UploadFile(ctx, uploadthing.File{Name: "a.txt", Reader: strings.NewReader("a")}, nil)
	require.NoError(t, err)
	_, fd, err := srv.Store().Open(ctx, res.FileKey)
	require.NoError(t, err)
	require.NotNil(t, fd.CustomID)

	del, err := client.DeleteFiles(ctx, []string{*fd.CustomID}, uploadthing.KeyTypeCustomID)
	require.NoError(t, err)
	assert.Equal(t, 1, del.DeletedCount)
}

func TestSandboxRejectsWrongAPIKey(t *testing.T) {
	_, ts, _ := startSandbox(t, Config{})

	token, err := uploadthing.EncodeToken(uploadthing.Token{APIKey: "sk_wrong", AppID: mock.DefaultAppID, Regions: []string{Region}})
	require.NoError(t, err)
	client, err := uploadthing.New(token, uploadthing.WithAPIURL(ts.URL), uploadthing.WithIngestURL(ts.URL+IngestPrefix))
	require.NoError(t, err)

	_, err = client.GetUsageInfo(context.Background())
	var apiErr *uploadthing.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid API key", apiErr.Message)

	// Ingest is guarded by the signature, which the wrong key cannot produce.
	_, err = client.UploadFile(context.Background(), uploadthing.File{Name: "a.txt", Reader: strings.NewReader("a")}, nil)
	assert.True(t, uploadthing.IsStatus(err, http.StatusForbidden), "got %v", err)
}

func TestSandboxRejectsTamperedIngestURL(t *testing.T) {
	_, ts, _ := startSandbox(t, Config{})

	raw, err := uploadthing.PresignURL(uploadthing.PresignParams{
		IngestURL: ts.URL + IngestPrefix,
		Region:    Region,
		FileKey:   "somekey",
		APIKey:    testAPIKey,
		AppID:     mock.DefaultAppID,
		FileName:  "a.txt",
		FileSize:  1,
	})
	require.NoError(t, err)
	tampered := strings.Replace(raw, "x-ut-file-size=1", "x-ut-file-size=2", 1)

	req, err := http.NewRequest(http.MethodPut, tampered, strings.NewReader(""))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSandboxIngestResponseFields(t *testing.T) {
	_, ts, _ := startSandbox(t, Config{Store: mock.New(mock.WithAppID("app1"))})

	raw, err := uploadthing.PresignURL(uploadthing.PresignParams{
		IngestURL: ts.URL + IngestPrefix,
		Region:    Region,
		FileKey:   "rawkey",
		APIKey:    testAPIKey,
		AppID:     "app1",
		FileName:  "a.txt",
		FileSize:  5,
		FileType:  "text/plain",
		Expires:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	body, contentType, err := httpx.MultipartFile("file", "a.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, raw, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "rawkey", got["fileKey"])
	assert.NotContains(t, got, "key")
	assert.Equal(t, "a.txt", got["name"])
	assert.Contains(t, got, "ufsUrl")
	assert.Contains(t, got, "fileHash")
}

func TestSandboxRejectsExpiredIngestURL(t *testing.T) {
	now := time.Now()
	_, ts, _ := startSandbox(t, Config{Now: func() time.Time { return now.Add(2 * time.Hour) }})

	raw, err := uploadthing.PresignURL(uploadthing.PresignParams{
		IngestURL: ts.URL + IngestPrefix,
		Region:    Region,
		FileKey:   "somekey",
		APIKey:    testAPIKey,
		AppID:     mock.DefaultAppID,
		FileName:  "a.txt",
		FileSize:  0,
		Expires:   now.Add(time.Hour),
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, raw, strings.NewReader(""))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(body), "expired")
}

func TestSandboxFailureInjection(t *testing.T) {
	_, _, client := startSandbox(t, Config{
		Fail: FailConfig{Rate: 0.5, Code: http.StatusServiceUnavailable},
		Rand: func() float64 { return 0.1 },
	})

	_, err := client.GetUsageInfo(context.Background())
	var apiErr *uploadthing.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "failure injected", apiErr.Message)
	assert.True(t, apiErr.Retryable())
}

func TestSandboxLatencyAndLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	_, _, client := startSandbox(t, Config{
		Latency: 20 * time.Millisecond,
		Logger:  zap.New(core),
	})

	start := time.Now()
	_, err := client.GetUsageInfo(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/v6/getUsageInfo", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}

func TestSandboxBadRequests(t *testing.T) {
	_, ts, _ := startSandbox(t, Config{})

	post := func(path, body string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ts.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("x-uploadthing-api-key", testAPIKey)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusBadRequest, post("/v6/deleteFiles", `{}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post("/v6/deleteFiles", `{"fileKeys":["a"],"customIds":["b"]}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post("/v6/listFiles", `{`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post("/v6/renameFiles", `{"updates":[{"newName":"x"}]}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post("/v6/updateACL", `{"updates":[{"fileKey":"k","acl":"public"}]}`).StatusCode)
	assert.Equal(t, http.StatusNotFound, post("/v6/unknown", `{}`).StatusCode)

	resp, err := http.Get(ts.URL + "/f/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{APIKey: " "})
	assert.Error(t, err)
}

func TestParseFailConfig(t *testing.T) {
	cfg, err := ParseFailConfig("")
	require.NoError(t, err)
	assert.Equal(t, FailConfig{}, cfg)

	cfg, err = ParseFailConfig("rate=0.25")
	require.NoError(t, err)
	assert.Equal(t, FailConfig{Rate: 0.25, Code: http.StatusInternalServerError}, cfg)

	cfg, err = ParseFailConfig(" rate = 1 , code=429 ")
	require.NoError(t, err)
	assert.Equal(t, FailConfig{Rate: 1, Code: 429}, cfg)

	for _, bad := range []string{"rate", "rate=x", "rate=2", "code=200", "code=x", "speed=1"} {
		_, err := ParseFailConfig(bad)
		assert.Error(t, err, bad)
	}
}
