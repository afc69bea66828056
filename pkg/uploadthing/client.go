package uploadthing

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/farmisen/upyloadthing/internal/httpx"
	"github.com/farmisen/upyloadthing/internal/utapi"
)

const (
	// DefaultAPIURL is the UploadThing REST endpoint.
	DefaultAPIURL = "https://api.uploadthing.com"
	// SDKVersion is reported in the x-uploadthing-version header.
	SDKVersion = "7.4.4"
	// BEAdapter is reported in the x-uploadthing-be-adapter header.
	BEAdapter = "server-sdk"

	defaultContentType = "application/octet-stream"
)

// RetryPolicy configures retries of transient failures. Retries are off
// unless a policy is supplied with WithRetryPolicy.
type RetryPolicy = httpx.RetryPolicy

// Backend executes validated requests. The HTTP backend talks to UploadThing;
// the mock package provides an in-memory one.
type Backend interface {
	Upload(ctx context.Context, file *PreparedFile) (*UploadResult, error)
	DeleteFiles(ctx context.Context, keys []string, keyType KeyType) (*DeleteFilesResponse, error)
	RenameFiles(ctx context.Context, updates []RenameUpdate) (*RenameFilesResponse, error)
	ListFiles(ctx context.Context, opts ListOptions) (*ListFilesResponse, error)
	GetUsageInfo(ctx context.Context) (*UsageInfo, error)
	UpdateACL(ctx context.Context, updates []ACLUpdate) (*UpdateACLResponse, error)
}

// Client provides access to the UploadThing API. It holds no mutable state
// and is safe for concurrent use.
type Client struct {
	backend Backend
	appID   string
	region  string
	logger  *zap.Logger
	newSeed func() string
}

type config struct {
	region     string
	apiURL     string
	ingestURL  string
	httpClient *http.Client
	logger     *zap.Logger
	retry      *RetryPolicy
	now        func() time.Time
}

// Option configures a Client built with New.
type Option func(*config)

// WithRegion overrides the upload region taken from the token.
func WithRegion(region string) Option {
	return func(c *config) {
		c.region = strings.TrimSpace(region)
	}
}

// WithAPIURL points the client at another REST endpoint (e.g. a sandbox).
func WithAPIURL(apiURL string) Option {
	return func(c *config) {
		c.apiURL = strings.TrimSpace(apiURL)
	}
}

// WithIngestURL overrides the ingest host template. "{region}" in the
// template is replaced by the upload region.
func WithIngestURL(ingestURL string) Option {
	return func(c *config) {
		c.ingestURL = strings.TrimSpace(ingestURL)
	}
}

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) {
		c.httpClient = h
	}
}

// WithLogger enables debug logging of requests.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithRetryPolicy enables retries of transient failures.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *config) {
		c.retry = &p
	}
}

// withClock is used by tests to pin presigned URL expiry.
func withClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// New decodes token and returns an HTTP-backed client.
func New(token string, opts ...Option) (*Client, error) {
	tok, err := DecodeToken(token)
	if err != nil {
		return nil, err
	}

	cfg := config{
		apiURL: DefaultAPIURL,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.apiURL == "" {
		cfg.apiURL = DefaultAPIURL
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	region := cfg.region
	if region == "" {
		region = tok.DefaultRegion()
	}

	httpOpts := []httpx.Option{
		httpx.WithLogger(cfg.logger),
		httpx.WithDecoder(utapi.Decode),
		httpx.WithHeaders(http.Header{
			"x-uploadthing-version":    {SDKVersion},
			"x-uploadthing-be-adapter": {BEAdapter},
			"x-uploadthing-api-key":    {tok.APIKey},
		}),
	}
	if cfg.httpClient != nil {
		httpOpts = append(httpOpts, httpx.WithHTTPClient(cfg.httpClient))
	}
	if cfg.retry != nil {
		httpOpts = append(httpOpts, httpx.WithRetryPolicy(*cfg.retry))
	}
	hc, err := httpx.NewClient(cfg.apiURL, httpOpts...)
	if err != nil {
		return nil, fmt.Errorf("uploadthing: init HTTP client: %w", err)
	}

	backend := &httpBackend{
		client:    hc,
		token:     *tok,
		region:    region,
		ingestURL: cfg.ingestURL,
		now:       cfg.now,
	}
	c := NewWithBackend(backend, tok.AppID)
	c.region = region
	c.logger = cfg.logger
	return c, nil
}

// NewWithBackend allows callers to supply a custom backend (e.g. mocks).
// appID seeds file key generation.
func NewWithBackend(b Backend, appID string) *Client {
	return &Client{
		backend: b,
		appID:   appID,
		logger:  zap.NewNop(),
		newSeed: newFileSeed,
	}
}

// AppID returns the application the client acts for.
func (c *Client) AppID() string {
	return c.appID
}

// Region returns the upload region, empty for non-HTTP backends.
func (c *Client) Region() string {
	return c.region
}

// UploadFile uploads a single file.
func (c *Client) UploadFile(ctx context.Context, file File, opts *UploadOptions) (*UploadResult, error) {
	results, err := c.UploadFiles(ctx, []File{file}, opts)
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

// UploadFiles uploads files one after another and returns their results in
// input order. Every file is read and validated before the first upload; the
// first failing upload aborts the batch.
func (c *Client) UploadFiles(ctx context.Context, files []File, opts *UploadOptions) ([]UploadResult, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one file is required", ErrInvalidArgument)
	}
	disposition, acl, err := resolveUploadOptions(opts)
	if err != nil {
		return nil, err
	}

	prepared := make([]*PreparedFile, 0, len(files))
	for i, f := range files {
		p, err := c.prepareFile(f, disposition, acl)
		if err != nil {
			return nil, fmt.Errorf("uploadthing: file %d: %w", i, err)
		}
		prepared = append(prepared, p)
	}

	results := make([]UploadResult, 0, len(prepared))
	for _, p := range prepared {
		c.logger.Debug("uploading file",
			zap.String("key", p.Key),
			zap.String("name", p.Name),
			zap.Int64("size", p.Size),
			zap.String("type", p.Type))
		res, err := c.backend.Upload(ctx, p)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// DeleteFiles removes files identified by file key (the default) or by
// custom id.
func (c *Client) DeleteFiles(ctx context.Context, keys []string, keyType KeyType) (*DeleteFilesResponse, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if keyType == "" {
		keyType = KeyTypeFileKey
	}
	if keyType != KeyTypeFileKey && keyType != KeyTypeCustomID {
		return nil, fmt.Errorf("%w: key type must be %q or %q", ErrInvalidArgument, KeyTypeFileKey, KeyTypeCustomID)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: at least one key is required", ErrInvalidArgument)
	}
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: keys must not be blank", ErrInvalidArgument)
		}
	}
	return c.backend.DeleteFiles(ctx, append([]string(nil), keys...), keyType)
}

// RenameFiles gives files new names.
func (c *Client) RenameFiles(ctx context.Context, updates []RenameUpdate) (*RenameFilesResponse, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: at least one update is required", ErrInvalidArgument)
	}
	for _, u := range updates {
		if err := validateIdentifier(u.FileKey, u.CustomID); err != nil {
			return nil, err
		}
		if strings.TrimSpace(u.NewName) == "" {
			return nil, fmt.Errorf("%w: Missing 'newName' in update", ErrInvalidArgument)
		}
	}
	return c.backend.RenameFiles(ctx, append([]RenameUpdate(nil), updates...))
}

// ListFiles returns one page of files. A nil opts lists from the start with
// the server's default page size.
func (c *Client) ListFiles(ctx context.Context, opts *ListOptions) (*ListFilesResponse, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	var o ListOptions
	if opts != nil {
		o = *opts
	}
	if o.Limit < 0 || o.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidArgument)
	}
	return c.backend.ListFiles(ctx, o)
}

// GetUsageInfo reports storage usage of the app.
func (c *Client) GetUsageInfo(ctx context.Context) (*UsageInfo, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.backend.GetUsageInfo(ctx)
}

// UpdateACL changes the access level of files.
func (c *Client) UpdateACL(ctx context.Context, updates []ACLUpdate) (*UpdateACLResponse, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if err := validateACLUpdates(updates); err != nil {
		return nil, err
	}
	return c.backend.UpdateACL(ctx, append([]ACLUpdate(nil), updates...))
}

func (c *Client) check() error {
	if c == nil || c.backend == nil {
		return fmt.Errorf("uploadthing: client is nil")
	}
	return nil
}

func (c *Client) prepareFile(f File, disposition ContentDisposition, acl ACL) (*PreparedFile, error) {
	if f.Reader == nil {
		return nil, fmt.Errorf("%w: file reader is nil", ErrInvalidArgument)
	}
	data, err := io.ReadAll(f.Reader)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = "upload_" + uuid.NewString()
	}

	seed := c.newSeed()
	key, err := GenerateFileKey(seed, c.appID)
	if err != nil {
		return nil, err
	}

	return &PreparedFile{
		Key:                key,
		CustomID:           seed,
		Name:               name,
		Size:               int64(len(data)),
		Type:               DetectContentType(name, data),
		ContentDisposition: disposition,
		ACL:                acl,
		Data:               data,
	}, nil
}

func resolveUploadOptions(opts *UploadOptions) (ContentDisposition, ACL, error) {
	disposition, acl := DispositionInline, ACLPublicRead
	if opts == nil {
		return disposition, acl, nil
	}
	if opts.ContentDisposition != "" {
		if !opts.ContentDisposition.Valid() {
			return "", "", fmt.Errorf("%w: content disposition must be one of: 'inline', 'attachment'", ErrInvalidArgument)
		}
		disposition = opts.ContentDisposition
	}
	if opts.ACL != "" {
		if !opts.ACL.Valid() {
			return "", "", fmt.Errorf("%w: ACL must be one of: 'public-read', 'private'", ErrInvalidArgument)
		}
		acl = opts.ACL
	}
	return disposition, acl, nil
}

func validateIdentifier(fileKey, customID string) error {
	hasKey := strings.TrimSpace(fileKey) != ""
	hasID := strings.TrimSpace(customID) != ""
	if !hasKey && !hasID {
		return fmt.Errorf("%w: Each update must contain either 'fileKey' or 'customId'", ErrInvalidArgument)
	}
	if hasKey && hasID {
		return fmt.Errorf("%w: update must not contain both 'fileKey' and 'customId'", ErrInvalidArgument)
	}
	return nil
}

func validateACLUpdates(updates []ACLUpdate) error {
	if len(updates) == 0 {
		return fmt.Errorf("%w: at least one update is required", ErrInvalidArgument)
	}
	for _, u := range updates {
		if err := validateIdentifier(u.FileKey, u.CustomID); err != nil {
			return err
		}
		if u.ACL == "" {
			return fmt.Errorf("%w: Missing 'acl' in update", ErrInvalidArgument)
		}
		if !u.ACL.Valid() {
			return fmt.Errorf("%w: ACL must be one of: 'public-read', 'private'", ErrInvalidArgument)
		}
	}
	return nil
}

// DetectContentType guesses the MIME type of a file from its name, then from
// its content. Parameters such as charset are dropped.
func DetectContentType(name string, data []byte) string {
	if ext := filepath.Ext(name); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return mediaType(t)
		}
	}
	if len(data) == 0 {
		return defaultContentType
	}
	return mediaType(mimetype.Detect(data).String())
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "" {
		if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
			return strings.TrimSpace(contentType[:idx])
		}
		return contentType
	}
	return mt
}
