// Package mock provides an in-memory UploadThing backend for tests, local
// development and the sandbox server.
package mock

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farmisen/upyloadthing/internal/devseed"
	"github.com/farmisen/upyloadthing/pkg/uploadthing"
)

const (
	// DefaultAppID is used when no app id is configured.
	DefaultAppID = "mock-app"
	// DefaultLimitBytes mirrors the free tier quota.
	DefaultLimitBytes int64 = 2 << 30
	// DefaultListLimit is the page size used when ListOptions.Limit is zero.
	DefaultListLimit = 500

	statusUploaded = "Uploaded"
)

type storedFile struct {
	id         string
	key        string
	customID   string
	name       string
	typ        string
	acl        uploadthing.ACL
	data       []byte
	hash       string
	uploadedAt int64
}

// Mock keeps files in memory and implements uploadthing.Backend.
type Mock struct {
	mu         sync.RWMutex
	appID      string
	limit      int64
	now        func() time.Time
	files      map[string]*storedFile
	byCustomID map[string]string
}

var _ uploadthing.Backend = (*Mock)(nil)

// Option configures a Mock.
type Option func(*Mock)

// WithAppID sets the app id used in generated keys and URLs.
func WithAppID(appID string) Option {
	return func(m *Mock) {
		if strings.TrimSpace(appID) != "" {
			m.appID = appID
		}
	}
}

// WithLimitBytes sets the storage quota. Uploads beyond it are rejected.
func WithLimitBytes(limit int64) Option {
	return func(m *Mock) {
		if limit > 0 {
			m.limit = limit
		}
	}
}

// WithClock replaces time.Now for upload timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Mock) {
		if now != nil {
			m.now = now
		}
	}
}

// New constructs an empty store.
func New(opts ...Option) *Mock {
	m := &Mock{
		appID:      DefaultAppID,
		limit:      DefaultLimitBytes,
		now:        time.Now,
		files:      make(map[string]*storedFile),
		byCustomID: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewClient returns a client backed by m.
func NewClient(m *Mock) *uploadthing.Client {
	return uploadthing.NewWithBackend(m, m.AppID())
}

// AppID returns the app id of the store.
func (m *Mock) AppID() string {
	return m.appID
}

// Seed loads files and the quota from a seed document.
func (m *Mock) Seed(seed *devseed.Seed) error {
	if seed == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if seed.LimitBytes > 0 {
		m.limit = seed.LimitBytes
	}
	for i, e := range seed.Files {
		data, err := e.Data()
		if err != nil {
			return fmt.Errorf("mock uploadthing: seed file %d: %w", i, err)
		}
		acl := uploadthing.ACL(e.ACL)
		if acl == "" {
			acl = uploadthing.ACLPublicRead
		}
		if !acl.Valid() {
			return fmt.Errorf("mock uploadthing: seed file %d: invalid acl %q", i, e.ACL)
		}
		key := e.Key
		if key == "" {
			if key, err = uploadthing.GenerateFileKey(uuid.NewString(), m.appID); err != nil {
				return fmt.Errorf("mock uploadthing: seed file %d: %w", i, err)
			}
		}
		typ := e.Type
		if typ == "" {
			typ = uploadthing.DetectContentType(e.Name, data)
		}
		uploadedAt := e.UploadedAt
		if uploadedAt == 0 {
			uploadedAt = m.now().UnixMilli()
		}
		if err := m.putLocked(&storedFile{
			key:        key,
			customID:   e.CustomID,
			name:       e.Name,
			typ:        typ,
			acl:        acl,
			data:       append([]byte(nil), data...),
			uploadedAt: uploadedAt,
		}); err != nil {
			return fmt.Errorf("mock uploadthing: seed file %d: %w", i, err)
		}
	}
	return nil
}

// Upload stores a prepared file.
func (m *Mock) Upload(ctx context.Context, f *uploadthing.PreparedFile) (*uploadthing.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f == nil || strings.TrimSpace(f.Key) == "" {
		return nil, fmt.Errorf("%w: file key is required", uploadthing.ErrInvalidArgument)
	}
	acl := f.ACL
	if acl == "" {
		acl = uploadthing.ACLPublicRead
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := &storedFile{
		key:        f.Key,
		customID:   f.CustomID,
		name:       f.Name,
		typ:        f.Type,
		acl:        acl,
		data:       append([]byte(nil), f.Data...),
		uploadedAt: m.now().UnixMilli(),
	}
	if err := m.putLocked(stored); err != nil {
		return nil, err
	}
	return m.resultLocked(stored), nil
}

// Open returns the payload and listing entry of the file stored under key.
func (m *Mock) Open(ctx context.Context, key string) ([]byte, *uploadthing.FileData, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[key]
	if !ok {
		return nil, nil, uploadthing.ErrNotFound
	}
	fd := f.fileData()
	return append([]byte(nil), f.data...), &fd, nil
}

// Result returns the upload record of a stored file.
func (m *Mock) Result(ctx context.Context, key string) (*uploadthing.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[key]
	if !ok {
		return nil, uploadthing.ErrNotFound
	}
	return m.resultLocked(f), nil
}

// DeleteFiles removes matching files. Unknown keys are ignored.
func (m *Mock) DeleteFiles(ctx context.Context, keys []string, keyType uploadthing.KeyType) (*uploadthing.DeleteFilesResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for _, k := range keys {
		f := m.lookupLocked(k, keyType)
		if f == nil {
			continue
		}
		delete(m.files, f.key)
		if f.customID != "" {
			delete(m.byCustomID, f.customID)
		}
		deleted++
	}
	return &uploadthing.DeleteFilesResponse{Success: true, DeletedCount: deleted}, nil
}

// RenameFiles renames matching files. Unknown identifiers are ignored.
func (m *Mock) RenameFiles(ctx context.Context, updates []uploadthing.RenameUpdate) (*uploadthing.RenameFilesResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	renamed := 0
	for _, u := range updates {
		f := m.lookupUpdateLocked(u.FileKey, u.CustomID)
		if f == nil {
			continue
		}
		f.name = u.NewName
		renamed++
	}
	return &uploadthing.RenameFilesResponse{Success: true, RenamedCount: renamed}, nil
}

// ListFiles pages through files ordered by upload time, then key.
func (m *Mock) ListFiles(ctx context.Context, opts uploadthing.ListOptions) (*uploadthing.ListFilesResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, &uploadthing.APIError{StatusCode: http.StatusBadRequest, Message: "limit and offset must not be negative"}
	}
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	all := make([]uploadthing.FileData, 0, len(m.files))
	for _, f := range m.files {
		all = append(all, f.fileData())
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].UploadedAt != all[j].UploadedAt {
			return all[i].UploadedAt < all[j].UploadedAt
		}
		return all[i].Key < all[j].Key
	})

	files := []uploadthing.FileData{}
	if opts.Offset < len(all) {
		end := len(all)
		if limit < end-opts.Offset {
			end = opts.Offset + limit
		}
		files = append(files, all[opts.Offset:end]...)
	}
	return &uploadthing.ListFilesResponse{
		HasMore: opts.Offset+len(files) < len(all),
		Files:   files,
	}, nil
}

// GetUsageInfo sums stored bytes.
func (m *Mock) GetUsageInfo(ctx context.Context) (*uploadthing.UsageInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := m.totalBytesLocked()
	return &uploadthing.UsageInfo{
		TotalBytes:    total,
		AppTotalBytes: total,
		FilesUploaded: int64(len(m.files)),
		LimitBytes:    m.limit,
	}, nil
}

// UpdateACL changes the ACL of matching files.
func (m *Mock) UpdateACL(ctx context.Context, updates []uploadthing.ACLUpdate) (*uploadthing.UpdateACLResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, u := range updates {
		if !u.ACL.Valid() {
			return nil, &uploadthing.APIError{StatusCode: http.StatusBadRequest, Message: "ACL must be one of: 'public-read', 'private'"}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	updated := 0
	for _, u := range updates {
		f := m.lookupUpdateLocked(u.FileKey, u.CustomID)
		if f == nil {
			continue
		}
		f.acl = u.ACL
		updated++
	}
	return &uploadthing.UpdateACLResponse{Success: true, UpdatedCount: updated}, nil
}

func (m *Mock) putLocked(f *storedFile) error {
	var replaced int64
	if prev, ok := m.files[f.key]; ok {
		replaced = int64(len(prev.data))
	}
	if m.totalBytesLocked()-replaced+int64(len(f.data)) > m.limit {
		return &uploadthing.APIError{StatusCode: http.StatusRequestEntityTooLarge, Message: "Storage limit exceeded"}
	}
	if f.customID != "" {
		if owner, ok := m.byCustomID[f.customID]; ok && owner != f.key {
			return &uploadthing.APIError{StatusCode: http.StatusConflict, Message: fmt.Sprintf("custom id %q already in use", f.customID)}
		}
	}

	if prev, ok := m.files[f.key]; ok {
		f.id = prev.id
		if prev.customID != "" && prev.customID != f.customID {
			delete(m.byCustomID, prev.customID)
		}
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("mock uploadthing: new id: %w", err)
		}
		f.id = id.String()
	}
	sum := md5.Sum(f.data)
	f.hash = hex.EncodeToString(sum[:])

	m.files[f.key] = f
	if f.customID != "" {
		m.byCustomID[f.customID] = f.key
	}
	return nil
}

func (m *Mock) lookupLocked(id string, keyType uploadthing.KeyType) *storedFile {
	if keyType == uploadthing.KeyTypeCustomID {
		key, ok := m.byCustomID[id]
		if !ok {
			return nil
		}
		id = key
	}
	return m.files[id]
}

func (m *Mock) lookupUpdateLocked(fileKey, customID string) *storedFile {
	if fileKey != "" {
		return m.lookupLocked(fileKey, uploadthing.KeyTypeFileKey)
	}
	return m.lookupLocked(customID, uploadthing.KeyTypeCustomID)
}

func (m *Mock) totalBytesLocked() int64 {
	var total int64
	for _, f := range m.files {
		total += int64(len(f.data))
	}
	return total
}

func (m *Mock) resultLocked(f *storedFile) *uploadthing.UploadResult {
	return &uploadthing.UploadResult{
		FileKey:  f.key,
		Name:     f.name,
		Size:     int64(len(f.data)),
		Type:     f.typ,
		URL:      "https://utfs.io/f/" + f.key,
		UfsURL:   "https://" + m.appID + ".ufs.sh/f/" + f.key,
		AppURL:   "https://utfs.io/a/" + m.appID + "/" + f.key,
		FileHash: f.hash,
		ACL:      f.acl,
	}
}

func (f *storedFile) fileData() uploadthing.FileData {
	fd := uploadthing.FileData{
		ID:         f.id,
		Key:        f.key,
		Name:       f.name,
		Status:     statusUploaded,
		Size:       int64(len(f.data)),
		UploadedAt: f.uploadedAt,
	}
	if f.customID != "" {
		id := f.customID
		fd.CustomID = &id
	}
	return fd
}
