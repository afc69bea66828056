package uploadthing

import (
	"encoding/json"
	"errors"
	"io"
)

// ACL is the access level of a stored file.
type ACL string

const (
	ACLPublicRead ACL = "public-read"
	ACLPrivate    ACL = "private"
)

// Valid reports whether a is one of the ACL values accepted by the API.
func (a ACL) Valid() bool {
	return a == ACLPublicRead || a == ACLPrivate
}

// ContentDisposition controls how browsers treat served files.
type ContentDisposition string

const (
	DispositionInline     ContentDisposition = "inline"
	DispositionAttachment ContentDisposition = "attachment"
)

// Valid reports whether d is a supported disposition.
func (d ContentDisposition) Valid() bool {
	return d == DispositionInline || d == DispositionAttachment
}

// KeyType selects how DeleteFiles interprets its keys.
type KeyType string

const (
	KeyTypeFileKey  KeyType = "fileKey"
	KeyTypeCustomID KeyType = "customId"
)

// File is an upload input. Name drives the MIME type guess; when empty a
// random upload_<uuid> name is used.
type File struct {
	Name   string
	Reader io.Reader
}

// UploadOptions control how uploaded files are served. Zero values mean
// inline disposition and public-read ACL.
type UploadOptions struct {
	ContentDisposition ContentDisposition
	ACL                ACL
}

// ListOptions paginate ListFiles. Zero values are omitted from the request.
type ListOptions struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// RenameUpdate renames one file, identified by exactly one of FileKey or
// CustomID.
type RenameUpdate struct {
	FileKey  string `json:"fileKey,omitempty"`
	CustomID string `json:"customId,omitempty"`
	NewName  string `json:"newName"`
}

// ACLUpdate changes the ACL of one file, identified by FileKey or CustomID.
type ACLUpdate struct {
	FileKey  string `json:"fileKey,omitempty"`
	CustomID string `json:"customId,omitempty"`
	ACL      ACL    `json:"acl"`
}

// PreparedFile is a validated upload handed to a Backend: the key and custom
// id are already minted and the payload fully read.
type PreparedFile struct {
	Key                string
	CustomID           string
	Name               string
	Size               int64
	Type               string
	ContentDisposition ContentDisposition
	ACL                ACL
	Data               []byte
}

// UploadResult describes a stored file.
type UploadResult struct {
	FileKey    string          `json:"fileKey"`
	Name       string          `json:"name"`
	Size       int64           `json:"size"`
	Type       string          `json:"type"`
	URL        string          `json:"url"`
	UfsURL     string          `json:"ufsUrl"`
	AppURL     string          `json:"appUrl"`
	FileHash   string          `json:"fileHash"`
	ServerData json.RawMessage `json:"serverData,omitempty"`
	ACL        ACL             `json:"acl,omitempty"`
}

// FileData is one entry of a file listing.
type FileData struct {
	ID         string  `json:"id"`
	CustomID   *string `json:"customId"`
	Key        string  `json:"key"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Size       int64   `json:"size"`
	UploadedAt int64   `json:"uploadedAt"`
}

// ListFilesResponse is one page of files.
type ListFilesResponse struct {
	HasMore bool       `json:"hasMore"`
	Files   []FileData `json:"files"`
}

// DeleteFilesResponse reports the outcome of DeleteFiles.
type DeleteFilesResponse struct {
	Success      bool `json:"success"`
	DeletedCount int  `json:"deletedCount"`
}

// RenameFilesResponse reports the outcome of RenameFiles.
type RenameFilesResponse struct {
	Success      bool `json:"success"`
	RenamedCount int  `json:"renamedCount"`
}

// UpdateACLResponse reports the outcome of UpdateACL.
type UpdateACLResponse struct {
	Success      bool `json:"success"`
	UpdatedCount int  `json:"updatedCount"`
}

// UsageInfo summarises storage consumption.
type UsageInfo struct {
	TotalBytes    int64 `json:"totalBytes"`
	AppTotalBytes int64 `json:"appTotalBytes"`
	FilesUploaded int64 `json:"filesUploaded"`
	LimitBytes    int64 `json:"limitBytes"`
}

var (
	// ErrMissingToken is returned when no API token is configured.
	ErrMissingToken = errors.New("uploadthing: UPLOADTHING_TOKEN is required")
	// ErrInvalidToken is returned when the token cannot be decoded.
	ErrInvalidToken = errors.New("uploadthing: invalid token")
	// ErrInvalidArgument wraps caller mistakes detected before any request.
	ErrInvalidArgument = errors.New("uploadthing: invalid argument")
	// ErrNotFound is returned by backends that can tell a file is missing.
	ErrNotFound = errors.New("uploadthing: not found")
	// ErrInvalidSignature is returned for tampered presigned URLs.
	ErrInvalidSignature = errors.New("uploadthing: invalid signature")
	// ErrExpiredURL is returned for presigned URLs past their expiry.
	ErrExpiredURL = errors.New("uploadthing: presigned URL expired")
)
