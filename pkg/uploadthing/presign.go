package uploadthing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultIngestURL is the ingest host template; {region} is replaced
	// with the upload region alias.
	DefaultIngestURL = "https://{region}.ingest.uploadthing.com"

	presignTTL      = time.Hour
	signatureParam  = "&signature="
	signaturePrefix = "hmac-sha256="
)

// PresignParams describes one presigned ingest URL.
type PresignParams struct {
	IngestURL          string
	Region             string
	FileKey            string
	APIKey             string
	AppID              string
	FileName           string
	FileSize           int64
	FileType           string
	CustomID           string
	ContentDisposition ContentDisposition
	ACL                ACL
	Expires            time.Time
}

// PresignURL builds a signed ingest URL for a PUT upload. Query parameters
// keep a fixed order since the signature covers the literal URL. A zero
// Expires means one hour from now.
func PresignURL(p PresignParams) (string, error) {
	switch {
	case strings.TrimSpace(p.Region) == "":
		return "", fmt.Errorf("%w: region is required", ErrInvalidArgument)
	case strings.TrimSpace(p.FileKey) == "":
		return "", fmt.Errorf("%w: file key is required", ErrInvalidArgument)
	case p.APIKey == "":
		return "", fmt.Errorf("%w: api key is required", ErrInvalidArgument)
	case p.FileSize < 0:
		return "", fmt.Errorf("%w: file size must not be negative", ErrInvalidArgument)
	}

	expires := p.Expires
	if expires.IsZero() {
		expires = time.Now().Add(presignTTL)
	}

	var b strings.Builder
	b.WriteString(ingestBase(p.IngestURL, p.Region))
	b.WriteByte('/')
	b.WriteString(p.FileKey)
	b.WriteString("?expires=")
	b.WriteString(strconv.FormatInt(expires.UnixMilli(), 10))
	writeParam(&b, "x-ut-identifier", p.AppID)
	writeParam(&b, "x-ut-file-name", p.FileName)
	writeParam(&b, "x-ut-file-size", strconv.FormatInt(p.FileSize, 10))
	if p.FileType != "" {
		writeParam(&b, "x-ut-file-type", p.FileType)
	}
	if p.CustomID != "" {
		writeParam(&b, "x-ut-custom-id", p.CustomID)
	}
	if p.ContentDisposition != "" {
		writeParam(&b, "x-ut-content-disposition", string(p.ContentDisposition))
	}
	if p.ACL != "" {
		writeParam(&b, "x-ut-acl", string(p.ACL))
	}

	unsigned := b.String()
	return unsigned + signatureParam + sign(unsigned, p.APIKey), nil
}

// ParsePresignedURL recovers the upload parameters carried by a presigned
// URL. The signature is not checked; see VerifyPresignedURL.
func ParsePresignedURL(raw string) (*PresignParams, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse presigned URL: %v", ErrInvalidArgument, err)
	}
	q := u.Query()

	p := &PresignParams{
		FileKey:            path.Base(u.Path),
		AppID:              q.Get("x-ut-identifier"),
		FileName:           q.Get("x-ut-file-name"),
		FileType:           q.Get("x-ut-file-type"),
		CustomID:           q.Get("x-ut-custom-id"),
		ContentDisposition: ContentDisposition(q.Get("x-ut-content-disposition")),
		ACL:                ACL(q.Get("x-ut-acl")),
	}
	if u.Scheme != "" && u.Host != "" {
		p.IngestURL = u.Scheme + "://" + u.Host + strings.TrimSuffix(path.Dir(u.Path), "/")
	}
	if p.FileKey == "" || p.FileKey == "/" || p.FileKey == "." {
		return nil, fmt.Errorf("%w: presigned URL has no file key", ErrInvalidArgument)
	}
	if p.FileSize, err = strconv.ParseInt(q.Get("x-ut-file-size"), 10, 64); err != nil {
		return nil, fmt.Errorf("%w: bad x-ut-file-size: %v", ErrInvalidArgument, err)
	}
	ms, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad expires: %v", ErrInvalidArgument, err)
	}
	p.Expires = time.UnixMilli(ms)
	return p, nil
}

// VerifyPresignedURL checks the HMAC signature of raw against apiKey and
// rejects URLs whose expiry is before now.
func VerifyPresignedURL(raw, apiKey string, now time.Time) error {
	idx := strings.LastIndex(raw, signatureParam)
	if idx < 0 {
		return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}
	unsigned, got := raw[:idx], raw[idx+len(signatureParam):]
	want := sign(unsigned, apiKey)
	if !hmac.Equal([]byte(got), []byte(want)) {
		return ErrInvalidSignature
	}

	p, err := ParsePresignedURL(unsigned)
	if err != nil {
		return err
	}
	if now.After(p.Expires) {
		return ErrExpiredURL
	}
	return nil
}

func ingestBase(template, region string) string {
	if template == "" {
		template = DefaultIngestURL
	}
	return strings.TrimSuffix(strings.ReplaceAll(template, "{region}", region), "/")
}

func writeParam(b *strings.Builder, key, value string) {
	b.WriteByte('&')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(value))
}

func sign(message, apiKey string) string {
	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write([]byte(message))
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
