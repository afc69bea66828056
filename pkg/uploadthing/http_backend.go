package uploadthing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/farmisen/upyloadthing/internal/httpx"
)

const (
	deleteFilesPath = "/v6/deleteFiles"
	renameFilesPath = "/v6/renameFiles"
	listFilesPath   = "/v6/listFiles"
	usageInfoPath   = "/v6/getUsageInfo"
	updateACLPath   = "/v6/updateACL"
)

type httpBackend struct {
	client    *httpx.Client
	token     Token
	region    string
	ingestURL string
	now       func() time.Time
}

type uploadResponse struct {
	URL        string          `json:"url"`
	UfsURL     string          `json:"ufsUrl"`
	AppURL     string          `json:"appUrl"`
	FileHash   string          `json:"fileHash"`
	ServerData json.RawMessage `json:"serverData"`
	ACL        ACL             `json:"acl"`
}

func (b *httpBackend) Upload(ctx context.Context, f *PreparedFile) (*UploadResult, error) {
	ingest, err := PresignURL(PresignParams{
		IngestURL:          b.ingestURL,
		Region:             b.region,
		FileKey:            f.Key,
		APIKey:             b.token.APIKey,
		AppID:              b.token.AppID,
		FileName:           f.Name,
		FileSize:           f.Size,
		FileType:           f.Type,
		CustomID:           f.CustomID,
		ContentDisposition: f.ContentDisposition,
		ACL:                f.ACL,
		Expires:            b.now().Add(presignTTL),
	})
	if err != nil {
		return nil, err
	}

	body, contentType, err := httpx.MultipartFile("file", f.Name, f.Type, f.Data)
	if err != nil {
		return nil, fmt.Errorf("uploadthing: upload file: %w", err)
	}

	var resp uploadResponse
	if err := b.call(ctx, "upload file", http.MethodPut, ingest, body, contentType, &resp); err != nil {
		return nil, err
	}
	switch {
	case resp.URL == "":
		return nil, fmt.Errorf("uploadthing: upload file: response missing url")
	case resp.UfsURL == "":
		return nil, fmt.Errorf("uploadthing: upload file: response missing ufsUrl")
	case resp.AppURL == "":
		return nil, fmt.Errorf("uploadthing: upload file: response missing appUrl")
	case resp.FileHash == "":
		return nil, fmt.Errorf("uploadthing: upload file: response missing fileHash")
	}

	acl := resp.ACL
	if acl == "" {
		acl = f.ACL
	}
	return &UploadResult{
		FileKey:    f.Key,
		Name:       f.Name,
		Size:       f.Size,
		Type:       f.Type,
		URL:        resp.URL,
		UfsURL:     resp.UfsURL,
		AppURL:     resp.AppURL,
		FileHash:   resp.FileHash,
		ServerData: normalizeRaw(resp.ServerData),
		ACL:        acl,
	}, nil
}

func (b *httpBackend) DeleteFiles(ctx context.Context, keys []string, keyType KeyType) (*DeleteFilesResponse, error) {
	payload := map[string][]string{}
	if keyType == KeyTypeCustomID {
		payload["customIds"] = keys
	} else {
		payload["fileKeys"] = keys
	}
	var out DeleteFilesResponse
	if err := b.postJSON(ctx, "delete files", deleteFilesPath, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) RenameFiles(ctx context.Context, updates []RenameUpdate) (*RenameFilesResponse, error) {
	var out RenameFilesResponse
	if err := b.postJSON(ctx, "rename files", renameFilesPath, map[string]any{"updates": updates}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) ListFiles(ctx context.Context, opts ListOptions) (*ListFilesResponse, error) {
	var out ListFilesResponse
	if err := b.postJSON(ctx, "list files", listFilesPath, opts, &out); err != nil {
		return nil, err
	}
	if out.Files == nil {
		out.Files = []FileData{}
	}
	return &out, nil
}

func (b *httpBackend) GetUsageInfo(ctx context.Context) (*UsageInfo, error) {
	var out UsageInfo
	if err := b.postJSON(ctx, "get usage info", usageInfoPath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) UpdateACL(ctx context.Context, updates []ACLUpdate) (*UpdateACLResponse, error) {
	var out UpdateACLResponse
	if err := b.postJSON(ctx, "update acl", updateACLPath, map[string]any{"updates": updates}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// postJSON sends payload as a JSON body; a nil payload sends no body.
func (b *httpBackend) postJSON(ctx context.Context, op, path string, payload any, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	if payload != nil {
		var err error
		body, contentType, err = httpx.WithJSONBody(payload)
		if err != nil {
			return fmt.Errorf("uploadthing: %s: encode request: %w", op, err)
		}
	}
	return b.call(ctx, op, http.MethodPost, path, body, contentType, out)
}

func (b *httpBackend) call(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	req := &httpx.Request{
		Method: method,
		Path:   path,
		Body:   body,
	}
	if contentType != "" {
		req.Header = http.Header{"Content-Type": {contentType}}
	}
	return translateError(op, b.client.DoJSON(ctx, req, out))
}

func normalizeRaw(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return raw
}
