package uploadthing

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Token is the decoded form of an UPLOADTHING_TOKEN.
type Token struct {
	APIKey  string   `json:"apiKey"`
	AppID   string   `json:"appId"`
	Regions []string `json:"regions"`
}

// DecodeToken parses a base64-encoded JSON token. Standard and URL-safe
// alphabets are accepted, with or without padding.
func DecodeToken(raw string) (*Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}

	data, err := decodeBase64(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrInvalidToken, err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidToken, err)
	}
	if err := tok.validate(); err != nil {
		return nil, err
	}
	return &tok, nil
}

// EncodeToken renders t the way the dashboard issues tokens.
func EncodeToken(t Token) (string, error) {
	if err := t.validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("uploadthing: encode token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DefaultRegion returns the first region the token grants.
func (t *Token) DefaultRegion() string {
	if t == nil || len(t.Regions) == 0 {
		return ""
	}
	return t.Regions[0]
}

func (t *Token) validate() error {
	switch {
	case strings.TrimSpace(t.APIKey) == "":
		return fmt.Errorf("%w: missing apiKey", ErrInvalidToken)
	case strings.TrimSpace(t.AppID) == "":
		return fmt.Errorf("%w: missing appId", ErrInvalidToken)
	case len(t.Regions) == 0 || strings.TrimSpace(t.Regions[0]) == "":
		return fmt.Errorf("%w: missing regions", ErrInvalidToken)
	}
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var firstErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
