package uploadthing

import (
	"strings"

	"github.com/spf13/viper"
)

// Environment variables read by NewFromEnv.
const (
	EnvToken     = "UPLOADTHING_TOKEN"
	EnvRegion    = "UPLOADTHING_REGION"
	EnvAPIURL    = "UPLOADTHING_API_URL"
	EnvIngestURL = "UPLOADTHING_INGEST_URL"
)

// EnvConfig is the client configuration found in the environment.
type EnvConfig struct {
	Token     string
	Region    string
	APIURL    string
	IngestURL string
}

// LoadEnv reads the UPLOADTHING_* variables.
func LoadEnv() EnvConfig {
	v := viper.New()
	v.SetEnvPrefix("UPLOADTHING")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"token", "region", "api_url", "ingest_url"} {
		_ = v.BindEnv(key)
	}
	return EnvConfig{
		Token:     strings.TrimSpace(v.GetString("token")),
		Region:    strings.TrimSpace(v.GetString("region")),
		APIURL:    strings.TrimSpace(v.GetString("api_url")),
		IngestURL: strings.TrimSpace(v.GetString("ingest_url")),
	}
}

// Options converts the configuration into client options. Empty fields are
// skipped so the token and package defaults apply.
func (e EnvConfig) Options() []Option {
	var opts []Option
	if e.Region != "" {
		opts = append(opts, WithRegion(e.Region))
	}
	if e.APIURL != "" {
		opts = append(opts, WithAPIURL(e.APIURL))
	}
	if e.IngestURL != "" {
		opts = append(opts, WithIngestURL(e.IngestURL))
	}
	return opts
}

// NewFromEnv builds a client from UPLOADTHING_TOKEN. UPLOADTHING_REGION,
// UPLOADTHING_API_URL and UPLOADTHING_INGEST_URL are honoured when set;
// opts are applied after them and win.
func NewFromEnv(opts ...Option) (*Client, error) {
	env := LoadEnv()
	if env.Token == "" {
		return nil, ErrMissingToken
	}
	return New(env.Token, append(env.Options(), opts...)...)
}
