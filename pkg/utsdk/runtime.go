package utsdk

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/farmisen/upyloadthing/internal/devseed"
	"github.com/farmisen/upyloadthing/pkg/uploadthing"
	"github.com/farmisen/upyloadthing/pkg/uploadthing/mock"
)

const (
	EnvMode     = "UPLOADTHING_RUNTIME_MODE"
	EnvMockSeed = "UPLOADTHING_MOCK_SEED"

	ModeAuto = "auto"
	ModeHTTP = "http"
	ModeMock = "mock"
)

// NewFromEnv returns a client and the resolved mode ("http" or "mock").
// opts apply to the HTTP client only.
func NewFromEnv(opts ...uploadthing.Option) (*uploadthing.Client, string, error) {
	v := viper.New()
	v.SetEnvPrefix("UPLOADTHING")
	v.AutomaticEnv()
	_ = v.BindEnv("runtime_mode")
	_ = v.BindEnv("mock_seed")

	mode := strings.ToLower(strings.TrimSpace(v.GetString("runtime_mode")))
	env := uploadthing.LoadEnv()

	switch mode {
	case "", ModeAuto:
		if env.Token != "" {
			return newHTTPClient(env, opts)
		}
		return newMockClient(env, strings.TrimSpace(v.GetString("mock_seed")))
	case ModeHTTP:
		if env.Token == "" {
			return nil, "", fmt.Errorf("utsdk: HTTP mode requires %s", uploadthing.EnvToken)
		}
		return newHTTPClient(env, opts)
	case ModeMock:
		return newMockClient(env, strings.TrimSpace(v.GetString("mock_seed")))
	default:
		return nil, "", fmt.Errorf("utsdk: unsupported %s value %q", EnvMode, mode)
	}
}

func newHTTPClient(env uploadthing.EnvConfig, opts []uploadthing.Option) (*uploadthing.Client, string, error) {
	client, err := uploadthing.New(env.Token, append(env.Options(), opts...)...)
	if err != nil {
		return nil, "", fmt.Errorf("utsdk: init HTTP client: %w", err)
	}
	return client, ModeHTTP, nil
}

// newMockClient reuses the app id of a configured token so generated keys
// look like the real ones.
func newMockClient(env uploadthing.EnvConfig, seedPath string) (*uploadthing.Client, string, error) {
	var mockOpts []mock.Option
	if env.Token != "" {
		tok, err := uploadthing.DecodeToken(env.Token)
		if err != nil {
			return nil, "", fmt.Errorf("utsdk: %w", err)
		}
		mockOpts = append(mockOpts, mock.WithAppID(tok.AppID))
	}
	store := mock.New(mockOpts...)

	if seedPath != "" {
		seed, err := devseed.Load(seedPath)
		if err != nil {
			return nil, "", fmt.Errorf("utsdk: load mock seed: %w", err)
		}
		if err := store.Seed(seed); err != nil {
			return nil, "", fmt.Errorf("utsdk: apply mock seed: %w", err)
		}
	}
	return mock.NewClient(store), ModeMock, nil
}
