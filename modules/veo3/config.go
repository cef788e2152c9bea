package veo3

import (
	"net/http"
	"time"

	"veo-studio-server/modules/common/config"
)

const (
	DefaultModel        = "veo-3.0-generate-001"
	DefaultPollInterval = 10 * time.Second
	DefaultMaxPolls     = 20
)

// Options - Veo 서비스 설정
type Options struct {
	Model        string
	PollInterval time.Duration
	MaxPolls     int
	HTTPClient   *http.Client
}

// OptionsFromConfig - 공통 설정에서 Veo 설정 추출
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Model:        cfg.VeoModel,
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.MaxPolls,
		HTTPClient: &http.Client{
			Timeout: cfg.AssetFetchTimeout,
		},
	}
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxPolls <= 0 {
		o.MaxPolls = DefaultMaxPolls
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	return o
}

// Ceiling is the longest an attempt can spend polling.
func (o Options) Ceiling() time.Duration {
	o = o.withDefaults()
	return time.Duration(o.MaxPolls) * o.PollInterval
}
