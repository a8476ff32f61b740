// Package webhook is the outbound HTTP pod: it posts resolved imports as a
// JSON document to a configured endpoint and exports the parsed response.
package webhook

import (
	"fmt"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/pombredanne/bipio/engine"
)

const actionPost = "post"

// initConfig is the pod-level configuration block from the daemon config.
type initConfig struct {
	Timeout time.Duration `json:"timeout"`
	Retries int           `json:"retries"`
	Debug   bool          `json:"debug"`
}

// channelConfig is the per-channel effective config for the post action.
type channelConfig struct {
	URL    string `json:"url"`
	Method string `json:"method"`
}

type Pod struct {
	engine.Base
	client *resty.Client
}

func New() *Pod {
	return &Pod{Base: engine.NewBase("webhook", schema())}
}

func schema() map[string]engine.ActionSchema {
	return map[string]engine.ActionSchema{
		actionPost: {
			Title:       "Outgoing Webhook",
			Description: "POSTs imports to an endpoint as JSON",
			Config: engine.ConfigSchema{
				Properties: map[string]engine.ConfigProperty{
					"url":    {Type: "string", Description: "endpoint URL"},
					"method": {Type: "string", Default: "POST"},
				},
			},
			Imports: map[string]engine.ImportProperty{
				"body":  {Type: "string", Description: "request payload"},
				"title": {Type: "string"},
			},
			Exports: map[string]engine.ImportProperty{
				"status": {Type: "integer"},
				"body":   {Type: "object"},
			},
		},
	}
}

func (p *Pod) Init(store engine.Storage, config map[string]any) error {
	if err := p.Base.Init(store, config); err != nil {
		return err
	}

	cfg := initConfig{Timeout: 30 * time.Second, Retries: 2}
	if len(config) > 0 {
		if err := engine.DecodeConfig(config, &cfg); err != nil {
			return fmt.Errorf("webhook pod config: %w", err)
		}
	}

	p.client = resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetDebug(cfg.Debug)
	return nil
}

func (p *Pod) Invoke(action string, ch *engine.Channel, imports map[string]any, client *engine.Client, parts []engine.ContentPart, cb engine.InvokeFunc) {
	if action != actionPost {
		cb(fmt.Errorf("webhook: unknown action %q", action), nil)
		return
	}

	var cfg channelConfig
	if err := engine.DecodeConfig(p.EffectiveConfig(action, ch), &cfg); err != nil {
		cb(err, nil)
		return
	}
	if cfg.URL == "" {
		cb(fmt.Errorf("webhook: channel %s has no url configured", ch.ID), nil)
		return
	}

	go func() {
		resp, err := p.client.R().
			SetHeader("Content-Type", "application/json").
			SetBody(imports).
			Execute(cfg.Method, cfg.URL)
		if err != nil {
			cb(fmt.Errorf("webhook: posting to %s: %w", cfg.URL, err), nil)
			return
		}

		exports := map[string]any{
			"status": resp.StatusCode(),
		}
		if parsed, err := gabs.ParseJSON(resp.Body()); err == nil {
			exports["body"] = parsed.Data()
		} else {
			exports["body"] = string(resp.Body())
		}
		cb(nil, exports)
	}()
}

func (p *Pod) Repr(action string, ch *engine.Channel) string {
	if ch != nil {
		if url, ok := ch.Config["url"].(string); ok && url != "" {
			return "POST to " + url
		}
	}
	return p.Base.Repr(action, ch)
}
