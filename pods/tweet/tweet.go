// Package tweet is the delegated-credential pod: posting requires an OAuth
// token attached to the execution context by the invocation pipeline.
package tweet

import (
	"fmt"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/pombredanne/bipio/engine"
)

const actionPost = "post"

type initConfig struct {
	APIURL  string        `json:"api_url"`
	Timeout time.Duration `json:"timeout"`
}

type Pod struct {
	engine.Base
	client *resty.Client
	apiURL string
}

func New() *Pod {
	return &Pod{Base: engine.NewBase("tweet", schema())}
}

func schema() map[string]engine.ActionSchema {
	return map[string]engine.ActionSchema{
		actionPost: {
			Title:       "Post a Tweet",
			Description: "Posts the status import on the owner's behalf",
			Config:      engine.ConfigSchema{},
			Imports: map[string]engine.ImportProperty{
				"status": {Type: "string", Description: "tweet text"},
			},
			Exports: map[string]engine.ImportProperty{
				"id":   {Type: "string"},
				"text": {Type: "string"},
			},
		},
	}
}

func (p *Pod) Init(store engine.Storage, config map[string]any) error {
	if err := p.Base.Init(store, config); err != nil {
		return err
	}

	cfg := initConfig{
		APIURL:  "https://api.twitter.com/2/tweets",
		Timeout: 15 * time.Second,
	}
	if len(config) > 0 {
		if err := engine.DecodeConfig(config, &cfg); err != nil {
			return fmt.Errorf("tweet pod config: %w", err)
		}
	}

	p.apiURL = cfg.APIURL
	p.client = resty.New().SetTimeout(cfg.Timeout)
	return nil
}

// IsOAuth marks the pod as requiring delegated credentials; the pipeline
// never dispatches Invoke before a token is attached to the client.
func (p *Pod) IsOAuth() bool {
	return true
}

func (p *Pod) Invoke(action string, ch *engine.Channel, imports map[string]any, client *engine.Client, parts []engine.ContentPart, cb engine.InvokeFunc) {
	if action != actionPost {
		cb(fmt.Errorf("tweet: unknown action %q", action), nil)
		return
	}
	if client.OAuthToken == "" {
		cb(fmt.Errorf("tweet: channel %s: %w", ch.ID, engine.ErrNoCredential), nil)
		return
	}

	status, _ := imports["status"].(string)
	if status == "" {
		cb(fmt.Errorf("tweet: channel %s resolved an empty status", ch.ID), nil)
		return
	}

	go func() {
		resp, err := p.client.R().
			SetAuthToken(client.OAuthToken).
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]any{"text": status}).
			Post(p.apiURL)
		if err != nil {
			cb(fmt.Errorf("tweet: posting: %w", err), nil)
			return
		}
		if resp.IsError() {
			cb(fmt.Errorf("tweet: api responded %d: %s", resp.StatusCode(), resp.Body()), nil)
			return
		}

		exports := map[string]any{"text": status}
		if parsed, err := gabs.ParseJSON(resp.Body()); err == nil {
			if id, ok := parsed.Path("data.id").Data().(string); ok {
				exports["id"] = id
			}
		}
		cb(nil, exports)
	}()
}

func (p *Pod) Repr(action string, ch *engine.Channel) string {
	return "Tweet on your behalf"
}
