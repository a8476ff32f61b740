// Package timer is the scheduled trigger pod. The tick trigger fires on a
// cron schedule evaluated by the chain scheduler.
package timer

import (
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/pombredanne/bipio/engine"
)

const triggerTick = "tick"

type channelConfig struct {
	Schedule string `json:"schedule"`
}

type Pod struct {
	engine.Base
}

func New() *Pod {
	return &Pod{Base: engine.NewBase("timer", schema())}
}

func schema() map[string]engine.ActionSchema {
	return map[string]engine.ActionSchema{
		triggerTick: {
			Title:       "Scheduled Tick",
			Description: "Emits on a cron schedule",
			Trigger:     true,
			Config: engine.ConfigSchema{
				Properties: map[string]engine.ConfigProperty{
					"schedule": {Type: "string", Default: "@hourly", Description: "cron expression"},
				},
			},
			Exports: map[string]engine.ImportProperty{
				"time": {Type: "string", Description: "fire time, RFC 3339"},
				"next": {Type: "string", Description: "next fire time, RFC 3339"},
			},
		},
	}
}

func (p *Pod) parseSchedule(ch *engine.Channel) (*cronexpr.Expression, error) {
	var cfg channelConfig
	if err := engine.DecodeConfig(p.EffectiveConfig(triggerTick, ch), &cfg); err != nil {
		return nil, err
	}
	schedule, err := cronexpr.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("timer: channel %s schedule %q: %w", ch.ID, cfg.Schedule, err)
	}
	return schedule, nil
}

func (p *Pod) Invoke(action string, ch *engine.Channel, imports map[string]any, client *engine.Client, parts []engine.ContentPart, cb engine.InvokeFunc) {
	if action != triggerTick {
		cb(fmt.Errorf("timer: unknown action %q", action), nil)
		return
	}

	schedule, err := p.parseSchedule(ch)
	if err != nil {
		cb(err, nil)
		return
	}

	now := client.Date
	if now.IsZero() {
		now = time.Now()
	}

	cb(nil, map[string]any{
		"time": now.Format(time.RFC3339),
		"next": schedule.Next(now).Format(time.RFC3339),
	})
}

// Setup validates the configured schedule and defers availability until it
// parses.
func (p *Pod) Setup(action string, ch *engine.Channel, account engine.AccountInfo, cb engine.SetupFunc) {
	if _, err := p.parseSchedule(ch); err != nil {
		ch.Available = false
		cb(err)
		return
	}
	ch.Available = true
	cb(nil)
}

func (p *Pod) Repr(action string, ch *engine.Channel) string {
	if ch != nil {
		if schedule, ok := ch.Config["schedule"].(string); ok && schedule != "" {
			return "Tick " + schedule
		}
	}
	return p.Base.Repr(action, ch)
}
