// Package email is the message composition pod. Composed messages land in
// the pod's outbox namespace; an external relay drains it.
package email

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pombredanne/bipio/engine"
)

const actionSend = "send"

type channelConfig struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
}

// Message is one composed outbox entry.
type Message struct {
	ID      string    `json:"id"`
	OwnerID string    `json:"owner_id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Created time.Time `json:"created"`
}

type Pod struct {
	engine.Base
}

func New() *Pod {
	return &Pod{Base: engine.NewBase("email", schema())}
}

func schema() map[string]engine.ActionSchema {
	return map[string]engine.ActionSchema{
		actionSend: {
			Title:       "Send an Email",
			Description: "Composes an email for delivery",
			Config: engine.ConfigSchema{
				Properties: map[string]engine.ConfigProperty{
					// One outbound identity per account.
					"from":    {Type: "string", Default: "noreply@bip.example.org", Unique: true},
					"subject": {Type: "string", Description: "fallback subject"},
				},
			},
			Imports: map[string]engine.ImportProperty{
				"to":      {Type: "string", Description: "recipient"},
				"subject": {Type: "string"},
				"body":    {Type: "string"},
			},
			Exports: map[string]engine.ImportProperty{
				"message_id": {Type: "string"},
			},
			TransformDefaults: map[string]string{
				"webhook.post": "[% local#body %]",
			},
		},
	}
}

func (p *Pod) Invoke(action string, ch *engine.Channel, imports map[string]any, client *engine.Client, parts []engine.ContentPart, cb engine.InvokeFunc) {
	if action != actionSend {
		cb(fmt.Errorf("email: unknown action %q", action), nil)
		return
	}

	var cfg channelConfig
	if err := engine.DecodeConfig(p.EffectiveConfig(action, ch), &cfg); err != nil {
		cb(err, nil)
		return
	}

	to, _ := imports["to"].(string)
	if to == "" {
		cb(fmt.Errorf("email: channel %s resolved no recipient", ch.ID), nil)
		return
	}

	subject, _ := imports["subject"].(string)
	if subject == "" {
		subject = cfg.Subject
	}
	body, _ := imports["body"].(string)

	msg := Message{
		ID:      uuid.New().String(),
		OwnerID: client.OwnerID,
		From:    cfg.From,
		To:      to,
		Subject: subject,
		Body:    body,
		Created: time.Now().UTC(),
	}

	ns := p.Store()
	go func() {
		if err := ns.Put(msg.ID, msg); err != nil {
			cb(fmt.Errorf("email: queueing message: %w", err), nil)
			return
		}
		p.Log().Info("message queued", "message", msg.ID, "owner", msg.OwnerID)
		cb(nil, map[string]any{"message_id": msg.ID})
	}()
}

func (p *Pod) Repr(action string, ch *engine.Channel) string {
	if ch != nil {
		if from, ok := ch.Config["from"].(string); ok && from != "" {
			return "Email from " + from
		}
	}
	return p.Base.Repr(action, ch)
}
