// Package flow holds chain control pods. The filter action gates a chain on
// a boolean expression over the resolved imports.
package flow

import (
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/pombredanne/bipio/engine"
)

const actionFilter = "filter"

type channelConfig struct {
	Expression string `json:"expression"`
}

type Pod struct {
	engine.Base
}

func New() *Pod {
	return &Pod{Base: engine.NewBase("flow", schema())}
}

func schema() map[string]engine.ActionSchema {
	return map[string]engine.ActionSchema{
		actionFilter: {
			Title:       "Filter",
			Description: "Continues the chain only when an expression holds",
			Config: engine.ConfigSchema{
				Properties: map[string]engine.ConfigProperty{
					"expression": {Type: "string", Default: "true"},
				},
			},
			Imports: map[string]engine.ImportProperty{
				"value": {Type: "string", Description: "value under test"},
			},
			Exports: map[string]engine.ImportProperty{
				"pass": {Type: "boolean"},
			},
		},
	}
}

func (p *Pod) Invoke(action string, ch *engine.Channel, imports map[string]any, client *engine.Client, parts []engine.ContentPart, cb engine.InvokeFunc) {
	if action != actionFilter {
		cb(fmt.Errorf("flow: unknown action %q", action), nil)
		return
	}

	var cfg channelConfig
	if err := engine.DecodeConfig(p.EffectiveConfig(action, ch), &cfg); err != nil {
		cb(err, nil)
		return
	}

	go func() {
		env := map[string]any{}
		for k, v := range imports {
			env[k] = v
		}

		program, err := expr.Compile(cfg.Expression,
			expr.Env(env),
			expr.AllowUndefinedVariables(),
			expr.AsBool())
		if err != nil {
			cb(fmt.Errorf("flow: compiling %q: %w", cfg.Expression, err), nil)
			return
		}

		result, err := expr.Run(program, env)
		if err != nil {
			cb(fmt.Errorf("flow: evaluating %q: %w", cfg.Expression, err), nil)
			return
		}

		pass, _ := result.(bool)
		exports := map[string]any{"pass": pass}
		if pass {
			// Imports flow through so downstream steps can keep wiring them.
			for k, v := range imports {
				exports[k] = v
			}
		}
		cb(nil, exports)
	}()
}
