package engine

import "strings"

// ActionRef is a parsed view over a channel's "pod.action" string. It is
// recomputed on demand and never cached beyond one resolution.
//
// Parsing succeeds only when the string splits into exactly two non-empty
// tokens on "." and the registry holds a pod for the first token whose schema
// knows the second. No partial matches, no case normalisation. All accessors
// other than OK are undefined when OK reports false; callers check first.
type ActionRef struct {
	Pod    string
	Action string

	pod    Pod
	schema ActionSchema
	ok     bool
}

// ParseAction resolves action against the registry.
func ParseAction(reg *Registry, action string) ActionRef {
	tokens := strings.Split(action, ".")
	if len(tokens) != 2 || tokens[0] == "" || tokens[1] == "" {
		return ActionRef{}
	}
	pod, found := reg.Get(tokens[0])
	if !found {
		return ActionRef{}
	}
	schema, known := pod.ActionSchema(tokens[1])
	if !known {
		return ActionRef{}
	}
	return ActionRef{
		Pod:    tokens[0],
		Action: tokens[1],
		pod:    pod,
		schema: schema,
		ok:     true,
	}
}

// OK reports whether parsing succeeded.
func (a ActionRef) OK() bool {
	return a.ok
}

// Schema returns the resolved action's schema.
func (a ActionRef) Schema() ActionSchema {
	return a.schema
}

// IsTrigger reports whether the resolved action is an event source rather
// than an effect.
func (a ActionRef) IsTrigger() bool {
	return a.pod.IsTrigger(a.Action)
}

// SingletonConstraints collects the config schema properties marked unique.
// The persistence layer uses the set to enforce at-most-one-channel-per-value
// semantics. Returns nil when the action declares none.
func (a ActionRef) SingletonConstraints() map[string]ConfigProperty {
	var constraints map[string]ConfigProperty
	for key, prop := range a.schema.Config.Properties {
		if !prop.Unique {
			continue
		}
		if constraints == nil {
			constraints = make(map[string]ConfigProperty)
		}
		constraints[key] = prop
	}
	return constraints
}
