package engine

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Package-level validator for entity field rules.
var validate = validator.New()

// Channel is a persisted, user-configured instance of one pod action. It is
// both a record and the entry point for resolving and invoking that action.
// Invocation reads but never mutates the record; mutation happens only
// through the save and post-save path.
type Channel struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	Name   string         `json:"name" validate:"required,max=64"`
	Action string         `json:"action" validate:"required"`
	Config map[string]any `json:"config"`

	// Available is server controlled. A pod's setup step may defer
	// availability after creation at its own pace.
	Available bool      `json:"available"`
	Note      string    `json:"note"`
	Created   time.Time `json:"created"`
}

// CompoundKey is the uniqueness constraint the persistence layer enforces
// across channels of one account.
var CompoundKey = []string{"owner_id", "name", "action"}

const maxNoteBytes = 1024

// Validate applies the entity field rules and resolves the action against the
// registry. A channel whose action cannot be resolved is invalid and must not
// be invocable.
func (c *Channel) Validate(reg *Registry) error {
	verr := &ValidationError{Entity: "channel"}

	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				switch fe.Tag() {
				case "required":
					verr.add(fe.Field(), "cannot be empty")
				case "max":
					verr.add(fe.Field(), "too long")
				default:
					verr.add(fe.Field(), "invalid")
				}
			}
		} else {
			return err
		}
	}

	if len(c.Note) > maxNoteBytes {
		verr.add("Note", "text is too long, 1kb max")
	}

	if len(c.Config) == 0 {
		verr.add("Config", "cannot be empty")
	}

	if c.Action != "" {
		if ref := ParseAction(reg, c.Action); !ref.OK() {
			verr.add("Action", "invalid pod or action")
		}
	}

	if !verr.ok() {
		return verr
	}
	return nil
}

// ApplyAction writes a new action onto the channel and hydrates its config
// with the server-side defaults the referenced action declares. Stored values
// for properties the new action still declares are preserved over defaults;
// everything else is dropped with the old action.
func (c *Channel) ApplyAction(reg *Registry, action string) {
	c.Action = action
	ref := ParseAction(reg, action)
	if !ref.OK() {
		return
	}

	config := ref.pod.ImportDefaults(ref.Action)
	for key := range ref.schema.Config.Properties {
		if v, ok := c.Config[key]; ok && truthy(v) {
			config[key] = v
		}
	}
	c.Config = config
}

// EffectiveConfig computes the configuration an invocation sees by overlaying
// the stored config onto the action's declared defaults. Plugin defaults can
// evolve without a migration pass over stored channels: this is purely a
// read-time view and never mutates the stored config.
func (c *Channel) EffectiveConfig(reg *Registry) map[string]any {
	ref := ParseAction(reg, c.Action)
	if !ref.OK() {
		return nil
	}
	return mergeConfigDefaults(c.Config, ref.pod.ImportConfig(ref.Action))
}

// mergeConfigDefaults applies the merger algorithm: per declared property, a
// truthy stored value wins, else a declared default, else the property is
// omitted. Idempotent by construction.
func mergeConfigDefaults(stored map[string]any, schema ConfigSchema) map[string]any {
	config := make(map[string]any)
	for key, prop := range schema.Properties {
		if v, ok := stored[key]; ok && truthy(v) {
			config[key] = v
		} else if prop.Default != nil {
			config[key] = prop.Default
		}
	}
	return config
}

// TestImport reports whether a named import is valid for the configured
// action.
func (c *Channel) TestImport(reg *Registry, importName string) bool {
	ref := ParseAction(reg, c.Action)
	if !ref.OK() {
		return false
	}
	return ref.pod.TestImport(ref.Action, importName)
}

// TransformDefault retrieves the default transform for wiring transformSource
// into this channel's configured action.
func (c *Channel) TransformDefault(reg *Registry, transformSource string) string {
	ref := ParseAction(reg, c.Action)
	if !ref.OK() {
		return ""
	}
	return ref.pod.TransformDefault(transformSource, ref.Action)
}

// Repr returns the pod's human readable representation of this channel.
func (c *Channel) Repr(reg *Registry) string {
	ref := ParseAction(reg, c.Action)
	if !ref.OK() {
		return ""
	}
	return ref.pod.Repr(ref.Action, c)
}

// RendererURL builds the public URL for one of the action's renderers, or ""
// when the action declares no such renderer.
func (c *Channel) RendererURL(reg *Registry, renderer string, account AccountInfo) string {
	ref := ParseAction(reg, c.Action)
	if !ref.OK() {
		return ""
	}
	if _, ok := ref.schema.Renderers[renderer]; !ok {
		return ""
	}
	return account.DefaultDomainStr(true) + "/rpc/render/channel/" + c.ID + "/" + renderer
}

// RendererView is a renderer description with its resolved public URL.
type RendererView struct {
	Renderer
	Href string `json:"_href"`
}

// Renderers returns the renderer views for the configured action, keyed by
// renderer name. Nil when the action declares none.
func (c *Channel) Renderers(reg *Registry, account AccountInfo) map[string]RendererView {
	ref := ParseAction(reg, c.Action)
	if !ref.OK() || len(ref.schema.Renderers) == 0 {
		return nil
	}
	views := make(map[string]RendererView, len(ref.schema.Renderers))
	for name, r := range ref.schema.Renderers {
		views[name] = RendererView{
			Renderer: r,
			Href:     c.RendererURL(reg, name, account),
		}
	}
	return views
}
