package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Base carries the schema-driven parts of the Pod contract so concrete pods
// only implement Invoke, Setup where needed, and the OAuth capability.
// Embed it by value and construct with NewBase.
type Base struct {
	name   string
	schema map[string]ActionSchema

	log    *slog.Logger
	config map[string]any
	store  Storage
	ns     Namespace
}

func NewBase(name string, schema map[string]ActionSchema) Base {
	return Base{
		name:   name,
		schema: schema,
		log:    slog.Default().With("pod", name),
	}
}

func (b *Base) Name() string {
	return b.name
}

// Init opens the pod's storage namespace and retains the config block.
// Pods that override Init should still call this one first.
func (b *Base) Init(store Storage, config map[string]any) error {
	ns, err := store.Namespace(b.name)
	if err != nil {
		return fmt.Errorf("pod %s: opening namespace: %w", b.name, err)
	}
	b.store = store
	b.ns = ns
	b.config = config
	return nil
}

func (b *Base) Schema() map[string]ActionSchema {
	return b.schema
}

func (b *Base) ActionSchema(action string) (ActionSchema, bool) {
	s, ok := b.schema[action]
	return s, ok
}

func (b *Base) Imports(action string) map[string]ImportProperty {
	return b.schema[action].Imports
}

// ImportDefaults builds the default config object for a new channel from the
// declared config schema defaults.
func (b *Base) ImportDefaults(action string) map[string]any {
	defaults := map[string]any{}
	for key, prop := range b.schema[action].Config.Properties {
		if prop.Default != nil {
			defaults[key] = prop.Default
		}
	}
	return defaults
}

func (b *Base) ImportConfig(action string) ConfigSchema {
	return b.schema[action].Config
}

func (b *Base) TestImport(action, importName string) bool {
	_, ok := b.schema[action].Imports[importName]
	return ok
}

func (b *Base) TransformDefault(source, action string) string {
	return b.schema[action].TransformDefaults[source]
}

func (b *Base) IsTrigger(action string) bool {
	return b.schema[action].Trigger
}

// IsOAuth defaults to false; OAuth pods shadow this method.
func (b *Base) IsOAuth() bool {
	return false
}

// OAuthToken looks the credential up in the store's credential namespace and
// delivers it asynchronously. Pods with their own token refresh flows shadow
// this method.
func (b *Base) OAuthToken(ownerID, podName string, cb TokenFunc) {
	store := b.store
	go func() {
		if store == nil {
			cb(fmt.Errorf("pod %s: not initialised", podName), "", "", nil)
			return
		}
		cred, err := store.Credential(ownerID, podName)
		if err != nil {
			cb(err, "", "", nil)
			return
		}
		cb(nil, cred.Token, cred.TokenSecret, cred.Profile)
	}()
}

// Setup is a no-op by default; pods with activation side effects shadow it.
func (b *Base) Setup(action string, ch *Channel, account AccountInfo, cb SetupFunc) {
	cb(nil)
}

func (b *Base) Repr(action string, ch *Channel) string {
	if s, ok := b.schema[action]; ok && s.Title != "" {
		return s.Title
	}
	return b.name + "." + action
}

// EffectiveConfig resolves the channel's stored config against this pod's
// declared defaults for the action. See Channel.EffectiveConfig.
func (b *Base) EffectiveConfig(action string, ch *Channel) map[string]any {
	return mergeConfigDefaults(ch.Config, b.schema[action].Config)
}

// DecodeConfig maps an untyped config block onto a typed struct, with weak
// typing and duration/time conversion. Pods use it both for their own Init
// config block and for per-channel effective configs.
func DecodeConfig(m map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return nil
}

// Log returns the pod-scoped logger.
func (b *Base) Log() *slog.Logger {
	return b.log
}

// Store returns the pod's namespace handle. Nil before Init.
func (b *Base) Store() Namespace {
	return b.ns
}

// PodConfig returns the raw config block handed to Init.
func (b *Base) PodConfig() map[string]any {
	return b.config
}
