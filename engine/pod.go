package engine

import (
	"time"
)

// Pods are the integration plugins of the platform. Each pod exposes a set of
// named actions (effects) and triggers (event sources), described by an
// ActionSchema. One pod instance is shared process-wide by every channel that
// references it, so pods hold no per-invocation state; everything an
// invocation needs travels through the arguments.
type Pod interface {
	// Name returns the registry name of the pod, the first token of a
	// channel's "pod.action" string.
	Name() string

	// Init is called exactly once at process start with the pod's storage
	// handle and its configuration block from the daemon config.
	Init(store Storage, config map[string]any) error

	// Schema returns the full action-name to schema mapping.
	Schema() map[string]ActionSchema

	// ActionSchema returns the schema for one named action.
	ActionSchema(action string) (ActionSchema, bool)

	// Imports returns the imports the named action expects. May be empty.
	Imports(action string) map[string]ImportProperty

	// ImportDefaults returns the default config object used to initialise a
	// channel's config when its action changes to this action.
	ImportDefaults(action string) map[string]any

	// ImportConfig returns the config schema (with defaults) consulted by the
	// config defaults merger.
	ImportConfig(action string) ConfigSchema

	// TestImport reports whether importName is a declared import of action.
	TestImport(action, importName string) bool

	// TransformDefault returns the default transform expression for wiring
	// the given source action into this action, or "" when none is declared.
	TransformDefault(source, action string) string

	// IsTrigger reports whether the named action is a trigger.
	IsTrigger(action string) bool

	// IsOAuth reports whether this pod requires delegated credentials. This
	// is a pod-level capability, not per-action.
	IsOAuth() bool

	// OAuthToken asynchronously fetches the stored credential for
	// (ownerID, podName) and delivers it through cb.
	OAuthToken(ownerID, podName string, cb TokenFunc)

	// Invoke performs the actual effect or trigger evaluation. The final
	// outcome is delivered exclusively through cb.
	Invoke(action string, ch *Channel, imports map[string]any, client *Client, parts []ContentPart, cb InvokeFunc)

	// Setup runs activation-time side effects after a channel referencing
	// this pod has been durably saved. The pod may defer the channel's
	// availability at its own pace.
	Setup(action string, ch *Channel, account AccountInfo, cb SetupFunc)

	// Repr returns a human readable representation of a configured channel.
	Repr(action string, ch *Channel) string
}

// TokenFunc receives the result of an asynchronous credential lookup.
type TokenFunc func(err error, token, tokenSecret string, profile map[string]any)

// InvokeFunc receives the final outcome of a pod invocation.
type InvokeFunc func(err error, exports map[string]any)

// SetupFunc receives the outcome of a pod setup call.
type SetupFunc func(err error)

// ImportProperty describes one expected import of an action.
type ImportProperty struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// ConfigProperty describes one property of an action's config schema.
// Default feeds the config defaults merger; Unique marks the property as a
// singleton constraint enforced by the persistence layer.
type ConfigProperty struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
	Unique      bool   `json:"unique,omitempty"`
}

// ConfigSchema is the config fragment of an action schema.
type ConfigSchema struct {
	Properties map[string]ConfigProperty `json:"properties"`
}

// Renderer describes a renderable surface an action exposes.
type Renderer struct {
	Description string `json:"description,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// ActionSchema describes one pod action or trigger.
type ActionSchema struct {
	Title       string                    `json:"title,omitempty"`
	Description string                    `json:"description,omitempty"`
	Trigger     bool                      `json:"trigger,omitempty"`
	Admin       bool                      `json:"admin,omitempty"`
	Config      ConfigSchema              `json:"config"`
	Imports     map[string]ImportProperty `json:"imports,omitempty"`
	Exports     map[string]ImportProperty `json:"exports,omitempty"`
	Renderers   map[string]Renderer       `json:"renderers,omitempty"`

	// TransformDefaults maps a source "pod.action" string to the default
	// transform expression for wiring that source into this action.
	TransformDefaults map[string]string `json:"transform_defaults,omitempty"`
}

// ContentPart is a raw content attachment passed through an invocation
// untouched by the pipeline.
type ContentPart struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Client is the execution-context object for one invocation. It is created
// by the orchestrator, exclusively owned by that invocation, and receives the
// owner stamp and any delegated credential before dispatch.
type Client struct {
	ID          string
	OwnerID     string
	Host        string
	ContentType string
	Encoding    string
	Date        time.Time

	OAuthToken       string
	OAuthTokenSecret string
	OAuthProfile     map[string]any
}

// User identifies the account a save or invocation is scoped to.
type User struct {
	ID string
}

// AccountInfo carries account context into pod setup and rendering.
type AccountInfo struct {
	User          User
	DefaultDomain string
}

// DefaultDomainStr resolves the account's default domain as a URL prefix,
// used only for renderer URL construction.
func (a AccountInfo) DefaultDomainStr(secure bool) string {
	scheme := "http://"
	if secure {
		scheme = "https://"
	}
	return scheme + a.DefaultDomain
}

// Storage is the opaque storage handle pods receive at Init. Each pod owns
// its own namespace; the credential store backs delegated-credential lookup.
type Storage interface {
	Namespace(name string) (Namespace, error)
	Credential(ownerID, pod string) (*Credential, error)
	PutCredential(c *Credential) error
}

// Namespace is a pod-owned key/value namespace.
type Namespace interface {
	Put(key string, value any) error
	Get(key string, out any) error
	Delete(key string) error
	ForEach(fn func(key string, raw []byte) error) error
}

// Credential is a delegated third-party credential stored per (owner, pod).
type Credential struct {
	OwnerID     string         `json:"owner_id"`
	Pod         string         `json:"pod"`
	Token       string         `json:"token"`
	TokenSecret string         `json:"token_secret"`
	Profile     map[string]any `json:"profile,omitempty"`
}

// JobQueue is the job-queue collaborator. CreateJob is fire and forget.
type JobQueue interface {
	CreateJob(jobType string, payload map[string]any)
}

// JobUserStat is the usage-statistics job enqueued on first channel creation.
const JobUserStat = "user_stat"
