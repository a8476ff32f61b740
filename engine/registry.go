package engine

import (
	"fmt"
	"log/slog"
)

// Registry holds one pod instance per configured pod type. It is built once
// at process start from the daemon's static pod list and passed explicitly to
// every component that needs pod lookups. After Init it is read-only and safe
// for concurrent reads.
type Registry struct {
	log     *slog.Logger
	pods    map[string]Pod
	configs map[string]map[string]any
	order   []string
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log,
		pods:    make(map[string]Pod),
		configs: make(map[string]map[string]any),
	}
}

// Register adds a pod and its config block. Pods are required infrastructure:
// callers treat a registration error as process-fatal.
func (r *Registry) Register(pod Pod, config map[string]any) error {
	if pod == nil {
		return fmt.Errorf("registering nil pod")
	}
	name := pod.Name()
	if name == "" {
		return fmt.Errorf("registering pod with empty name")
	}
	if _, exists := r.pods[name]; exists {
		return fmt.Errorf("pod %s already registered", name)
	}
	if len(pod.Schema()) == 0 {
		return fmt.Errorf("pod %s declares no actions", name)
	}
	r.pods[name] = pod
	r.configs[name] = config
	r.order = append(r.order, name)
	r.log.Info("pod up", "pod", name, "actions", len(pod.Schema()))
	return nil
}

// Init drives each pod's one-time initialisation with the storage handle and
// its configuration block, in registration order.
func (r *Registry) Init(store Storage) error {
	for _, name := range r.order {
		if err := r.pods[name].Init(store, r.configs[name]); err != nil {
			return fmt.Errorf("initialising pod %s: %w", name, err)
		}
	}
	return nil
}

// Get returns the pod registered under name. It never panics.
func (r *Registry) Get(name string) (Pod, bool) {
	pod, ok := r.pods[name]
	return pod, ok
}

// Actions lists every non-trigger, non-admin "pod.action" pair.
func (r *Registry) Actions() []string {
	return r.list(false)
}

// Emitters lists every trigger, non-admin "pod.action" pair.
func (r *Registry) Emitters() []string {
	return r.list(true)
}

func (r *Registry) list(trigger bool) []string {
	var result []string
	for _, name := range r.order {
		for action, schema := range r.pods[name].Schema() {
			if schema.Admin || schema.Trigger != trigger {
				continue
			}
			result = append(result, name+"."+action)
		}
	}
	return result
}
