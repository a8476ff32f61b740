package engine

import (
	"fmt"
	"log/slog"
)

// Invoker orchestrates one channel step: resolve transforms, stamp the owner
// onto the execution context, gate on delegated credentials when the pod
// requires them, then dispatch to the pod's invoke entry point.
//
// The invoker holds no per-invocation state; concurrent Invoke calls, even
// for the same channel, interleave freely. Serialisation, timeouts and
// retries belong to the orchestrator.
type Invoker struct {
	log  *slog.Logger
	reg  *Registry
	jobs JobQueue
}

func NewInvoker(log *slog.Logger, reg *Registry, jobs JobQueue) *Invoker {
	if log == nil {
		log = slog.Default()
	}
	return &Invoker{log: log, reg: reg, jobs: jobs}
}

// Invoke runs one channel step against the upstream export namespace.
// Transform resolution completes synchronously before any asynchronous step
// begins. For OAuth pods the plugin is never dispatched before a credential
// has been attached to the client; a failed or absent credential abandons the
// invocation without dispatching (cb is never called on that path), logged at
// error level.
//
// The pod's invoke entry point alone calls cb with the final outcome; the
// pipeline passes plugin errors through untouched.
func (iv *Invoker) Invoke(ch *Channel, exports map[string]any, transforms Transforms, client *Client, parts []ContentPart, cb InvokeFunc) error {
	ref := ParseAction(iv.reg, ch.Action)
	if !ref.OK() {
		return fmt.Errorf("channel %s: %w: %q", ch.ID, ErrInvalidAction, ch.Action)
	}

	imports := ResolveImports(ref.pod, ref.Action, exports, transforms)

	client.OwnerID = ch.OwnerID

	if !ref.pod.IsOAuth() {
		ref.pod.Invoke(ref.Action, ch, imports, client, parts, cb)
		return nil
	}

	pod := ref.pod
	podName := ref.Pod
	action := ref.Action
	pod.OAuthToken(ch.OwnerID, podName, func(err error, token, tokenSecret string, profile map[string]any) {
		if err == nil && token == "" {
			err = ErrNoCredential
		}
		if err != nil {
			iv.log.Error("credential fetch failed, invocation abandoned",
				"channel", ch.ID,
				"owner", ch.OwnerID,
				"pod", podName,
				"error", err)
			return
		}
		client.OAuthToken = token
		client.OAuthTokenSecret = tokenSecret
		client.OAuthProfile = profile
		pod.Invoke(action, ch, imports, client, parts, cb)
	})
	return nil
}

// PostSave runs after a channel's configuration has been durably saved. The
// resolved pod performs its activation side effects through Setup, and first
// time creation enqueues one usage-statistics job for the owner.
//
// An unresolvable action here is a previously missed validation: it is logged
// at critical severity and aborts the operation, including the job enqueue.
func (iv *Invoker) PostSave(ch *Channel, account AccountInfo, isNew bool, cb SetupFunc) error {
	ref := ParseAction(iv.reg, ch.Action)
	if !ref.OK() {
		iv.log.Error("crit: channel init post save but no action",
			"channel", ch.ID,
			"action", ch.Action)
		return fmt.Errorf("channel %s post save: %w: %q", ch.ID, ErrConstraint, ch.Action)
	}

	ref.pod.Setup(ref.Action, ch, account, cb)

	if isNew && iv.jobs != nil {
		iv.jobs.CreateJob(JobUserStat, map[string]any{
			"owner_id": account.User.ID,
			"type":     "channels_total",
		})
	}
	return nil
}
