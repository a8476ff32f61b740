package engine

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func waitInvoke(t *testing.T, done chan map[string]any) map[string]any {
	t.Helper()
	select {
	case exports := <-done:
		return exports
	case <-time.After(2 * time.Second):
		t.Fatalf("invocation callback never fired")
		return nil
	}
}

func TestInvokeDispatchesWithoutCredentialStep(t *testing.T) {
	pod := newFakePod("mail", testSchema())
	reg := newTestRegistry(t, pod)
	iv := NewInvoker(slog.Default(), reg, nil)

	ch := validChannel()
	client := &Client{ID: "i-1", Date: time.Now()}
	exports := map[string]any{"local": map[string]any{"to": "a@x.com"}}

	done := make(chan map[string]any, 1)
	err := iv.Invoke(ch, exports, Transforms{{Dst: "to", Src: "reply"}}, client, nil, func(err error, exports map[string]any) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- exports
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitInvoke(t, done)

	calls := pod.invocations()
	if len(calls) != 1 {
		t.Fatalf("got %d invocations, want 1", len(calls))
	}
	if calls[0].client.OwnerID != "u-1" {
		t.Errorf("owner not stamped on client: %q", calls[0].client.OwnerID)
	}
	if calls[0].client.OAuthToken != "" {
		t.Errorf("no credential may be attached for non-oauth pods")
	}
}

func TestInvokeCredentialGating(t *testing.T) {
	pod := newFakePod("mail", testSchema())
	pod.oauth = true
	pod.token = "tok"
	pod.tokenSecret = "sec"
	reg := newTestRegistry(t, pod)
	iv := NewInvoker(slog.Default(), reg, nil)

	ch := validChannel()
	client := &Client{ID: "i-2"}

	done := make(chan map[string]any, 1)
	err := iv.Invoke(ch, map[string]any{}, Transforms{{Dst: "to", Src: "x"}}, client, nil, func(err error, exports map[string]any) {
		done <- exports
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitInvoke(t, done)

	calls := pod.invocations()
	if len(calls) != 1 {
		t.Fatalf("got %d invocations, want 1", len(calls))
	}
	// Dispatch happened strictly after the credential was attached.
	if calls[0].client.OAuthToken != "tok" || calls[0].client.OAuthTokenSecret != "sec" {
		t.Errorf("credential not attached before dispatch: %+v", calls[0].client)
	}
}

func TestInvokeAbandonedOnCredentialFailure(t *testing.T) {
	tests := []struct {
		name string
		prep func(p *fakePod)
	}{
		{"lookup error", func(p *fakePod) { p.tokenErr = errors.New("store down") }},
		{"absent token", func(p *fakePod) { p.token = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pod := newFakePod("mail", testSchema())
			pod.oauth = true
			tt.prep(pod)
			reg := newTestRegistry(t, pod)
			iv := NewInvoker(slog.Default(), reg, nil)

			fired := make(chan struct{}, 1)
			err := iv.Invoke(validChannel(), map[string]any{}, Transforms{{Dst: "to", Src: "x"}}, &Client{}, nil, func(err error, exports map[string]any) {
				fired <- struct{}{}
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			select {
			case <-fired:
				t.Errorf("callback fired despite credential failure")
			case <-time.After(100 * time.Millisecond):
			}
			if got := len(pod.invocations()); got != 0 {
				t.Errorf("got %d dispatches, want none", got)
			}
		})
	}
}

func TestInvokeRejectsUnresolvableAction(t *testing.T) {
	reg := newTestRegistry(t, newFakePod("mail", testSchema()))
	iv := NewInvoker(slog.Default(), reg, nil)

	ch := validChannel()
	ch.Action = "gone.missing"

	err := iv.Invoke(ch, map[string]any{}, nil, &Client{}, nil, func(error, map[string]any) {
		t.Errorf("callback must not fire for unresolvable actions")
	})
	if !errors.Is(err, ErrInvalidAction) {
		t.Errorf("got %v, want ErrInvalidAction", err)
	}
}

func TestInvokePluginErrorPassthrough(t *testing.T) {
	failing := &failingPod{
		fakePod: newFakePod("mail", testSchema()),
		err:     errors.New("smtp refused"),
	}
	reg := newTestRegistry(t, failing)
	iv := NewInvoker(slog.Default(), reg, nil)

	done := make(chan error, 1)
	err := iv.Invoke(validChannel(), map[string]any{}, Transforms{{Dst: "to", Src: "x"}}, &Client{}, nil, func(err error, exports map[string]any) {
		done <- err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case got := <-done:
		if got == nil || got.Error() != "smtp refused" {
			t.Errorf("got %v, want the plugin error untouched", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("callback never fired")
	}
}

type failingPod struct {
	*fakePod
	err error
}

func (p *failingPod) Invoke(action string, ch *Channel, imports map[string]any, client *Client, parts []ContentPart, cb InvokeFunc) {
	cb(p.err, nil)
}

func TestPostSaveSetupAndJob(t *testing.T) {
	pod := newFakePod("mail", testSchema())
	reg := newTestRegistry(t, pod)
	jobs := &fakeJobs{}
	iv := NewInvoker(slog.Default(), reg, jobs)

	account := AccountInfo{User: User{ID: "u-1"}}

	var setupErr error
	if err := iv.PostSave(validChannel(), account, true, func(err error) { setupErr = err }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if setupErr != nil {
		t.Errorf("setup callback error: %v", setupErr)
	}
	if len(pod.setups) != 1 || pod.setups[0] != "send" {
		t.Errorf("setup not driven: %v", pod.setups)
	}

	recorded := jobs.all()
	if len(recorded) != 1 {
		t.Fatalf("got %d jobs, want 1", len(recorded))
	}
	if recorded[0].jobType != JobUserStat {
		t.Errorf("job type: got %q", recorded[0].jobType)
	}
	if recorded[0].payload["owner_id"] != "u-1" || recorded[0].payload["type"] != "channels_total" {
		t.Errorf("job payload: got %v", recorded[0].payload)
	}

	// Updates do not recount.
	if err := iv.PostSave(validChannel(), account, false, func(error) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(jobs.all()); got != 1 {
		t.Errorf("got %d jobs after update, want still 1", got)
	}
}

func TestPostSaveConstraintViolation(t *testing.T) {
	reg := newTestRegistry(t, newFakePod("mail", testSchema()))
	jobs := &fakeJobs{}
	iv := NewInvoker(slog.Default(), reg, jobs)

	ch := validChannel()
	ch.Action = "mail"

	err := iv.PostSave(ch, AccountInfo{User: User{ID: "u-1"}}, true, func(error) {
		t.Errorf("setup must not run on constraint violation")
	})
	if !errors.Is(err, ErrConstraint) {
		t.Errorf("got %v, want ErrConstraint", err)
	}
	if got := len(jobs.all()); got != 0 {
		t.Errorf("usage job enqueued despite aborted post save")
	}
}
