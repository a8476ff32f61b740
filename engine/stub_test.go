package engine

import (
	"encoding/json"
	"fmt"
	"sync"
)

// In-memory Storage used across the package tests.

type memNamespace struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (n *memNamespace) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.data[key] = raw
	return nil
}

func (n *memNamespace) Get(key string, out any) error {
	n.mu.Lock()
	raw, ok := n.data[key]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("key %s not found", key)
	}
	return json.Unmarshal(raw, out)
}

func (n *memNamespace) Delete(key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.data, key)
	return nil
}

func (n *memNamespace) ForEach(fn func(key string, raw []byte) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for k, v := range n.data {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

type memStorage struct {
	mu         sync.Mutex
	namespaces map[string]*memNamespace
	creds      map[string]*Credential
}

func newMemStorage() *memStorage {
	return &memStorage{
		namespaces: make(map[string]*memNamespace),
		creds:      make(map[string]*Credential),
	}
}

func (s *memStorage) Namespace(name string) (Namespace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[name]
	if !ok {
		ns = &memNamespace{data: make(map[string][]byte)}
		s.namespaces[name] = ns
	}
	return ns, nil
}

func (s *memStorage) Credential(ownerID, pod string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[ownerID+"/"+pod]
	if !ok {
		return nil, ErrNoCredential
	}
	return c, nil
}

func (s *memStorage) PutCredential(c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[c.OwnerID+"/"+c.Pod] = c
	return nil
}

// fakePod embeds Base and records invocations.

type invocation struct {
	action  string
	imports map[string]any
	client  Client
}

type fakePod struct {
	Base

	oauth       bool
	token       string
	tokenSecret string
	tokenErr    error

	mu      sync.Mutex
	invoked []invocation
	setups  []string
}

func newFakePod(name string, schema map[string]ActionSchema) *fakePod {
	return &fakePod{Base: NewBase(name, schema)}
}

func (p *fakePod) IsOAuth() bool {
	return p.oauth
}

func (p *fakePod) OAuthToken(ownerID, podName string, cb TokenFunc) {
	go cb(p.tokenErr, p.token, p.tokenSecret, nil)
}

func (p *fakePod) Invoke(action string, ch *Channel, imports map[string]any, client *Client, parts []ContentPart, cb InvokeFunc) {
	p.mu.Lock()
	p.invoked = append(p.invoked, invocation{action: action, imports: imports, client: *client})
	p.mu.Unlock()
	cb(nil, imports)
}

func (p *fakePod) Setup(action string, ch *Channel, account AccountInfo, cb SetupFunc) {
	p.mu.Lock()
	p.setups = append(p.setups, action)
	p.mu.Unlock()
	cb(nil)
}

func (p *fakePod) invocations() []invocation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]invocation(nil), p.invoked...)
}

// testSchema is the schema most tests register under the "mail" pod.
func testSchema() map[string]ActionSchema {
	return map[string]ActionSchema{
		"send": {
			Title: "Send an email",
			Config: ConfigSchema{
				Properties: map[string]ConfigProperty{
					"from":    {Type: "string", Default: "noreply@example.org", Unique: true},
					"subject": {Type: "string"},
				},
			},
			Imports: map[string]ImportProperty{
				"to":   {Type: "string"},
				"body": {Type: "string"},
			},
		},
		"bounce": {
			Trigger: true,
			Config:  ConfigSchema{},
		},
		"purge": {
			Admin:  true,
			Config: ConfigSchema{},
		},
	}
}

type recordedJob struct {
	jobType string
	payload map[string]any
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs []recordedJob
}

func (q *fakeJobs) CreateJob(jobType string, payload map[string]any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, recordedJob{jobType: jobType, payload: payload})
}

func (q *fakeJobs) all() []recordedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]recordedJob(nil), q.jobs...)
}
