package session

import (
	"context"

	"github.com/agusx1211/hitlctl/model"
	"github.com/agusx1211/hitlctl/runtime"
)

// Run is a handle on one open run.
type Run interface {
	Close()
}

// Transport is what a session needs from the agent runtime.
type Transport interface {
	CreateThread(ctx context.Context) (string, error)
	OpenRun(ctx context.Context, threadID string, req runtime.RunRequest, cb runtime.Callbacks) (Run, error)
	GetState(ctx context.Context, threadID string) (*runtime.ThreadState, error)
	UpdateState(ctx context.Context, threadID string, patch runtime.StatePatch) error
}

// Recorder persists the conversation of a thread between sessions.
type Recorder interface {
	SaveEntries(ctx context.Context, threadID, title string, entries []model.Entry) error
	LoadEntries(ctx context.Context, threadID string) ([]model.Entry, error)
}

type clientTransport struct {
	c *runtime.Client
}

// FromClient adapts a runtime client to a session transport.
func FromClient(c *runtime.Client) Transport {
	must(c != nil, "runtime client must not be nil")
	return clientTransport{c: c}
}

func (t clientTransport) CreateThread(ctx context.Context) (string, error) {
	return t.c.CreateThread(ctx)
}

func (t clientTransport) OpenRun(ctx context.Context, threadID string, req runtime.RunRequest, cb runtime.Callbacks) (Run, error) {
	r, err := t.c.OpenRun(ctx, threadID, req, cb)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (t clientTransport) GetState(ctx context.Context, threadID string) (*runtime.ThreadState, error) {
	return t.c.GetState(ctx, threadID)
}

func (t clientTransport) UpdateState(ctx context.Context, threadID string, patch runtime.StatePatch) error {
	return t.c.UpdateState(ctx, threadID, patch)
}
