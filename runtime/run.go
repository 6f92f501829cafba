package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/agusx1211/hitlctl/stream"
)

const eventError = "error"

// RunRequest starts new work (Input) or continues a suspended run (Command).
type RunRequest struct {
	Input   any
	Command *Command
	Config  map[string]any
}

// Callbacks receive the outcome of one run. OnFrame is called once per
// decoded frame, in order; returning false ends the run without OnComplete.
// Exactly one of OnError and OnComplete fires, unless OnFrame stopped the run
// or Close was called first.
type Callbacks struct {
	OnFrame    func(stream.Frame) bool
	OnError    func(error)
	OnComplete func()
}

type runBody struct {
	AssistantID string         `json:"assistant_id"`
	Input       any            `json:"input"`
	Config      map[string]any `json:"config"`
	StreamMode  []string       `json:"stream_mode"`
	Command     *Command       `json:"command,omitempty"`
}

// Run is one streaming execution. Callbacks are serialised with Close, so
// no callback starts after Close returns. Close must not be called from
// inside a callback.
type Run struct {
	threadID string
	cb       Callbacks
	cancel   context.CancelFunc
	done     chan struct{}

	mu       sync.Mutex
	finished bool
}

func (c *Client) OpenRun(ctx context.Context, threadID string, req RunRequest, cb Callbacks) (*Run, error) {
	must(ctx != nil, "context must not be nil")
	must(cb.OnFrame != nil, "frame callback must not be nil")
	if strings.TrimSpace(threadID) == "" {
		return nil, errors.New("thread id must not be empty")
	}
	if req.Input == nil && req.Command == nil {
		return nil, ErrEmptyRun
	}
	if req.Input != nil && req.Command != nil {
		return nil, ErrInputAndCommand
	}
	cfg := req.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	body := runBody{
		AssistantID: c.assistantID,
		Input:       req.Input,
		Config:      cfg,
		StreamMode:  []string{"updates"},
		Command:     req.Command,
	}
	rctx, cancel := context.WithCancel(ctx)
	r := &Run{threadID: threadID, cb: cb, cancel: cancel, done: make(chan struct{})}
	go r.loop(rctx, c, body)
	return r, nil
}

func (r *Run) ThreadID() string {
	return r.threadID
}

// Close cancels the request and waits for any in-flight callback. Safe to
// call more than once.
func (r *Run) Close() {
	if r == nil {
		return
	}
	r.cancel()
	r.mu.Lock()
	r.finished = true
	r.mu.Unlock()
}

// Wait blocks until the read loop has exited.
func (r *Run) Wait() {
	<-r.done
}

func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (r *Run) loop(ctx context.Context, c *Client, body runBody) {
	defer close(r.done)
	defer r.cancel()

	resp, err := c.do(ctx, http.MethodPost, threadPath(r.threadID, "/runs/stream"), body, "text/event-stream")
	if err != nil {
		r.fail(&TransportError{Op: "open run", Err: err})
		return
	}
	if !isSuccess(resp.StatusCode) {
		r.fail(readStatusError("open run", resp))
		return
	}
	defer resp.Body.Close()

	rd := stream.NewReader(resp.Body)
	for {
		f, err := rd.Next()
		if errors.Is(err, io.EOF) {
			if n := rd.Dropped(); n > 0 {
				log.Printf("[runtime] thread=%s dropped %d undecodable data lines", r.threadID, n)
			}
			r.complete()
			return
		}
		if err != nil {
			r.fail(&TransportError{Op: "read run", Err: err})
			return
		}
		if f.Event == eventError {
			r.fail(&TransportError{Op: "run", Err: runtimeFailure(f.Data)})
			return
		}
		if !r.deliver(f) {
			return
		}
	}
}

func (r *Run) deliver(f stream.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return false
	}
	if r.cb.OnFrame(f) {
		return true
	}
	r.finished = true
	return false
}

func (r *Run) fail(err error) {
	must(err != nil, "run error must not be nil")
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true
	if r.cb.OnError != nil {
		r.cb.OnError(err)
	}
}

func (r *Run) complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true
	if r.cb.OnComplete != nil {
		r.cb.OnComplete()
	}
}

func runtimeFailure(data json.RawMessage) error {
	var v struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &v); err == nil {
		if v.Error != "" {
			return errors.New(v.Error)
		}
		if v.Message != "" {
			return errors.New(v.Message)
		}
	}
	return errors.New("runtime reported an error: " + string(data))
}
