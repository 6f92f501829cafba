package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/agusx1211/hitlctl/config"
	"github.com/agusx1211/hitlctl/conversation"
	"github.com/agusx1211/hitlctl/dispatch"
	"github.com/agusx1211/hitlctl/model"
	"github.com/agusx1211/hitlctl/runtime"
	"github.com/agusx1211/hitlctl/stream"
)

const (
	defaultRejectReason = "rejected by operator"
	saveTimeout         = 5 * time.Second
)

type Option func(*Session)

func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

func WithAggregator(a *conversation.Aggregator) Option {
	return func(s *Session) { s.conv = a }
}

// Session drives one thread through the approval cycle: idle, running,
// awaiting_approval. At most one run is open at a time and all mutable state
// is guarded by mu. Callbacks of runs that are no longer current are ignored.
type Session struct {
	tr       Transport
	threadID string
	rt       config.RuntimeConfig
	inputKey string
	recorder Recorder
	events   *Broker[Event]
	base     context.Context
	stop     context.CancelFunc

	mu         sync.Mutex
	conv       *conversation.Aggregator
	approval   model.ApprovalState
	connection model.ConnectionStatus
	pending    *model.PendingApproval
	run        Run
	gen        uint64
	closed     bool
	// dirty is set once the log differs from what was restored.
	dirty bool
}

func New(tr Transport, threadID string, cfg config.Config, opts ...Option) *Session {
	must(tr != nil, "transport must not be nil")
	must(strings.TrimSpace(threadID) != "", "thread id must not be empty")
	base, stop := context.WithCancel(context.Background())
	s := &Session{
		tr:         tr,
		threadID:   threadID,
		rt:         cfg.Runtime,
		inputKey:   cfg.Session.InputKey,
		events:     NewBroker[Event](),
		base:       base,
		stop:       stop,
		approval:   model.StateIdle,
		connection: model.ConnDisconnected,
	}
	if s.inputKey == "" {
		s.inputKey = "user_request"
	}
	for _, o := range opts {
		o(s)
	}
	if s.conv == nil {
		s.conv = conversation.New()
	}
	return s
}

func (s *Session) ThreadID() string {
	return s.threadID
}

func (s *Session) Events() *Broker[Event] {
	return s.events
}

// Restore loads the persisted conversation of the thread. It only applies to
// a fresh session.
func (s *Session) Restore(ctx context.Context) error {
	if s.recorder == nil {
		return nil
	}
	entries, err := s.recorder.LoadEntries(ctx, s.threadID)
	if err != nil {
		return fmt.Errorf("load thread %s: %w", s.threadID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.approval != model.StateIdle || s.conv.Len() > 0 {
		return ErrBusy
	}
	s.conv.Restore(entries)
	return nil
}

func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) Entries() []model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Entries()
}

func (s *Session) Pending() *model.PendingApproval {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Clone()
}

// Send appends the operator's message and starts a run with it. ctx only
// gates the send; the run itself lives until it ends or the session closes.
func (s *Session) Send(ctx context.Context, text string) error {
	must(ctx != nil, "context must not be nil")
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.approval != model.StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.publishEntry(s.conv.Append(model.RoleUser, text, ""))
	gen := s.beginLocked()
	s.mu.Unlock()
	return s.open(gen, runtime.RunRequest{Input: map[string]any{s.inputKey: text}})
}

func (s *Session) Approve(ctx context.Context) error {
	return s.decide(ctx, runtime.Resume{Type: runtime.DecisionApprove}, "")
}

func (s *Session) Reject(ctx context.Context, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejectReason
	}
	return s.decide(ctx, runtime.Resume{Type: runtime.DecisionReject, Message: reason}, "")
}

// Edit approves the pending request with replaced arguments for one tool
// call. An empty id selects the first call.
func (s *Session) Edit(ctx context.Context, toolCallID string, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	return s.decide(ctx, runtime.Resume{Type: runtime.DecisionEdit, Args: model.CloneArgs(args)}, toolCallID)
}

// Close stops the active run and saves the log if it changed. No session
// state changes after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	run := s.run
	s.run = nil
	s.connection = model.ConnDisconnected
	if s.approval == model.StateRunning {
		s.approval = model.StateIdle
	}
	var snap *snapshot
	if s.dirty {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if run != nil {
		run.Close()
	}
	s.stop()
	s.save(snap)
	s.events.Close()
}

func (s *Session) decide(ctx context.Context, r runtime.Resume, toolCallID string) error {
	must(ctx != nil, "context must not be nil")
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.approval != model.StateAwaitingApproval || s.pending == nil {
		s.mu.Unlock()
		return ErrNoPending
	}
	p := s.pending
	if r.Type == runtime.DecisionEdit {
		if toolCallID == "" && len(p.ToolCalls) > 0 {
			toolCallID = p.ToolCalls[0].ID
		}
		if !hasToolCall(p, toolCallID) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrUnknownToolCall, toolCallID)
		}
		s.conv.EditToolCall(toolCallID, r.Args)
	}
	s.pending = nil
	s.publishEntry(s.conv.Append(model.RoleSystem, decisionNote(p, r, toolCallID), ""))
	gen := s.beginLocked()
	s.mu.Unlock()

	cmd, err := s.prepare(ctx, p, r, toolCallID)
	if err != nil {
		s.mu.Lock()
		s.failLocked(gen, err)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.save(snap)
		return err
	}
	return s.open(gen, runtime.RunRequest{Command: cmd})
}

// prepare writes the decision into thread state when configured to, and
// encodes the resume command.
func (s *Session) prepare(ctx context.Context, p *model.PendingApproval, r runtime.Resume, toolCallID string) (*runtime.Command, error) {
	if s.patchMode() == config.PatchState {
		patch, err := s.statePatch(ctx, p, r, toolCallID)
		if err != nil {
			return nil, err
		}
		if patch != nil {
			if err := s.tr.UpdateState(ctx, s.threadID, *patch); err != nil {
				return nil, fmt.Errorf("patch thread state: %w", err)
			}
		}
	}
	return runtime.EncodeResume(s.encoding(), r)
}

func (s *Session) open(gen uint64, req runtime.RunRequest) error {
	run, err := s.tr.OpenRun(s.base, s.threadID, req, s.callbacks(gen))
	s.mu.Lock()
	if err != nil {
		s.failLocked(gen, err)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.save(snap)
		return err
	}
	if s.current(gen) {
		s.run = run
	}
	closed := s.closed
	s.mu.Unlock()
	if closed {
		run.Close()
	}
	return nil
}

func (s *Session) callbacks(gen uint64) runtime.Callbacks {
	return runtime.Callbacks{
		OnFrame:    func(f stream.Frame) bool { return s.onFrame(gen, f) },
		OnError:    func(err error) { s.onError(gen, err) },
		OnComplete: func() { s.onComplete(gen) },
	}
}

func (s *Session) onFrame(gen uint64, f stream.Frame) bool {
	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		return false
	}
	keep := s.applyLocked(f)
	var snap *snapshot
	if !keep {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()
	s.save(snap)
	return keep
}

func (s *Session) onError(gen uint64, err error) {
	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		return
	}
	s.failLocked(gen, err)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.save(snap)
}

func (s *Session) onComplete(gen uint64) {
	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		return
	}
	s.flushLocked()
	s.endLocked(model.StateIdle)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.save(snap)
}

// applyLocked folds one frame into the session and reports whether the run
// should keep streaming. Node outputs that follow a suspension in the same
// frame are not applied; later interrupts are only checked against it.
func (s *Session) applyLocked(f stream.Frame) bool {
	for _, sig := range dispatch.Classify(f) {
		switch v := sig.(type) {
		case dispatch.NodeUpdate:
			if s.pending != nil {
				continue
			}
			n := s.conv.Len()
			reqs := s.conv.Apply(v)
			for _, e := range s.conv.Since(n) {
				s.publishEntry(e)
			}
			for _, req := range reqs {
				if !s.suspendLocked(req) {
					return false
				}
			}
		case dispatch.Interrupt:
			if v.Request.Dropped > 0 {
				log.Printf("[session] thread=%s interrupt carried %d extra requests, only the first is active", s.threadID, v.Request.Dropped)
			}
			if !s.suspendLocked(v.Request) {
				return false
			}
		}
	}
	return s.approval == model.StateRunning
}

// suspendLocked captures a suspension. Interrupts get an assistant entry
// carrying their synthesized tool call. A different second request while one
// is pending is a protocol ambiguity: both are dropped and the session goes
// idle. A repeat of the pending request is ignored.
func (s *Session) suspendLocked(req dispatch.Suspension) bool {
	incoming := req.Pending()
	if s.pending != nil {
		if sameRequest(s.pending, incoming) {
			log.Printf("[session] thread=%s %s repeated by %s signal, ignored", s.threadID, describe(s.pending), incoming.Source)
			return true
		}
		err := &ProtocolAmbiguityError{Pending: s.pending, Incoming: incoming}
		s.pending = nil
		s.publishEntry(s.conv.Append(model.RoleSystem, "Error: "+err.Error(), ""))
		s.endLocked(model.StateIdle)
		s.events.Publish(Event{Type: EventError, ThreadID: s.threadID, State: s.stateLocked(), Err: err})
		log.Printf("[session] thread=%s %v", s.threadID, err)
		return false
	}
	s.flushLocked()
	if incoming.Source == model.SourceInterrupt {
		s.publishEntry(s.conv.AppendToolCalls(incoming.Action, incoming.Description, incoming.ToolCalls))
	}
	s.pending = incoming
	s.endLocked(model.StateAwaitingApproval)
	s.events.Publish(Event{Type: EventPending, ThreadID: s.threadID, State: s.stateLocked(), Pending: incoming.Clone()})
	return true
}

func (s *Session) failLocked(gen uint64, err error) {
	if !s.current(gen) {
		return
	}
	s.conv.DiscardBuffer()
	s.publishEntry(s.conv.Append(model.RoleSystem, "Error: "+err.Error(), ""))
	s.endLocked(model.StateIdle)
	s.events.Publish(Event{Type: EventError, ThreadID: s.threadID, State: s.stateLocked(), Err: err})
	log.Printf("[session] thread=%s run failed: %v", s.threadID, err)
}

func (s *Session) current(gen uint64) bool {
	return !s.closed && s.gen == gen && s.approval == model.StateRunning
}

func (s *Session) beginLocked() uint64 {
	s.gen++
	s.approval = model.StateRunning
	s.connection = model.ConnStreaming
	s.events.Publish(Event{Type: EventState, ThreadID: s.threadID, State: s.stateLocked()})
	return s.gen
}

func (s *Session) endLocked(state model.ApprovalState) {
	s.approval = state
	s.connection = model.ConnDisconnected
	s.run = nil
	s.events.Publish(Event{Type: EventState, ThreadID: s.threadID, State: s.stateLocked()})
}

func (s *Session) flushLocked() {
	if e, ok := s.conv.Flush(); ok {
		s.publishEntry(e)
	}
}

func (s *Session) publishEntry(e model.Entry) {
	s.dirty = true
	s.events.Publish(Event{Type: EventEntry, ThreadID: s.threadID, State: s.stateLocked(), Entry: &e})
}

func (s *Session) stateLocked() model.SessionState {
	return model.SessionState{ThreadID: s.threadID, Connection: s.connection, Approval: s.approval}
}

func (s *Session) encoding() string {
	if s.rt.ResumeEncoding == "" {
		return config.EncodingTagged
	}
	return s.rt.ResumeEncoding
}

func (s *Session) patchMode() string {
	if s.rt.PatchMode != "" {
		return s.rt.PatchMode
	}
	if s.encoding() == config.EncodingBool {
		return config.PatchState
	}
	return config.PatchInline
}

type snapshot struct {
	title   string
	entries []model.Entry
}

func (s *Session) snapshotLocked() *snapshot {
	if s.recorder == nil {
		return nil
	}
	entries := s.conv.Entries()
	return &snapshot{title: titleOf(entries), entries: entries}
}

func (s *Session) save(snap *snapshot) {
	if snap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.recorder.SaveEntries(ctx, s.threadID, snap.title, snap.entries); err != nil {
		log.Printf("[session] thread=%s save failed: %v", s.threadID, err)
	}
}

// sameRequest reports whether two suspension signals ask for one decision,
// as when a runtime proposes a tool call on a message and also interrupts
// with an action naming it.
func sameRequest(a, b *model.PendingApproval) bool {
	if a.Source == b.Source {
		return jsonEqual(a.ToolCalls, b.ToolCalls)
	}
	calls, in := a, b
	if a.Source == model.SourceInterrupt {
		calls, in = b, a
	}
	for _, tc := range calls.ToolCalls {
		if tc.Name == in.Action && (len(in.Args) == 0 || jsonEqual(tc.Args, in.Args)) {
			return true
		}
	}
	return false
}

// jsonEqual compares decoded values by their encoding, so json.Number and
// float64 forms of one number match.
func jsonEqual(a, b any) bool {
	x, err := json.Marshal(a)
	if err != nil {
		return false
	}
	y, err := json.Marshal(b)
	return err == nil && bytes.Equal(x, y)
}

func hasToolCall(p *model.PendingApproval, id string) bool {
	for _, tc := range p.ToolCalls {
		if tc.ID == id {
			return true
		}
	}
	return false
}
