package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/agusx1211/hitlctl/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	p := filepath.Join(t.TempDir(), "nested", "threads.db")
	s, err := OpenSQLite(p)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("close sqlite: %v", err)
		}
	})
	return s
}

func makeEntries() []model.Entry {
	return []model.Entry{
		{ID: "e1", Role: model.RoleUser, Content: "inspect LOT-7", Timestamp: 1000},
		{ID: "e2", Role: model.RoleAssistant, Content: "adjusting", AgentName: "agent", Timestamp: 2000,
			ToolCalls: []model.ToolCall{{ID: "tc1", Name: "set_recipe", Args: map[string]any{"step": "etch"}}}},
		{ID: "e3", Role: model.RoleTool, Content: "ok", ToolName: "set_recipe", Timestamp: 3000},
		{ID: "e4", Role: model.RoleSystem, Content: "Approved: set_recipe", Timestamp: 4000},
	}
}

func TestSaveAndLoadEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	want := makeEntries()
	if err := s.SaveEntries(ctx, "t1", "LOT-7 inspection", want); err != nil {
		t.Fatalf("save entries: %v", err)
	}
	got, err := s.LoadEntries(ctx, "t1")
	if err != nil {
		t.Fatalf("load entries: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("entries mismatch:\nwant %#v\ngot  %#v", want, got)
	}
	n, err := s.Entries.CountByThread(ctx, "t1")
	if err != nil || n != 4 {
		t.Fatalf("count entries: %d %v", n, err)
	}
}

func TestSaveEntriesReplacesAndKeepsTitle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	if err := s.SaveEntries(ctx, "t1", "first title", makeEntries()); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	if err := s.SaveEntries(ctx, "t1", "", makeEntries()[:2]); err != nil {
		t.Fatalf("save again: %v", err)
	}
	th, err := s.Threads.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if th.Title != "first title" || th.Entries != 2 {
		t.Fatalf("unexpected thread: %#v", th)
	}
	if th.CreatedAt >= th.UpdatedAt {
		t.Fatalf("updated_at must advance: %#v", th)
	}
	got, _ := s.LoadEntries(ctx, "t1")
	if len(got) != 2 {
		t.Fatalf("entries must be replaced, got %d", len(got))
	}
}

func TestListThreadsByRecency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		at := base.Add(time.Duration(i) * time.Hour)
		s.now = func() time.Time { return at }
		if err := s.SaveEntries(ctx, id, "title-"+id, nil); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	list, err := s.Threads.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "mid" {
		t.Fatalf("unexpected order: %#v", list)
	}
	rest, _ := s.Threads.List(ctx, 10, 2)
	if len(rest) != 1 || rest[0].ID != "old" {
		t.Fatalf("unexpected page: %#v", rest)
	}
}

func TestDeleteThreadCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SaveEntries(ctx, "t1", "x", makeEntries())
	if err := s.Threads.Delete(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Threads.Get(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := s.Entries.CountByThread(ctx, "t1"); n != 0 {
		t.Fatalf("entries must be deleted with their thread, have %d", n)
	}
}

func TestUpsertThread(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	th := &model.Thread{ID: "t1", Title: "a", CreatedAt: 1700000000000, UpdatedAt: 1700000000000}
	if err := s.Threads.Upsert(ctx, th); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	th.Title = "b"
	th.UpdatedAt = 1700000001000
	if err := s.Threads.Upsert(ctx, th); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err := s.Threads.Get(ctx, "t1")
	if err != nil || !reflect.DeepEqual(th, got) {
		t.Fatalf("thread mismatch: want %#v got %#v (%v)", th, got, err)
	}
}

func TestReplaceEntriesRequiresThread(t *testing.T) {
	s := openTestStore(t)
	err := s.Entries.ReplaceThreadEntries(context.Background(), "missing", makeEntries())
	if err == nil {
		t.Fatal("expected foreign key violation for unknown thread")
	}
	if n, _ := s.Entries.CountByThread(context.Background(), "missing"); n != 0 {
		t.Fatalf("failed replace must roll back, have %d", n)
	}
}
