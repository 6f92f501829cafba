package store

import (
	"context"
	"errors"

	"github.com/agusx1211/hitlctl/model"
)

var ErrNotFound = errors.New("not found")

type ThreadStore interface {
	Upsert(ctx context.Context, thread *model.Thread) error
	Get(ctx context.Context, id string) (*model.Thread, error)
	List(ctx context.Context, limit, offset int) ([]*model.Thread, error)
	Delete(ctx context.Context, id string) error
}

type EntryStore interface {
	ListByThread(ctx context.Context, threadID string) ([]model.Entry, error)
	CountByThread(ctx context.Context, threadID string) (int, error)
	ReplaceThreadEntries(ctx context.Context, threadID string, entries []model.Entry) error
}
