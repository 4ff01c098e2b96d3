package store

import (
	"context"
	"errors"

	"github.com/seblog/micropub/internal/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateSlug = errors.New("duplicate slug")
)

// EntryStore is the content-store capability the endpoint creates
// entries through. Entry creation is atomic; concurrent creations under
// the same slug are rejected here, not by the request pipeline.
type EntryStore interface {
	CreateEntry(ctx context.Context, entry *model.Entry) error
	GetEntry(ctx context.Context, slug string) (model.Entry, error)
	UpdateEntryField(ctx context.Context, slug, field, value string) error

	// SaveFile persists an uploaded file under its entry. On a name
	// collision the file is renamed with a numbered suffix; the final
	// name is written back to file.Name.
	SaveFile(ctx context.Context, file *model.File) error
	GetFile(ctx context.Context, slug, name string) (model.File, error)

	Close() error
}
