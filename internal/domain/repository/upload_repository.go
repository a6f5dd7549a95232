package repository

import (
	"context"

	"github.com/molpadia/molparelay/internal/domain/entity"
)

type UploadRepository interface {
	// Get the upload record by its ID.
	GetById(ctx context.Context, id string) (*entity.Upload, error)
	// Save an upload record to the persistence.
	Save(ctx context.Context, upload *entity.Upload) error
}
