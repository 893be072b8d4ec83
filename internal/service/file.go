package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/homebase-app/homebase/internal/model"
	"github.com/homebase-app/homebase/internal/repository"
	"github.com/homebase-app/homebase/internal/storage"
)

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrBlobUnavailable = errors.New("blob storage unavailable")
)

// UploadInput describes one uploaded file. MimeType should be the sniffed
// type, not the client's Content-Type header.
type UploadInput struct {
	OwnerID       string
	ApplicationID string
	Filename      string
	MimeType      string
	Size          int64
	Body          io.Reader
	Public        bool
}

// FileService keeps file bytes in object storage and their descriptors as
// entities of type "file".
type FileService struct {
	entities  repository.EntityRepository
	relations repository.RelationRepository
	storage   storage.Storage
}

func NewFileService(entities repository.EntityRepository, relations repository.RelationRepository, storage storage.Storage) *FileService {
	return &FileService{
		entities:  entities,
		relations: relations,
		storage:   storage,
	}
}

// Upload stores the blob first and then records the file entity. If the
// entity cannot be written the blob is removed again.
func (s *FileService) Upload(ctx context.Context, in UploadInput) (*model.File, error) {
	if strings.TrimSpace(in.Filename) == "" {
		return nil, fmt.Errorf("%w: filename is required", repository.ErrInvalidInput)
	}
	if in.Body == nil {
		return nil, fmt.Errorf("%w: file body is required", repository.ErrInvalidInput)
	}

	id := uuid.New().String()
	filename := id + strings.ToLower(filepath.Ext(in.Filename))

	prefix := "private"
	if in.Public {
		prefix = "public"
	}
	storagePath := path.Join(prefix, "files", filename)

	err := s.storage.Save(ctx, storagePath, in.Body, in.MimeType)
	if err != nil {
		return nil, errors.Join(ErrBlobUnavailable, fmt.Errorf("failed to save file: %w", err))
	}

	entity, err := s.entities.Create(ctx, repository.CreateEntityInput{
		ID:            id,
		Type:          model.EntityTypeFile,
		ApplicationID: optional(in.ApplicationID),
		OwnerID:       optional(in.OwnerID),
		Attributes:    model.FileAttributes(filename, in.Filename, in.MimeType, in.Size, storagePath, in.Public),
	})
	if err != nil {
		delErr := s.storage.Delete(ctx, storagePath)
		if delErr != nil {
			slog.Error("failed to delete file from storage during cleanup", "error", delErr, "path", storagePath)
		}
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	slog.Info("file uploaded", "id", id, "size", in.Size, "mime_type", in.MimeType, "public", in.Public)
	return model.FileFromEntity(entity)
}

// File returns the live file with the given id. Soft-deleted files and
// entities of another type are reported as ErrFileNotFound.
func (s *FileService) File(ctx context.Context, id string) (*model.File, error) {
	entity, err := s.entities.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil || entity.IsDeleted() || entity.Type != model.EntityTypeFile {
		return nil, ErrFileNotFound
	}
	return model.FileFromEntity(entity)
}

// URL returns a presigned download URL. Public files get the long expiry.
func (s *FileService) URL(ctx context.Context, id string) (string, error) {
	file, err := s.File(ctx, id)
	if err != nil {
		return "", err
	}

	url, err := s.storage.URL(ctx, file.StoragePath, file.Public)
	if err != nil {
		return "", errors.Join(ErrBlobUnavailable, err)
	}
	return url, nil
}

// Delete soft-deletes the file entity and keeps the blob so Restore works.
// hard=true removes the blob and then the row; it also accepts files that
// were soft-deleted before.
func (s *FileService) Delete(ctx context.Context, id string, hard bool) error {
	entity, err := s.entities.ByID(ctx, id)
	if err != nil {
		return err
	}
	if entity == nil || entity.Type != model.EntityTypeFile || (!hard && entity.IsDeleted()) {
		return ErrFileNotFound
	}

	if hard {
		file, err := model.FileFromEntity(entity)
		if err != nil {
			return err
		}
		err = s.storage.Delete(ctx, file.StoragePath)
		if err != nil {
			return errors.Join(ErrBlobUnavailable, fmt.Errorf("failed to delete file from storage: %w", err))
		}
	}

	removed, err := s.entities.Delete(ctx, id, hard)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	if !removed {
		return ErrFileNotFound
	}
	return nil
}

// Favorite records a "favorited" edge from principalID to the file.
// Favoriting twice is fine.
func (s *FileService) Favorite(ctx context.Context, principalID, fileID string) error {
	_, err := s.File(ctx, fileID)
	if err != nil {
		return err
	}

	_, err = s.relations.Create(ctx, principalID, fileID, model.RelationTypeFavorited, nil)
	if err != nil {
		return fmt.Errorf("failed to favorite file: %w", err)
	}
	return nil
}

func (s *FileService) Unfavorite(ctx context.Context, principalID, fileID string) (bool, error) {
	return s.relations.Delete(ctx, principalID, fileID, model.RelationTypeFavorited)
}

// Favorites lists the live files principalID favorited, most recent first.
func (s *FileService) Favorites(ctx context.Context, principalID string) ([]*model.File, error) {
	entities, err := s.relations.Outgoing(ctx, principalID, model.RelationTypeFavorited, model.EntityTypeFile)
	if err != nil {
		return nil, err
	}

	files := make([]*model.File, 0, len(entities))
	for _, e := range entities {
		f, err := model.FileFromEntity(e)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// FavoriteCount counts "favorited" edges pointing at the file.
func (s *FileService) FavoriteCount(ctx context.Context, fileID string) (int, error) {
	return s.relations.CountIncoming(ctx, fileID, model.RelationTypeFavorited)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
