package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/homebase-app/homebase/internal/ctxkeys"
	"github.com/homebase-app/homebase/internal/model"
	"github.com/homebase-app/homebase/internal/service"
	"github.com/homebase-app/homebase/internal/validation"
)

type FileHandler struct {
	fileService   *service.FileService
	maxUploadSize int64
}

func NewFileHandler(fileService *service.FileService, maxUploadSize int64) *FileHandler {
	return &FileHandler{
		fileService:   fileService,
		maxUploadSize: maxUploadSize,
	}
}

// Upload accepts multipart form field "file" plus optional "public" and
// "applicationId" fields. The stored MIME type is sniffed from the content.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	err := r.ParseMultipartForm(32 << 20)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = ErrorResponse(w, http.StatusRequestEntityTooLarge, "invalid_request", "upload exceeds "+strconv.FormatInt(h.maxUploadSize>>20, 10)+" MB")
			return
		}
		badRequest(w, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	mimeType, err := validation.DetectFile(header, validation.UploadConstraints...)
	if err != nil {
		writeError(w, r, "validate upload", err)
		return
	}

	public := false
	if v := r.FormValue("public"); v != "" {
		public, err = strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "public must be a boolean")
			return
		}
	}

	uploaded, err := h.fileService.Upload(r.Context(), service.UploadInput{
		OwnerID:       ctxkeys.Principal(r.Context()),
		ApplicationID: r.FormValue("applicationId"),
		Filename:      header.Filename,
		MimeType:      mimeType,
		Size:          header.Size,
		Body:          file,
		Public:        public,
	})
	if err != nil {
		writeError(w, r, "upload file", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, uploaded.Entity)
}

func (h *FileHandler) URL(w http.ResponseWriter, r *http.Request) {
	url, err := h.fileService.URL(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "presign file url", err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"url": url})
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hard, err := boolParam(r, "hard")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	err = h.fileService.Delete(r.Context(), r.PathValue("id"), hard)
	if err != nil {
		writeError(w, r, "delete file", err)
		return
	}

	slog.Info("file deleted", "id", r.PathValue("id"), "hard", hard, "principal", ctxkeys.Principal(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *FileHandler) Favorite(w http.ResponseWriter, r *http.Request) {
	err := h.fileService.Favorite(r.Context(), ctxkeys.Principal(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "favorite file", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *FileHandler) Unfavorite(w http.ResponseWriter, r *http.Request) {
	removed, err := h.fileService.Unfavorite(r.Context(), ctxkeys.Principal(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "unfavorite file", err)
		return
	}
	if !removed {
		notFound(w, "favorite")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// FavoriteCount reports how many principals favorited the file.
func (h *FileHandler) FavoriteCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.fileService.FavoriteCount(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "count file favorites", err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]int{"count": count})
}

func (h *FileHandler) Favorites(w http.ResponseWriter, r *http.Request) {
	files, err := h.fileService.Favorites(r.Context(), ctxkeys.Principal(r.Context()))
	if err != nil {
		writeError(w, r, "list favorite files", err)
		return
	}

	items := make([]*model.Entity, 0, len(files))
	for _, f := range files {
		items = append(items, f.Entity)
	}
	writeJSON(w, r, http.StatusOK, ListResponse[*model.Entity]{Items: items})
}
