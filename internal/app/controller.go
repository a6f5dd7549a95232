package app

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"

	"github.com/docker/go-units"
	"github.com/gorilla/mux"

	"github.com/molpadia/molparelay/internal/domain/repository"
	"github.com/molpadia/molparelay/internal/pipeline"
)

// Room left in the request body for multipart framing around the file.
const multipartOverhead = 1 * units.MiB

type Uploader interface {
	Run(ctx context.Context, body *multipart.Reader) (*pipeline.Result, error)
}

type Controller struct {
	uploader    Uploader
	uploads     repository.UploadRepository
	maxBodySize int64
}

// NewController serves uploads of at most maxFileSize bytes of content. The
// upload ledger may be nil, in which case lookups report it as disabled.
func NewController(uploader Uploader, uploads repository.UploadRepository, maxFileSize int64) *Controller {
	return &Controller{uploader: uploader, uploads: uploads, maxBodySize: maxFileSize + multipartOverhead}
}

// Relay the uploaded video to the remote media service.
func (c *Controller) uploadVideo(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, c.maxBodySize)
	mr, err := r.MultipartReader()
	if err != nil {
		return &AppError{Code: http.StatusBadRequest, Message: "request body must be multipart/form-data", Err: err}
	}
	res, err := c.uploader.Run(r.Context(), mr)
	if err != nil {
		return err
	}
	return replyJSON(w, Envelope{Status: http.StatusCreated, Message: messageSuccess, Data: res.Outcome}, http.StatusCreated)
}

// Get the ledger record of a past upload by its request ID.
func (c *Controller) getUpload(w http.ResponseWriter, r *http.Request) error {
	if c.uploads == nil {
		return &AppError{Code: http.StatusNotFound, Message: "upload ledger is disabled"}
	}
	id := mux.Vars(r)["id"]
	upload, err := c.uploads.GetById(r.Context(), id)
	if err != nil {
		return err
	}
	if upload == nil {
		return &AppError{Code: http.StatusNotFound, Message: "upload not found"}
	}
	return replyJSON(w, Envelope{Status: http.StatusOK, Message: messageSuccess, Data: newUploadResponse(upload)}, http.StatusOK)
}

func (c *Controller) health(w http.ResponseWriter, r *http.Request) error {
	return replyJSON(w, HealthResponse{Status: "ok"}, http.StatusOK)
}

// Respond the output with JSON format to the client.
func replyJSON(w http.ResponseWriter, data interface{}, code int) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return err
	}
	return nil
}
