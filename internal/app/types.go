package app

import "github.com/molpadia/molparelay/internal/domain/entity"

const (
	messageSuccess = "success"
	messageFailure = "failure"
)

// Envelope wraps every reply of the upload endpoint.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type UploadResponse struct {
	Id        string `json:"id"`
	PublicId  string `json:"public_id,omitempty"`
	Size      int64  `json:"size"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	SecureURL string `json:"secure_url,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

func newUploadResponse(u *entity.Upload) UploadResponse {
	return UploadResponse{
		Id:        u.Id,
		PublicId:  u.PublicId,
		Size:      u.Size,
		Status:    u.Status,
		Reason:    u.Reason,
		SecureURL: u.SecureURL,
		CreatedAt: u.CreatedAt,
	}
}
