package entity

import "time"

const (
	UploadStatusRelayed  = "RELAYED"
	UploadStatusRejected = "REJECTED"
	UploadStatusFailed   = "FAILED"
)

// The record of one upload passing through the relay. It never holds media.
type Upload struct {
	Id        string
	PublicId  string
	Size      int64
	Status    string
	Reason    string
	SecureURL string
	CreatedAt int64
}

func NewUpload(id string, createdAt time.Time) *Upload {
	return &Upload{Id: id, CreatedAt: createdAt.Unix()}
}

// Mark the upload as accepted by the remote service.
func (u *Upload) SetRelayed(publicId string, size int64, secureURL string) {
	u.PublicId = publicId
	u.Size = size
	u.SecureURL = secureURL
	u.Status = UploadStatusRelayed
	u.Reason = ""
}

// Mark the upload as refused because of the caller's input.
func (u *Upload) SetRejected(reason string) {
	u.Status = UploadStatusRejected
	u.Reason = reason
}

// Mark the upload as failed while relaying.
func (u *Upload) SetFailed(reason string) {
	u.Status = UploadStatusFailed
	u.Reason = reason
}
