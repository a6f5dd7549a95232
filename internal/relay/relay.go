// Package relay forwards a sealed upload to the remote media API as a signed
// multipart request and decodes the answer.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/molpadia/molparelay/internal/logging"
	"github.com/molpadia/molparelay/internal/signature"
)

var (
	ErrTransport      = errors.New("upload request failed")
	ErrDecode         = errors.New("cannot decode upload response")
	ErrRemoteRejected = errors.New("upload rejected by remote service")
)

// Outcome is the decoded remote response. Its fields are defined by the remote
// service.
type Outcome map[string]any

// RemoteError is returned when the remote service answers with a non-2xx status.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrRemoteRejected, e.StatusCode, e.Message)
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemoteRejected }

// Asset is the content handed to the relay.
type Asset interface {
	Name() string
	Bytes() ([]byte, error)
}

type Credentials struct {
	Key       string
	Secret    string
	Namespace string
}

type Client struct {
	endpoint   string
	creds      Credentials
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*Client)

// WithHTTPClient sets the client used for the outbound request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock sets the time source of the signed timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(endpoint string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		creds:      creds,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadURL returns the address uploads are posted to.
func (c *Client) UploadURL() string {
	return fmt.Sprintf("%s/%s/video/upload", c.endpoint, url.PathEscape(c.creds.Namespace))
}

// Params returns the parameters covered by the signature of an upload.
func Params(publicID string, timestamp int64) signature.Params {
	return signature.Params{
		"public_id": signature.String(publicID),
		"timestamp": signature.Int(timestamp),
	}
}

// Request is a signed upload ready to be sent.
type Request struct {
	PublicID    string
	Timestamp   int64
	Signature   string
	Size        int64
	body        []byte
	contentType string
}

// Prepare signs the upload parameters of the asset and builds the multipart
// body carrying them together with the asset content.
func (c *Client) Prepare(asset Asset) (*Request, error) {
	publicID := asset.Name()
	timestamp := c.now().Unix()
	sig, err := signature.Sign(Params(publicID, timestamp), c.creds.Secret)
	if err != nil {
		return nil, err
	}
	data, err := asset.Bytes()
	if err != nil {
		return nil, fmt.Errorf("cannot read asset %s: %w", publicID, err)
	}

	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	fields := [][2]string{
		{"public_id", publicID},
		{"timestamp", strconv.FormatInt(timestamp, 10)},
		{"signature", sig},
		{"api_key", c.creds.Key},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("cannot build upload request: %w", err)
		}
	}
	fw, err := w.CreateFormFile("file", publicID)
	if err != nil {
		return nil, fmt.Errorf("cannot build upload request: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("cannot build upload request: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("cannot build upload request: %w", err)
	}
	return &Request{
		PublicID:    publicID,
		Timestamp:   timestamp,
		Signature:   sig,
		Size:        int64(len(data)),
		body:        body.Bytes(),
		contentType: w.FormDataContentType(),
	}, nil
}

// Send posts a prepared upload in a single request and decodes the answer.
func (c *Client) Send(ctx context.Context, upload *Request) (Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadURL(), bytes.NewReader(upload.body))
	if err != nil {
		return nil, fmt.Errorf("cannot build upload request: %w", err)
	}
	req.Header.Set("Content-Type", upload.contentType)

	log := logging.FromContext(ctx, nil).With("public_id", upload.PublicID)
	log.Info("relaying upload", "url", req.URL.String(), "size", units.BytesSize(float64(upload.Size)))
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read response: %v", ErrTransport, err)
	}
	log.Info("remote answered", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Message: remoteMessage(raw, resp.StatusCode)}
	}
	var out Outcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: empty document", ErrDecode)
	}
	return out, nil
}

// Relay signs and sends the asset.
func (c *Client) Relay(ctx context.Context, asset Asset) (Outcome, error) {
	upload, err := c.Prepare(asset)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, upload)
}

// remoteMessage extracts error.message from an error document, falling back to
// the status text.
func remoteMessage(raw []byte, status int) string {
	var doc struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &doc); err == nil && doc.Error.Message != "" {
		return doc.Error.Message
	}
	return http.StatusText(status)
}
