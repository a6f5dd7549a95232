// Package pipeline runs one upload through ingestion, signing and relay.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/google/uuid"

	"github.com/molpadia/molparelay/internal/domain/entity"
	"github.com/molpadia/molparelay/internal/domain/repository"
	"github.com/molpadia/molparelay/internal/ingest"
	"github.com/molpadia/molparelay/internal/logging"
	"github.com/molpadia/molparelay/internal/relay"
)

type State int

const (
	Receiving State = iota
	Validating
	Buffering
	Sealed
	Signing
	Relaying
	Completed
	Failed
)

var stateNames = [...]string{"receiving", "validating", "buffering", "sealed", "signing", "relaying", "completed", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves the state.
func (s State) Terminal() bool { return s == Completed || s == Failed }

type Ingestor interface {
	Ingest(ctx context.Context, r *multipart.Reader) (*ingest.Asset, error)
}

type Relayer interface {
	Prepare(asset relay.Asset) (*relay.Request, error)
	Send(ctx context.Context, req *relay.Request) (relay.Outcome, error)
}

type Pipeline struct {
	ingestor Ingestor
	relayer  Relayer
	uploads  repository.UploadRepository
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Pipeline)

// WithLedger records every run in the repository.
func WithLedger(uploads repository.UploadRepository) Option {
	return func(p *Pipeline) { p.uploads = uploads }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func New(ingestor Ingestor, relayer Relayer, opts ...Option) *Pipeline {
	p := &Pipeline{ingestor: ingestor, relayer: relayer, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.WithComponent(p.logger, "pipeline")
	return p
}

// Result describes a finished run.
type Result struct {
	Outcome relay.Outcome
	State   State
	// FailedIn is the state the run failed from, if it failed.
	FailedIn State
}

// Run ingests the body, signs and relays it. The transient asset is removed
// before Run returns, whatever the result.
func (p *Pipeline) Run(ctx context.Context, body *multipart.Reader) (*Result, error) {
	log := logging.FromContext(ctx, p.logger)
	run := &tracker{log: log, state: Receiving}
	record := entity.NewUpload(recordID(ctx), p.now())

	res, err := p.run(ctx, body, run, record)
	if err != nil {
		if IsCallerError(err) {
			record.SetRejected(err.Error())
			log.Info("upload rejected", "state", run.state.String(), "err", err)
		} else {
			record.SetFailed(err.Error())
			log.Error("upload failed", "state", run.state.String(), "err", err)
		}
		res = &Result{FailedIn: run.state}
		run.to(Failed)
		res.State = Failed
	}
	p.save(ctx, log, record)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, body *multipart.Reader, run *tracker, record *entity.Upload) (*Result, error) {
	run.to(Validating)
	asset, err := p.ingestor.Ingest(ctx, body)
	if err != nil {
		if !isValidationError(err) {
			run.to(Buffering)
		}
		return nil, err
	}
	defer asset.Close()
	run.to(Buffering)
	run.to(Sealed)

	run.to(Signing)
	req, err := p.relayer.Prepare(asset)
	if err != nil {
		return nil, err
	}

	run.to(Relaying)
	out, err := p.relayer.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	run.to(Completed)

	secureURL, _ := out["secure_url"].(string)
	record.SetRelayed(req.PublicID, req.Size, secureURL)
	log := run.log.With("public_id", req.PublicID)
	log.Info("upload relayed", "size", req.Size)
	return &Result{Outcome: out, State: Completed}, nil
}

func (p *Pipeline) save(ctx context.Context, log *slog.Logger, record *entity.Upload) {
	if p.uploads == nil {
		return
	}
	// The record is written even when the caller went away.
	if err := p.uploads.Save(context.WithoutCancel(ctx), record); err != nil {
		log.Warn("failed to record upload", "id", record.Id, "err", err)
	}
}

// IsCallerError reports whether the run failed because of the caller's input.
func IsCallerError(err error) bool {
	return isValidationError(err) || errors.Is(err, ingest.ErrPayloadTooLarge)
}

func isValidationError(err error) bool {
	return errors.Is(err, ingest.ErrMissingContentType) ||
		errors.Is(err, ingest.ErrUnsupportedMediaType) ||
		errors.Is(err, ingest.ErrEmptyUpload) ||
		errors.Is(err, ingest.ErrMalformedUpload)
}

func recordID(ctx context.Context) string {
	if id, ok := logging.RequestIDFromContext(ctx); ok {
		return id
	}
	return uuid.New().String()
}

type tracker struct {
	log   *slog.Logger
	state State
}

// to moves the run forward. States are never re-entered.
func (t *tracker) to(next State) {
	if t.state.Terminal() || next <= t.state && next != Failed {
		return
	}
	t.log.Debug("state", "from", t.state.String(), "to", next.String())
	t.state = next
}
