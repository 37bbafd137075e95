package transfer

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/arkvault/internal/catalog"
	"github.com/tonimelisma/arkvault/internal/vaultapi"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// UploadRequest is one file to seal and store.
type UploadRequest struct {
	Filename string
	Payload  []byte
	Mode     Mode
	Password string // custom mode only
	Hint     string
}

// UploadResult describes a stored file.
type UploadResult struct {
	Filename    string
	SHA256      string
	SizeBytes   int64
	SealedBytes int64
	Storage     *vaultapi.Storage
}

// Upload seals req.Payload and stores it. Steps, in order: wait for the
// crypto engine, resolve the credential, digest, seal, submit. Nothing is
// sent if any step before submission fails. A 401 triggers one token
// refresh and one resubmission; nothing else is retried.
func (o *Orchestrator) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	const op = "transfer: upload"

	name, err := validateName(op, req.Filename)
	if err != nil {
		return nil, err
	}

	if !req.Mode.Valid() {
		return nil, vaulterr.Newf(vaulterr.ErrValidation, op, "unknown password mode %q", req.Mode)
	}

	if o.maxFileSize > 0 && int64(len(req.Payload)) > o.maxFileSize {
		return nil, vaulterr.Newf(vaulterr.ErrValidation, op,
			"%s is %d bytes, limit is %d", name, len(req.Payload), o.maxFileSize)
	}

	if err := o.gate.Ready(ctx); err != nil {
		return nil, err
	}

	seal, err := o.uploadSealer(ctx, req)
	if err != nil {
		return nil, err
	}

	digest, err := o.gate.Digest(ctx, req.Payload)
	if err != nil {
		return nil, err
	}

	sealed, err := seal(req.Payload)
	if err != nil {
		return nil, err
	}

	params := vaultapi.UploadParams{
		Filename:     name,
		Data:         sealed,
		PasswordHint: req.Hint,
		PasswordType: string(req.Mode),
		SHA256:       digest,
	}

	var storage *vaultapi.Storage

	err = o.withRefresh(ctx, op, func() error {
		var callErr error
		storage, callErr = o.api.Upload(ctx, params)

		return callErr
	})
	if err != nil {
		o.logger.Warn("upload failed", slog.String("filename", name), slog.String("error", err.Error()))

		return nil, classify(op, vaulterr.ErrUploadFailed, err)
	}

	res := &UploadResult{
		Filename:    name,
		SHA256:      digest,
		SizeBytes:   int64(len(req.Payload)),
		SealedBytes: int64(len(sealed)),
		Storage:     storage,
	}

	o.record(ctx, req, res)

	o.logger.Info("uploaded",
		slog.String("filename", name),
		slog.String("mode", string(req.Mode)),
		slog.Int64("size", res.SizeBytes),
	)

	return res, nil
}

// uploadSealer resolves the credential for req and returns the sealing step.
// Account mode fails fast on a missing or expired session; custom mode on a
// password that does not meet policy.
func (o *Orchestrator) uploadSealer(ctx context.Context, req UploadRequest) (func([]byte) ([]byte, error), error) {
	if req.Mode == ModeAccount {
		h, err := o.sessions.HandleForTransfer()
		if err != nil {
			return nil, err
		}

		return func(data []byte) ([]byte, error) {
			return o.gate.EncryptWithKey(ctx, data, h)
		}, nil
	}

	if err := o.policy.Require(ctx, req.Password); err != nil {
		return nil, err
	}

	return func(data []byte) ([]byte, error) {
		return o.gate.EncryptWithPassword(ctx, data, req.Password)
	}, nil
}

// record notes a finished upload in the catalog. The upload already
// succeeded, so failures here are logged only.
func (o *Orchestrator) record(ctx context.Context, req UploadRequest, res *UploadResult) {
	if o.catalog == nil {
		return
	}

	err := o.catalog.RecordUpload(ctx, catalog.Entry{
		Filename:     res.Filename,
		PasswordHint: req.Hint,
		PasswordType: string(req.Mode),
		SHA256:       res.SHA256,
		SizeBytes:    res.SizeBytes,
	})
	if err != nil {
		o.logger.Warn("recording upload in catalog failed",
			slog.String("filename", res.Filename),
			slog.String("error", err.Error()),
		)
	}

	if res.Storage == nil {
		return
	}

	if err := o.catalog.UpdateStorage(ctx, usageFrom(*res.Storage)); err != nil {
		o.logger.Warn("recording storage usage failed", slog.String("error", err.Error()))
	}
}

func usageFrom(s vaultapi.Storage) catalog.Usage {
	return catalog.Usage{
		TotalBytes:     s.TotalBytes,
		LimitBytes:     s.LimitBytes,
		AvailableBytes: s.AvailableBytes,
		UsagePercent:   s.UsagePercent,
	}
}
