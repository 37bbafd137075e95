package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tonimelisma/arkvault/internal/catalog"
	"github.com/tonimelisma/arkvault/internal/vaultapi"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// PasswordPrompt asks the user for a custom file password, showing hint.
type PasswordPrompt func(ctx context.Context, hint string) (string, error)

// DownloadRequest is one file to fetch and verify.
type DownloadRequest struct {
	Filename string
	// Mode overrides the password type the server recorded. Empty uses the
	// server's value.
	Mode     Mode
	Password string
	// Prompt is called for a custom-mode file when Password is empty.
	Prompt PasswordPrompt
	// ExpectedDigest is the plaintext digest to verify against. Empty falls
	// back to the catalog, then to the digest the server stored.
	ExpectedDigest string
}

// Download fetches, opens and verifies one file. Steps, in order: fetch (one
// refresh-and-retry on 401), resolve the credential, open, verify. Plaintext
// is returned only when its digest matches; on mismatch it is zeroed.
func (o *Orchestrator) Download(ctx context.Context, req DownloadRequest) ([]byte, error) {
	const op = "transfer: download"

	name, err := validateName(op, req.Filename)
	if err != nil {
		return nil, err
	}

	if req.Mode != "" && !req.Mode.Valid() {
		return nil, vaulterr.Newf(vaulterr.ErrValidation, op, "unknown password mode %q", req.Mode)
	}

	if err := o.gate.Ready(ctx); err != nil {
		return nil, err
	}

	var file *vaultapi.DownloadedFile

	err = o.withRefresh(ctx, op, func() error {
		var callErr error
		file, callErr = o.api.Download(ctx, name)

		return callErr
	})
	if err != nil {
		o.logger.Warn("download failed", slog.String("filename", name), slog.String("error", err.Error()))

		return nil, classify(op, vaulterr.ErrDownloadFailed, err)
	}

	mode := req.Mode
	if mode == "" {
		mode = Mode(file.PasswordType)
	}

	plaintext, err := o.open(ctx, op, mode, file, req)
	if err != nil {
		return nil, err
	}

	expected, err := o.expectedDigest(ctx, name, req.ExpectedDigest, file.SHA256)
	if err != nil {
		clear(plaintext)

		return nil, err
	}

	actual, err := o.gate.Digest(ctx, plaintext)
	if err != nil {
		clear(plaintext)

		return nil, err
	}

	if !strings.EqualFold(actual, expected) {
		clear(plaintext)

		o.logger.Warn("integrity check failed",
			slog.String("filename", name),
			slog.String("expected", expected),
			slog.String("actual", actual),
		)

		return nil, vaulterr.Newf(vaulterr.ErrIntegrityCheckFailed, op,
			"%s: digest %s does not match expected %s", name, actual, expected)
	}

	o.logger.Info("downloaded", slog.String("filename", name), slog.Int("size", len(plaintext)))

	return plaintext, nil
}

// open resolves the credential for mode and opens the envelope.
func (o *Orchestrator) open(ctx context.Context, op string, mode Mode, file *vaultapi.DownloadedFile,
	req DownloadRequest,
) ([]byte, error) {
	switch mode {
	case ModeAccount:
		h, err := o.sessions.HandleForTransfer()
		if err != nil {
			return nil, err
		}

		return o.gate.DecryptWithKey(ctx, file.Data, h)
	case ModeCustom:
		password := req.Password
		if password == "" && req.Prompt != nil {
			var err error

			password, err = req.Prompt(ctx, file.PasswordHint)
			if err != nil {
				return nil, fmt.Errorf("%s: reading password: %w", op, err)
			}
		}

		if password == "" {
			return nil, vaulterr.Newf(vaulterr.ErrValidation, op, "a password is required for this file")
		}

		return o.gate.DecryptWithPassword(ctx, file.Data, password)
	default:
		return nil, vaulterr.Newf(vaulterr.ErrDecryptionFailed, op, "server reported unknown password type %q", mode)
	}
}

// expectedDigest picks the reference digest: the caller's, then the one
// recorded locally at upload, then the server's.
func (o *Orchestrator) expectedDigest(ctx context.Context, name, requested, server string) (string, error) {
	if requested != "" {
		return requested, nil
	}

	if o.catalog != nil {
		e, err := o.catalog.Lookup(ctx, name)

		switch {
		case err == nil:
			return e.SHA256, nil
		case errors.Is(err, catalog.ErrNotFound):
		default:
			o.logger.Warn("catalog lookup failed", slog.String("filename", name), slog.String("error", err.Error()))
		}
	}

	if server != "" {
		return server, nil
	}

	return "", vaulterr.Newf(vaulterr.ErrIntegrityCheckFailed, "transfer: download",
		"%s: no reference digest to verify against", name)
}
