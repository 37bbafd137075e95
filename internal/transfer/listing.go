package transfer

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/arkvault/internal/catalog"
	"github.com/tonimelisma/arkvault/internal/vaultapi"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// List fetches the server's file listing and mirrors it into the catalog.
func (o *Orchestrator) List(ctx context.Context) (*vaultapi.Listing, error) {
	const op = "transfer: list"

	var listing *vaultapi.Listing

	err := o.withRefresh(ctx, op, func() error {
		var callErr error
		listing, callErr = o.api.ListFiles(ctx)

		return callErr
	})
	if err != nil {
		return nil, classify(op, vaulterr.ErrDownloadFailed, err)
	}

	if o.catalog != nil {
		usage := usageFrom(listing.Storage)
		if err := o.catalog.ReplaceListing(ctx, entriesFrom(listing.Files), &usage); err != nil {
			o.logger.Warn("updating catalog from listing failed", slog.String("error", err.Error()))
		}
	}

	return listing, nil
}

// Delete removes a file from the vault and from the catalog.
func (o *Orchestrator) Delete(ctx context.Context, filename string) error {
	const op = "transfer: delete"

	name, err := validateName(op, filename)
	if err != nil {
		return err
	}

	err = o.withRefresh(ctx, op, func() error {
		return o.api.DeleteFile(ctx, name)
	})
	if err != nil {
		return classify(op, vaulterr.ErrDeleteFailed, err)
	}

	if o.catalog != nil {
		if err := o.catalog.Delete(ctx, name); err != nil {
			o.logger.Warn("removing file from catalog failed",
				slog.String("filename", name),
				slog.String("error", err.Error()),
			)
		}
	}

	o.logger.Info("deleted", slog.String("filename", name))

	return nil
}

func entriesFrom(files []vaultapi.FileInfo) []catalog.Entry {
	out := make([]catalog.Entry, 0, len(files))

	for _, f := range files {
		out = append(out, catalog.Entry{
			Filename:     f.Filename,
			PasswordHint: f.PasswordHint,
			PasswordType: f.PasswordType,
			SHA256:       f.SHA256,
			SizeBytes:    f.SizeBytes,
			UploadedAt:   f.UploadDate,
		})
	}

	return out
}
