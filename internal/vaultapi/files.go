package vaultapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
)

// Upload submits one sealed file with its metadata as a multipart form.
// Never retried: the caller decides whether a second attempt is safe.
func (c *Client) Upload(ctx context.Context, p UploadParams) (*Storage, error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"filename", p.Filename},
		{"data", base64.StdEncoding.EncodeToString(p.Data)},
		{"passwordHint", p.PasswordHint},
		{"passwordType", p.PasswordType},
		{"sha256sum", p.SHA256},
	}

	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, fmt.Errorf("vaultapi: encoding upload form: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("vaultapi: encoding upload form: %w", err)
	}

	r := request{
		method:      http.MethodPost,
		path:        "/api/upload",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
		bearer:      true,
	}

	var out struct {
		Message string  `json:"message"`
		Storage Storage `json:"storage"`
	}

	if err := c.doJSON(ctx, r, &out); err != nil {
		return nil, fmt.Errorf("vaultapi: uploading %s: %w", p.Filename, err)
	}

	c.logger.Debug("upload accepted",
		slog.String("filename", p.Filename),
		slog.Int("sealed_bytes", len(p.Data)),
	)

	return &out.Storage, nil
}

// Download fetches the sealed envelope and metadata of filename.
func (c *Client) Download(ctx context.Context, filename string) (*DownloadedFile, error) {
	r := request{
		method: http.MethodGet,
		path:   "/api/download/" + url.PathEscape(filename),
		bearer: true,
	}

	var out DownloadedFile
	if err := c.doJSON(ctx, r, &out); err != nil {
		return nil, fmt.Errorf("vaultapi: downloading %s: %w", filename, err)
	}

	return &out, nil
}

// ListFiles returns the account's files and quota.
func (c *Client) ListFiles(ctx context.Context) (*Listing, error) {
	r := request{method: http.MethodGet, path: "/api/files", bearer: true, retry: true}

	var out Listing
	if err := c.doJSON(ctx, r, &out); err != nil {
		return nil, fmt.Errorf("vaultapi: listing files: %w", err)
	}

	return &out, nil
}

// DeleteFile removes filename from the vault.
func (c *Client) DeleteFile(ctx context.Context, filename string) error {
	r := request{
		method: http.MethodDelete,
		path:   "/api/files/" + url.PathEscape(filename),
		bearer: true,
	}

	resp, err := c.do(ctx, r)
	if err != nil {
		return fmt.Errorf("vaultapi: deleting %s: %w", filename, err)
	}

	drain(resp)

	return nil
}
