package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/arkvault/internal/catalog"
	"github.com/tonimelisma/arkvault/internal/config"
	"github.com/tonimelisma/arkvault/internal/transfer"
	"github.com/tonimelisma/arkvault/internal/vaultapi"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// Downloaded plaintext is private to the user.
const downloadPermissions = 0o600

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List stored files and storage usage",
		Args:  cobra.NoArgs,
		RunE:  runLs,
	}
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <file>...",
		Short: "Encrypt and upload files",
		Long: `Encrypt and upload one or more files. By default each file is sealed with
the account key, which requires the account password once per process.

With --custom each file is sealed with a separate file password instead. The
password must satisfy the complexity policy; --hint stores a reminder next to
the file. Files are uploaded in parallel, bounded by transfers.parallel_uploads.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPut,
	}

	cmd.Flags().Bool("custom", false, "seal with a file password instead of the account key")
	cmd.Flags().String("hint", "", "password hint stored with custom-mode files")

	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Download, decrypt and verify a file",
		Long: `Download a file and write the plaintext only after its SHA-256 digest
matches the digest recorded when it was uploaded.`,
		Args: cobra.ExactArgs(1),
		RunE: runGet,
	}

	cmd.Flags().StringP("output", "o", "", "output path (default: the file name; - for stdout)")
	cmd.Flags().Bool("force", false, "overwrite an existing output file")

	return cmd
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>...",
		Short: "Delete stored files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRm,
	}
}

func runLs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	vs, err := openVault(ctx)
	if err != nil {
		return err
	}
	defer vs.Close()

	listing, err := vs.transfers.List(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		return printListingJSON(cmd.OutOrStdout(), listing)
	}

	printListingTable(cmd.OutOrStdout(), listing)

	return nil
}

// lsJSON is the JSON output schema for ls.
type lsJSON struct {
	Files   []lsJSONFile     `json:"files"`
	Storage vaultapi.Storage `json:"storage"`
}

type lsJSONFile struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	PasswordType string `json:"password_type"`
	PasswordHint string `json:"password_hint,omitempty"`
	SHA256       string `json:"sha256"`
	UploadedAt   string `json:"uploaded_at"`
}

func printListingJSON(w io.Writer, l *vaultapi.Listing) error {
	out := lsJSON{Files: make([]lsJSONFile, 0, len(l.Files)), Storage: l.Storage}

	for i := range l.Files {
		f := &l.Files[i]
		out.Files = append(out.Files, lsJSONFile{
			Name:         f.Filename,
			Size:         f.SizeBytes,
			PasswordType: f.PasswordType,
			PasswordHint: f.PasswordHint,
			SHA256:       f.SHA256,
			UploadedAt:   f.UploadDate.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printListingTable(w io.Writer, l *vaultapi.Listing) {
	files := l.Files
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })

	headers := []string{"NAME", "SIZE", "MODE", "UPLOADED"}
	rows := make([][]string, 0, len(files))

	for i := range files {
		rows = append(rows, []string{
			files[i].Filename,
			formatSize(files[i].SizeBytes),
			files[i].PasswordType,
			formatTime(files[i].UploadDate),
		})
	}

	printTable(w, headers, rows)

	fmt.Fprintf(w, "\n%s of %s used (%.1f%%)\n",
		formatSize(l.Storage.TotalBytes), formatSize(l.Storage.LimitBytes), l.Storage.UsagePercent)
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	custom, err := cmd.Flags().GetBool("custom")
	if err != nil {
		return err
	}

	hint, err := cmd.Flags().GetString("hint")
	if err != nil {
		return err
	}

	if hint != "" && !custom {
		return vaulterr.Newf(vaulterr.ErrValidation, "put", "--hint only applies with --custom")
	}

	vs, err := openVault(ctx)
	if err != nil {
		return err
	}
	defer vs.Close()

	base := transfer.UploadRequest{Mode: transfer.ModeAccount}

	if custom {
		password, confirm, err := readNewPassword("File password: ", config.EnvFilePassword)
		if err != nil {
			return err
		}

		if err := vs.policy.RequireConfirmed(ctx, password, confirm); err != nil {
			return err
		}

		base = transfer.UploadRequest{Mode: transfer.ModeCustom, Password: password, Hint: hint}
	} else if err := vs.unlock(ctx); err != nil {
		return err
	}

	return uploadAll(ctx, vs, args, base)
}

// uploadAll uploads paths through a bounded errgroup. Session and login
// failures cancel the batch, since every remaining file would fail the same
// way. Other failures are reported per file and joined.
func uploadAll(ctx context.Context, vs *vaultSession, paths []string, base transfer.UploadRequest) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(vs.cfg.ParallelUploads)

	var (
		mu   sync.Mutex
		errs []error
	)

	for _, path := range paths {
		g.Go(func() error {
			res, err := uploadOne(gctx, vs, path, base)
			if err != nil {
				if vaulterr.IsReauth(err) {
					return err
				}

				vs.logger.Warn("upload failed", slog.String("path", path), slog.String("error", err.Error()))

				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				mu.Unlock()

				return nil
			}

			statusf(flagQuiet, "Uploaded %s (%s)\n", res.Filename, formatSize(res.SizeBytes))

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return errors.Join(errs...)
}

func uploadOne(ctx context.Context, vs *vaultSession, path string, base transfer.UploadRequest) (*transfer.UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	req := base
	req.Filename = filepath.Base(path)
	req.Payload = data

	vs.logger.Debug("put", slog.String("path", path), slog.Int("bytes", len(data)))

	return vs.transfers.Upload(ctx, req)
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if output == "" {
		output = filepath.Base(name)
	}

	if output != "-" && !force {
		if _, statErr := os.Stat(output); statErr == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", output)
		}
	}

	vs, err := openVault(ctx)
	if err != nil {
		return err
	}
	defer vs.Close()

	entry, err := lookupFile(ctx, vs, name)
	if err != nil {
		return err
	}

	req := transfer.DownloadRequest{
		Filename:       name,
		Mode:           transfer.Mode(entry.PasswordType),
		ExpectedDigest: entry.SHA256,
	}

	if req.Mode == transfer.ModeAccount {
		if err := vs.unlock(ctx); err != nil {
			return err
		}
	} else {
		req.Prompt = func(_ context.Context, hint string) (string, error) {
			prompt := "File password: "
			if hint != "" {
				prompt = fmt.Sprintf("File password (hint: %s): ", hint)
			}

			return readPassword(prompt, config.EnvFilePassword)
		}
	}

	data, err := vs.transfers.Download(ctx, req)
	if err != nil {
		return err
	}
	defer clear(data)

	if output == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	if err := os.WriteFile(output, data, downloadPermissions); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}

	statusf(flagQuiet, "Downloaded %s (%s, verified)\n", output, formatSize(int64(len(data))))

	return nil
}

// lookupFile returns the catalog entry for name, refreshing the catalog from
// the server once when the name is unknown.
func lookupFile(ctx context.Context, vs *vaultSession, name string) (*catalog.Entry, error) {
	entry, err := vs.catalog.Lookup(ctx, name)
	if err == nil {
		return entry, nil
	}

	if !errors.Is(err, catalog.ErrNotFound) {
		return nil, err
	}

	vs.logger.Debug("file not in catalog, refreshing listing", slog.String("name", name))

	if _, err := vs.transfers.List(ctx); err != nil {
		return nil, err
	}

	entry, err = vs.catalog.Lookup(ctx, name)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, vaulterr.New(vaulterr.ErrDownloadFailed, "get", fmt.Errorf("%q: %w", name, vaultapi.ErrNotFound))
	}

	return entry, err
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	vs, err := openVault(ctx)
	if err != nil {
		return err
	}
	defer vs.Close()

	var errs []error

	for _, name := range args {
		if err := vs.transfers.Delete(ctx, name); err != nil {
			if vaulterr.IsReauth(err) {
				return err
			}

			errs = append(errs, err)

			continue
		}

		statusf(flagQuiet, "Deleted %s\n", name)
	}

	return errors.Join(errs...)
}
