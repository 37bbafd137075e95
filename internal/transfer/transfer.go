// Package transfer sequences encrypted uploads and verified downloads. For
// every file it resolves the credential, digests, seals and submits on the
// way up, and fetches, opens and verifies on the way down. Plaintext is only
// ever returned after its digest has matched.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/arkvault/internal/catalog"
	"github.com/tonimelisma/arkvault/internal/cryptogate"
	"github.com/tonimelisma/arkvault/internal/vaultapi"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

// Mode selects which credential seals a file.
type Mode string

// Modes.
const (
	ModeAccount Mode = vaultapi.PasswordTypeAccount
	ModeCustom  Mode = vaultapi.PasswordTypeCustom
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAccount || m == ModeCustom
}

// Gate is the subset of *cryptogate.Gate the orchestrator uses.
type Gate interface {
	Ready(ctx context.Context) error
	Digest(ctx context.Context, data []byte) (string, error)
	EncryptWithKey(ctx context.Context, data []byte, h cryptogate.KeyHandle) ([]byte, error)
	DecryptWithKey(ctx context.Context, envelope []byte, h cryptogate.KeyHandle) ([]byte, error)
	EncryptWithPassword(ctx context.Context, data []byte, password string) ([]byte, error)
	DecryptWithPassword(ctx context.Context, envelope []byte, password string) ([]byte, error)
}

// Sessions hands out the account key handle. Implemented by *session.Manager.
type Sessions interface {
	HandleForTransfer() (cryptogate.KeyHandle, error)
}

// Policy vets custom passwords. Implemented by *policy.Validator.
type Policy interface {
	Require(ctx context.Context, password string) error
}

// Tokens rotates the token pair. Implemented by *tokens.Manager.
type Tokens interface {
	Refresh(ctx context.Context) error
}

// API is the subset of *vaultapi.Client the orchestrator calls.
type API interface {
	Upload(ctx context.Context, p vaultapi.UploadParams) (*vaultapi.Storage, error)
	Download(ctx context.Context, filename string) (*vaultapi.DownloadedFile, error)
	ListFiles(ctx context.Context) (*vaultapi.Listing, error)
	DeleteFile(ctx context.Context, filename string) error
}

// Catalog records what was uploaded. Implemented by *catalog.Catalog.
type Catalog interface {
	RecordUpload(ctx context.Context, e catalog.Entry) error
	ReplaceListing(ctx context.Context, entries []catalog.Entry, usage *catalog.Usage) error
	Lookup(ctx context.Context, filename string) (*catalog.Entry, error)
	Delete(ctx context.Context, filename string) error
	UpdateStorage(ctx context.Context, u catalog.Usage) error
}

// Deps bundles the collaborators. Catalog may be nil.
type Deps struct {
	Gate     Gate
	Sessions Sessions
	Policy   Policy
	Tokens   Tokens
	API      API
	Catalog  Catalog
}

// Orchestrator runs transfers. Safe for concurrent use; each call runs its
// steps strictly in order.
type Orchestrator struct {
	gate     Gate
	sessions Sessions
	policy   Policy
	tokens   Tokens
	api      API
	catalog  Catalog
	logger   *slog.Logger

	maxFileSize int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxFileSize rejects uploads larger than n bytes. Zero means no limit.
func WithMaxFileSize(n int64) Option {
	return func(o *Orchestrator) {
		o.maxFileSize = n
	}
}

// New creates an Orchestrator.
func New(d Deps, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		gate:     d.Gate,
		sessions: d.Sessions,
		policy:   d.Policy,
		tokens:   d.Tokens,
		api:      d.API,
		catalog:  d.Catalog,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// withRefresh runs call, and if the server rejects the access token, rotates
// the pair once and runs call exactly once more.
func (o *Orchestrator) withRefresh(ctx context.Context, op string, call func() error) error {
	err := call()
	if !errors.Is(err, vaultapi.ErrUnauthorized) {
		return err
	}

	o.logger.Info("access token rejected, refreshing", slog.String("op", op))

	if refreshErr := o.tokens.Refresh(ctx); refreshErr != nil {
		return refreshErr
	}

	return call()
}

// classify maps a network-step failure onto the error taxonomy. kind is the
// failure kind for a server that answered with a non-2xx status.
func classify(op string, kind, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, vaulterr.ErrAuthenticationRequired):
		return err
	case errors.Is(err, vaultapi.ErrUnauthorized):
		return vaulterr.New(vaulterr.ErrAuthenticationRequired, op, err)
	case errors.Is(err, vaultapi.ErrTransport):
		return vaulterr.New(vaulterr.ErrNetwork, op, err)
	default:
		return vaulterr.New(kind, op, err)
	}
}

func validateName(op, name string) (string, error) {
	name = catalog.NormalizeName(name)
	if name == "" {
		return "", vaulterr.Newf(vaulterr.ErrValidation, op, "filename must not be empty")
	}

	return name, nil
}
