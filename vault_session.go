package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/tonimelisma/arkvault/internal/auth"
	"github.com/tonimelisma/arkvault/internal/catalog"
	"github.com/tonimelisma/arkvault/internal/config"
	"github.com/tonimelisma/arkvault/internal/cryptogate"
	"github.com/tonimelisma/arkvault/internal/engine"
	"github.com/tonimelisma/arkvault/internal/policy"
	"github.com/tonimelisma/arkvault/internal/session"
	"github.com/tonimelisma/arkvault/internal/tokenfile"
	"github.com/tonimelisma/arkvault/internal/tokens"
	"github.com/tonimelisma/arkvault/internal/transfer"
	"github.com/tonimelisma/arkvault/internal/vaultapi"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

var errNoServer = errors.New("no vault server configured")

// engineOptions tunes the default crypto engine. Tests lower its cost.
var engineOptions []engine.Option

const dataDirPermissions = 0o700

// vaultSession wires every component one command needs against a single
// resolved configuration. Close releases the catalog and drops the account
// key.
type vaultSession struct {
	cfg    *config.Resolved
	logger *slog.Logger

	gate      *cryptogate.Gate
	sessions  *session.Manager
	tokens    *tokens.Manager
	client    *vaultapi.Client
	catalog   *catalog.Catalog
	policy    *policy.Validator
	auth      *auth.Service
	transfers *transfer.Orchestrator

	stopSweep context.CancelFunc
}

// newVaultSession builds the component graph. Stored tokens are loaded but
// the account key stays locked until a login or unlock.
func newVaultSession(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (*vaultSession, error) {
	if cfg.ServerURL == "" {
		return nil, errNoServer
	}

	if err := os.MkdirAll(cfg.DataDir, dataDirPermissions); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	gate := cryptogate.New(cryptogate.DefaultLoader(engineOptions...), logger)
	sessions := session.NewManager(gate, logger,
		session.WithTTL(cfg.SessionTTL),
		session.WithSweepInterval(cfg.SweepInterval),
	)

	client := vaultapi.NewClient(cfg.ServerURL, newHTTPClient(cfg), nil, logger, userAgent(cfg))

	tm := tokens.New(client, tokenfile.NewStore(cfg.TokenPath()), sessions, logger)
	client.SetTokenSource(tm)

	if err := tm.Load(); err != nil {
		return nil, fmt.Errorf("loading tokens: %w", err)
	}

	cat, err := catalog.Open(ctx, cfg.CatalogPath(), logger)
	if err != nil {
		return nil, err
	}

	validator := policy.New(gate)

	sweepCtx, stop := context.WithCancel(ctx)
	go sessions.Run(sweepCtx)

	logger.Debug("vault session ready",
		slog.String("server", cfg.ServerURL),
		slog.String("data_dir", cfg.DataDir),
		slog.Bool("logged_in", tm.HasRefreshToken()),
	)

	return &vaultSession{
		cfg:      cfg,
		logger:   logger,
		gate:     gate,
		sessions: sessions,
		tokens:   tm,
		client:   client,
		catalog:  cat,
		policy:   validator,
		auth: auth.New(auth.Deps{
			Gate:     gate,
			API:      client,
			Tokens:   tm,
			Sessions: sessions,
			Policy:   validator,
		}, logger),
		transfers: transfer.New(transfer.Deps{
			Gate:     gate,
			Sessions: sessions,
			Policy:   validator,
			Tokens:   tm,
			API:      client,
			Catalog:  cat,
		}, logger, transfer.WithMaxFileSize(cfg.MaxFileSize)),
		stopSweep: stop,
	}, nil
}

// Close stops the sweeper, drops the account key and closes the catalog.
func (vs *vaultSession) Close() error {
	vs.stopSweep()
	vs.sessions.Clear()

	return vs.catalog.Close()
}

// unlock opens the account session from the stored login, prompting for the
// account password.
func (vs *vaultSession) unlock(ctx context.Context) error {
	if vs.sessions.IsValid() {
		return nil
	}

	if !vs.tokens.HasRefreshToken() {
		return vaulterr.Newf(vaulterr.ErrAuthenticationRequired, "unlock", "not logged in")
	}

	password, err := readPassword(fmt.Sprintf("Account password for %s: ", vs.tokens.Identity()), config.EnvPassword)
	if err != nil {
		return err
	}

	_, err = vs.auth.Unlock(ctx, password)

	return err
}

// newHTTPClient bounds connection setup and the wait for response headers.
// Bodies are not bounded, so large transfers are limited only by ctx.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	transport.ResponseHeaderTimeout = cfg.DataTimeout

	return &http.Client{Transport: transport}
}

func userAgent(cfg *config.Resolved) string {
	if cfg.UserAgent != "" {
		return cfg.UserAgent
	}

	return "arkvault/" + version
}
