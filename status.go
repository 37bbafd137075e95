package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/arkvault/internal/cryptogate"
	"github.com/tonimelisma/arkvault/internal/vaultapi"
)

// Login states for status reporting.
const (
	loginStateLoggedIn  = "logged in"
	loginStateLoggedOut = "logged out"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show login, server and crypto engine status",
		Long: `Show the stored login, the server's readiness report, the crypto engine
health and the last storage usage seen. Reads tokens and the catalog; makes one
unauthenticated call to the server.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// statusOutput is the JSON schema for status --json.
type statusOutput struct {
	Server   string         `json:"server"`
	Identity string         `json:"identity,omitempty"`
	Login    string         `json:"login"`
	Health   *statusHealth  `json:"server_health,omitempty"`
	Engine   statusEngine   `json:"engine"`
	Storage  *statusStorage `json:"storage,omitempty"`
	Files    int            `json:"cataloged_files"`
}

type statusHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type statusEngine struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
}

type statusStorage struct {
	TotalBytes   int64     `json:"total_bytes"`
	LimitBytes   int64     `json:"limit_bytes"`
	UsagePercent float64   `json:"usage_percent"`
	RefreshedAt  time.Time `json:"refreshed_at"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	vs, err := openVault(ctx)
	if err != nil {
		return err
	}
	defer vs.Close()

	out := statusOutput{
		Server:   vs.cfg.ServerURL,
		Identity: vs.tokens.Identity(),
		Login:    loginStateLoggedOut,
		Engine:   engineStatus(vs.gate.Health(ctx)),
	}

	if vs.tokens.HasRefreshToken() {
		out.Login = loginStateLoggedIn
	}

	out.Health = serverStatus(vs.client.Health(ctx))

	usage, err := vs.catalog.Storage(ctx)
	if err != nil {
		vs.logger.Warn("reading storage usage failed", slog.String("error", err.Error()))
	} else if usage != nil {
		out.Storage = &statusStorage{
			TotalBytes:   usage.TotalBytes,
			LimitBytes:   usage.LimitBytes,
			UsagePercent: usage.UsagePercent,
			RefreshedAt:  usage.RefreshedAt,
		}
	}

	entries, err := vs.catalog.List(ctx)
	if err != nil {
		return err
	}

	out.Files = len(entries)

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	printStatusText(cmd.OutOrStdout(), &out)

	return nil
}

func engineStatus(h cryptogate.HealthResult) statusEngine {
	return statusEngine{Ready: h.Ready, Message: h.Message}
}

// serverStatus folds a health call into the report. An unhealthy server
// answers with an error status, which is reported rather than returned.
func serverStatus(h *vaultapi.ServerHealth, err error) *statusHealth {
	if err != nil {
		return &statusHealth{Status: "unreachable", Error: err.Error()}
	}

	return &statusHealth{Status: h.Status, Message: h.Message}
}

func printStatusText(w io.Writer, s *statusOutput) {
	fmt.Fprintf(w, "Server:   %s\n", s.Server)

	if s.Identity != "" {
		fmt.Fprintf(w, "Account:  %s (%s)\n", s.Identity, s.Login)
	} else {
		fmt.Fprintf(w, "Account:  %s\n", s.Login)
	}

	if s.Health != nil {
		line := s.Health.Status
		if s.Health.Error != "" {
			line += ": " + s.Health.Error
		} else if s.Health.Message != "" {
			line += ": " + s.Health.Message
		}

		fmt.Fprintf(w, "Health:   %s\n", line)
	}

	engine := "ready"
	if !s.Engine.Ready {
		engine = "unavailable: " + s.Engine.Message
	}

	fmt.Fprintf(w, "Engine:   %s\n", engine)

	if s.Storage != nil {
		fmt.Fprintf(w, "Storage:  %s of %s (%.1f%%, as of %s)\n",
			formatSize(s.Storage.TotalBytes), formatSize(s.Storage.LimitBytes),
			s.Storage.UsagePercent, formatTime(s.Storage.RefreshedAt))
	}

	fmt.Fprintf(w, "Files:    %d cataloged\n", s.Files)
}
