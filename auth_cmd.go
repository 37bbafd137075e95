package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/arkvault/internal/config"
	"github.com/tonimelisma/arkvault/internal/vaultapi"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <email>",
		Short: "Create a vault account and log in",
		Long: `Create a vault account. The password must satisfy the complexity policy
(see 'arkvault strength'); it is asked for twice. On success the new login is
saved and the account key is unlocked for this process.

Passing --server also records the server in the config file.`,
		Args: cobra.ExactArgs(1),
		RunE: runRegister,
	}
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email>",
		Short: "Log in to the vault server",
		Long: `Log in with the account password. The token pair is saved under the data
directory; the password and the account key never are.

Passing --server also records the server in the config file.`,
		Args: cobra.ExactArgs(1),
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke this login and remove saved tokens",
		RunE:  runLogout,
	}
}

func newRevokeAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-all",
		Short: "End every session of the account on every device",
		RunE:  runRevokeAll,
	}
}

// openVault builds the component graph for one command.
func openVault(ctx context.Context) (*vaultSession, error) {
	return newVaultSession(ctx, resolvedCfg, buildLogger(os.Stderr))
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	vs, err := openVault(ctx)
	if err != nil {
		return err
	}
	defer vs.Close()

	password, confirm, err := readNewPassword("Choose an account password: ", config.EnvPassword)
	if err != nil {
		return err
	}

	res, err := vs.auth.Register(ctx, args[0], password, confirm)
	if err != nil {
		return err
	}

	rememberServer(cmd, vs.logger)
	statusf(flagQuiet, "Registered and logged in as %s.\n", res.Session.Identity)

	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	vs, err := openVault(ctx)
	if err != nil {
		return err
	}
	defer vs.Close()

	password, err := readPassword("Password: ", config.EnvPassword)
	if err != nil {
		return err
	}

	res, err := vs.auth.Login(ctx, args[0], password)
	if err != nil {
		return err
	}

	rememberServer(cmd, vs.logger)

	if flagJSON {
		return printLoginJSON(cmd.OutOrStdout(), res.User)
	}

	statusf(flagQuiet, "Logged in as %s.\n", res.User.Email)

	if !res.User.IsApproved {
		statusf(flagQuiet, "This account is awaiting approval; uploads may be refused.\n")
	}

	return nil
}

func printLoginJSON(w io.Writer, u vaultapi.User) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(u)
}

// rememberServer saves an explicit --server to the config file so later
// commands need not repeat it. A write failure does not undo the login.
func rememberServer(cmd *cobra.Command, logger *slog.Logger) {
	if !cmd.Flags().Changed("server") {
		return
	}

	if err := config.SetServerURL(resolvedCfg.ConfigPath, resolvedCfg.ServerURL); err != nil {
		logger.Warn("could not save server url", slog.String("error", err.Error()))
		statusf(flagQuiet, "Warning: could not save server to %s: %v\n", resolvedCfg.ConfigPath, err)
	}
}

func runLogout(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	vs, err := openVault(ctx)
	if err != nil {
		return err
	}
	defer vs.Close()

	identity := vs.tokens.Identity()

	if err := vs.tokens.Logout(ctx); err != nil {
		return err
	}

	if identity == "" {
		statusf(flagQuiet, "Not logged in.\n")
		return nil
	}

	statusf(flagQuiet, "Logged out %s.\n", identity)

	return nil
}

func runRevokeAll(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	vs, err := openVault(ctx)
	if err != nil {
		return err
	}
	defer vs.Close()

	if !vs.tokens.HasRefreshToken() {
		return vaulterr.Newf(vaulterr.ErrAuthenticationRequired, "revoke-all", "not logged in")
	}

	identity := vs.tokens.Identity()

	err = vs.tokens.RevokeAll(ctx)
	if errors.Is(err, vaultapi.ErrUnauthorized) {
		// Stale access token: rotate once and retry.
		if err = vs.tokens.Refresh(ctx); err == nil {
			err = vs.tokens.RevokeAll(ctx)
		}
	}

	if err != nil {
		return err
	}

	statusf(flagQuiet, "Revoked every session of %s.\n", identity)

	return nil
}
