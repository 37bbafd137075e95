package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/arkvault/internal/config"
	"github.com/tonimelisma/arkvault/internal/cryptogate"
	"github.com/tonimelisma/arkvault/internal/policy"
)

func newStrengthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strength",
		Short: "Check a password against the complexity policy",
		Long: `Read a password and report which policy requirements it meets, its score and
its strength grade. Runs locally; nothing is sent to the server.`,
		Args: cobra.NoArgs,
		RunE: runStrength,
	}
}

// strengthOutput is the JSON schema for strength --json.
type strengthOutput struct {
	Valid    bool     `json:"valid"`
	Score    int      `json:"score"`
	Strength string   `json:"strength"`
	Met      int      `json:"met"`
	Missing  []string `json:"missing"`
	Message  string   `json:"message"`
}

func runStrength(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	password, err := readPassword("Password to check: ", config.EnvPassword)
	if err != nil {
		return err
	}

	gate := cryptogate.New(cryptogate.DefaultLoader(engineOptions...), buildLogger(os.Stderr))

	if err := gate.Ready(ctx); err != nil {
		return err
	}

	c := policy.New(gate).CheckComplexity(ctx, password)

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(strengthOutput{
			Valid:    c.Valid,
			Score:    c.Score,
			Strength: c.Strength.String(),
			Met:      c.Met(),
			Missing:  c.Missing,
			Message:  c.Message,
		})
	}

	printStrength(cmd.OutOrStdout(), c)

	return nil
}

func printStrength(w io.Writer, c policy.Complexity) {
	fmt.Fprintf(w, "Strength: %s (score %d, %d of %d requirements)\n",
		c.Strength, c.Score, c.Met(), len(c.Requirements))

	if len(c.Missing) > 0 {
		fmt.Fprintf(w, "Missing:  %s\n", strings.Join(c.Missing, "; "))
	}

	if c.Valid {
		fmt.Fprintln(w, "Acceptable for accounts and custom file passwords.")
	} else {
		fmt.Fprintln(w, "Not acceptable.")
	}
}
