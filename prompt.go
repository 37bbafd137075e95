package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var errNoInput = errors.New("no password entered")

// Prompt plumbing. Tests swap these for pipes.
var promptIn = bufio.NewReader(os.Stdin)

var promptOut io.Writer = os.Stderr

var stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// readPassword returns the value of envVar when it is set. Otherwise it
// prompts: without echo on a terminal, or by reading one line from stdin.
func readPassword(prompt, envVar string) (string, error) {
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		return v, nil
	}

	fmt.Fprint(promptOut, prompt)

	if stdinIsTerminal() {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(promptOut)

		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return string(b), nil
	}

	line, err := promptIn.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" && errors.Is(err, io.EOF) {
		return "", errNoInput
	}

	return line, nil
}

// readNewPassword prompts twice. The confirmation is only read from the
// terminal or stdin; an env-supplied password confirms itself.
func readNewPassword(prompt, envVar string) (string, string, error) {
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		return v, v, nil
	}

	password, err := readPassword(prompt, envVar)
	if err != nil {
		return "", "", err
	}

	confirm, err := readPassword("Confirm: ", envVar)
	if err != nil {
		return "", "", err
	}

	return password, confirm, nil
}
