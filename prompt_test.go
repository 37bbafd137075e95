package main

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPromptEnv = "ARKVAULT_TEST_PROMPT"

func withStdin(t *testing.T, input string) {
	t.Helper()

	prevIn, prevOut, prevTerm := promptIn, promptOut, stdinIsTerminal
	promptIn = bufio.NewReader(strings.NewReader(input))
	promptOut = io.Discard
	stdinIsTerminal = func() bool { return false }

	t.Cleanup(func() {
		promptIn, promptOut, stdinIsTerminal = prevIn, prevOut, prevTerm
	})
}

func TestReadPassword_EnvWins(t *testing.T) {
	withStdin(t, "from-stdin\n")
	t.Setenv(testPromptEnv, "from-env")

	pw, err := readPassword("pw: ", testPromptEnv)
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)
}

func TestReadPassword_Line(t *testing.T) {
	withStdin(t, "hunter2 with spaces\r\nnext\n")
	t.Setenv(testPromptEnv, "")

	pw, err := readPassword("pw: ", testPromptEnv)
	require.NoError(t, err)
	assert.Equal(t, "hunter2 with spaces", pw)

	pw, err = readPassword("pw: ", testPromptEnv)
	require.NoError(t, err)
	assert.Equal(t, "next", pw)
}

func TestReadPassword_LastLineWithoutNewline(t *testing.T) {
	withStdin(t, "tail")

	pw, err := readPassword("pw: ", "")
	require.NoError(t, err)
	assert.Equal(t, "tail", pw)
}

func TestReadPassword_NoInput(t *testing.T) {
	withStdin(t, "")

	_, err := readPassword("pw: ", "")
	require.ErrorIs(t, err, errNoInput)
}

func TestReadNewPassword(t *testing.T) {
	withStdin(t, "first\nsecond\n")
	t.Setenv(testPromptEnv, "")

	pw, confirm, err := readNewPassword("new: ", testPromptEnv)
	require.NoError(t, err)
	assert.Equal(t, "first", pw)
	assert.Equal(t, "second", confirm)

	t.Setenv(testPromptEnv, "env-pw")

	pw, confirm, err = readNewPassword("new: ", testPromptEnv)
	require.NoError(t, err)
	assert.Equal(t, "env-pw", pw)
	assert.Equal(t, "env-pw", confirm)
}
