package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/jgutierrezgil/guardiapass/internal/crypto"
)

// maxInputSize caps secrets read from a pipe.
const maxInputSize = 64 << 10

var errNoTerminal = errors.New("no terminal to prompt on")

// stdinIsTerminal reports whether cmd reads from an interactive terminal.
func stdinIsTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// promptSecret reads a secret from the terminal with echo disabled.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// promptSecretConfirm prompts twice and ensures both entries match.
func promptSecretConfirm(prompt string) (string, error) {
	secret, err := promptSecret(prompt)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", fmt.Errorf("input cannot be empty")
	}
	confirm, err := promptSecret("Confirm: ")
	if err != nil {
		return "", err
	}
	if secret != confirm {
		return "", fmt.Errorf("entries do not match")
	}
	return secret, nil
}

// readInput returns the first positional argument, or else a line read
// from a pipe, or else an interactive prompt.
func readInput(cmd *cobra.Command, args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if stdinIsTerminal(cmd) {
		return promptSecret(prompt)
	}
	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxInputSize))
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// resolveKey reads an encoded vault key from the environment (GPASS_KEY for
// name "key") and falls back to a prompt.
func resolveKey(cmd *cobra.Command, name, prompt string) ([]byte, error) {
	encoded := viper.GetString(name)
	if encoded == "" {
		if !stdinIsTerminal(cmd) {
			return nil, fmt.Errorf("%w: set GPASS_%s", errNoTerminal, strings.ToUpper(name))
		}
		var err error
		encoded, err = promptSecret(prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
	}
	key, err := crypto.DecodeKey(strings.TrimSpace(encoded))
	if err != nil {
		return nil, err
	}
	return key, nil
}
