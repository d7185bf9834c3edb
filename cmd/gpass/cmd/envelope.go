package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jgutierrezgil/guardiapass/internal/crypto"
)

func addModeFlag(cmd *cobra.Command) {
	cmd.Flags().String("mode", string(crypto.ModeAuthenticated), "envelope mode: aead or cbc")
}

func envelopeFor(cmd *cobra.Command, key []byte) (crypto.Envelope, error) {
	s, _ := cmd.Flags().GetString("mode")
	mode, err := crypto.ParseMode(s)
	if err != nil {
		return nil, err
	}
	if mode == crypto.ModeLegacyBlock {
		Warning("The cbc envelope is unauthenticated; tampering is not detected")
	}
	return crypto.NewEnvelope(mode, key)
}

func newEncryptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encrypt [plaintext]",
		Short: "Seal a secret with a vault key",
		Long: `Seal a secret with the key in GPASS_KEY. The plaintext is read from the
argument, from a pipe, or from a prompt.

Examples:
  GPASS_KEY=$(gpass key generate) gpass encrypt
  printf '%s' "$SECRET" | gpass encrypt --mode cbc`,
		Args: cobra.MaximumNArgs(1),
		RunE: runEncrypt,
	}
	addModeFlag(cmd)
	return cmd
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	key, err := resolveKey(cmd, "key", "Vault key: ")
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(key)

	env, err := envelopeFor(cmd, key)
	if err != nil {
		return err
	}

	plaintext, err := readInput(cmd, args, "Plaintext: ")
	if err != nil {
		return err
	}

	ciphertext, err := env.Encrypt(plaintext)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ciphertext)
	return nil
}

func newDecryptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrypt [ciphertext]",
		Short: "Open a sealed secret with a vault key",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDecrypt,
	}
	addModeFlag(cmd)
	return cmd
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	key, err := resolveKey(cmd, "key", "Vault key: ")
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(key)

	env, err := envelopeFor(cmd, key)
	if err != nil {
		return err
	}

	ciphertext, err := readInput(cmd, args, "Ciphertext: ")
	if err != nil {
		return err
	}

	plaintext, err := env.Decrypt(ciphertext)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), plaintext)
	return nil
}

func newReencryptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reencrypt [ciphertext...]",
		Short: "Move sealed secrets from one vault key to another",
		Long: `Open ciphertexts with GPASS_KEY and seal them again with GPASS_NEW_KEY.
Ciphertexts come from the arguments or, one per line, from a pipe. Every
input is opened before anything is written, so a bad line produces no
output. Both keys use --mode.

Examples:
  gpass reencrypt "$OLD_TOKEN"
  gpass reencrypt < tokens.txt > moved.txt`,
		Args: cobra.ArbitraryArgs,
		RunE: runReencrypt,
	}
	addModeFlag(cmd)
	return cmd
}

func runReencrypt(cmd *cobra.Command, args []string) error {
	oldKey, err := resolveKey(cmd, "key", "Current key: ")
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(oldKey)

	newKey, err := resolveKey(cmd, "new_key", "New key: ")
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(newKey)

	env, err := envelopeFor(cmd, oldKey)
	if err != nil {
		return err
	}

	ciphertexts, err := readCiphertexts(cmd, args)
	if err != nil {
		return err
	}

	plaintexts := make([]string, len(ciphertexts))
	for i, ct := range ciphertexts {
		if plaintexts[i], err = env.Decrypt(ct); err != nil {
			return fmt.Errorf("ciphertext %d: %w", i+1, err)
		}
	}

	if err := env.RotateKey(newKey); err != nil {
		return err
	}

	sealed := make([]string, len(plaintexts))
	for i, pt := range plaintexts {
		if sealed[i], err = env.Encrypt(pt); err != nil {
			return fmt.Errorf("ciphertext %d: %w", i+1, err)
		}
	}

	out := cmd.OutOrStdout()
	for _, ct := range sealed {
		fmt.Fprintln(out, ct)
	}
	if isVerbose() {
		Success("Re-encrypted %d secret(s) under the new key", len(sealed))
	}
	return nil
}

func readCiphertexts(cmd *cobra.Command, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	data, err := readInput(cmd, nil, "Ciphertext: ")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, line := range strings.Split(data, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no ciphertext given")
	}
	return out, nil
}
