package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jgutierrezgil/guardiapass/internal/crypto"
)

type keyOutput struct {
	Key        string `json:"key"`
	Salt       string `json:"salt,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
}

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Derive, generate and check vault keys",
	}
	cmd.AddCommand(newKeyDeriveCmd(), newKeyGenerateCmd(), newKeyVerifyCmd())
	return cmd
}

func newKeyDeriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a vault key from a master password",
		Long: `Derive a vault key with PBKDF2-HMAC-SHA256. Without --salt a fresh
random salt is generated and printed; pass it back with --salt to derive
the same key again.

The master password is read from GPASS_MASTER_PASSWORD or prompted for.`,
		Args: cobra.NoArgs,
		RunE: runKeyDerive,
	}
	cmd.Flags().String("salt", "", "base64url salt from a previous derivation")
	return cmd
}

func runKeyDerive(cmd *cobra.Command, _ []string) error {
	var salt []byte
	if s, _ := cmd.Flags().GetString("salt"); s != "" {
		var err error
		salt, err = crypto.DecodeSalt(s)
		if err != nil {
			return err
		}
	}

	password := viper.GetString("master_password")
	if password == "" {
		if !stdinIsTerminal(cmd) {
			return fmt.Errorf("%w: set GPASS_MASTER_PASSWORD", errNoTerminal)
		}
		var err error
		if salt == nil {
			password, err = promptSecretConfirm("Master password: ")
		} else {
			password, err = promptSecret("Master password: ")
		}
		if err != nil {
			return fmt.Errorf("failed to read master password: %w", err)
		}
	}

	encoded, usedSalt, err := crypto.DeriveEncodedKey(password, salt)
	if err != nil {
		return err
	}

	res := keyOutput{
		Key:        encoded,
		Salt:       crypto.EncodeSalt(usedSalt),
		Iterations: crypto.PBKDF2Iterations,
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return PrintJSON(out, res)
	}
	PrintKeyValue(out, "Key", res.Key)
	PrintKeyValue(out, "Salt", res.Salt)
	if salt == nil {
		Warning("Keep the salt: the key cannot be derived again without it")
	}
	return nil
}

func newKeyGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a random vault key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			defer crypto.ZeroBytes(key)

			res := keyOutput{Key: crypto.EncodeKey(key)}
			if jsonOutput {
				return PrintJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Key)
			return nil
		},
	}
}

func newKeyVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that GPASS_KEY holds a well-formed vault key",
		Long: `Check that the key in GPASS_KEY (or entered at the prompt) decodes to
a 32 byte vault key. This does not tell whether it opens any ciphertext.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := resolveKey(cmd, "key", "Vault key: ")
			if err != nil {
				return err
			}
			defer crypto.ZeroBytes(key)

			if !crypto.VerifyKey(key) {
				return crypto.ErrInvalidKeySize
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Key is valid\n", SuccessIcon())
			return nil
		},
	}
}
