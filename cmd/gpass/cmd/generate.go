package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jgutierrezgil/guardiapass/internal/passgen"
	"github.com/jgutierrezgil/guardiapass/internal/strength"
)

// maxGenerateCount bounds --count.
const maxGenerateCount = 100

type generatedPassword struct {
	Password string `json:"password"`
	strength.Result
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate random passwords",
		Long: `Generate passwords from a cryptographic random source. Every enabled
character class appears at least once.

Defaults can be set under "generate" in ~/.gpass/config.yaml or through
GPASS_GENERATE_* variables.

Examples:
  gpass generate
  gpass generate -l 32 --extended
  gpass generate -n 5 --special=false`,
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}

	defaults := passgen.DefaultOptions()
	cmd.Flags().IntP("length", "l", defaults.Length, fmt.Sprintf("password length (%d-%d)", passgen.MinLength, passgen.MaxLength))
	cmd.Flags().Bool("lower", defaults.Lower, "include lowercase letters")
	cmd.Flags().Bool("upper", defaults.Upper, "include uppercase letters")
	cmd.Flags().Bool("digits", defaults.Digits, "include digits")
	cmd.Flags().Bool("special", defaults.Special, "include special characters")
	cmd.Flags().Bool("extended", defaults.Extended, "include extended (accented) characters")
	cmd.Flags().IntP("count", "n", 1, "number of passwords to generate")

	viper.BindPFlag("generate.length", cmd.Flags().Lookup("length"))
	viper.BindPFlag("generate.use_lower", cmd.Flags().Lookup("lower"))
	viper.BindPFlag("generate.use_upper", cmd.Flags().Lookup("upper"))
	viper.BindPFlag("generate.use_digits", cmd.Flags().Lookup("digits"))
	viper.BindPFlag("generate.use_special", cmd.Flags().Lookup("special"))
	viper.BindPFlag("generate.use_extended", cmd.Flags().Lookup("extended"))

	return cmd
}

func generateOptions() passgen.Options {
	return passgen.Options{
		Length:   viper.GetInt("generate.length"),
		Lower:    viper.GetBool("generate.use_lower"),
		Upper:    viper.GetBool("generate.use_upper"),
		Digits:   viper.GetBool("generate.use_digits"),
		Special:  viper.GetBool("generate.use_special"),
		Extended: viper.GetBool("generate.use_extended"),
	}
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	count, _ := cmd.Flags().GetInt("count")
	if count < 1 || count > maxGenerateCount {
		return fmt.Errorf("count must be between 1 and %d", maxGenerateCount)
	}

	gen := passgen.New(generateOptions())
	if err := gen.Options().Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	results := make([]generatedPassword, 0, count)
	for range count {
		password, err := gen.Generate()
		if err != nil {
			return fmt.Errorf("failed to generate password: %w", err)
		}
		results = append(results, generatedPassword{Password: password, Result: strength.Measure(password)})
	}

	if jsonOutput {
		return PrintJSON(out, results)
	}

	for _, r := range results {
		if isVerbose() {
			fmt.Fprintf(out, "%s  %s\n", r.Password, Dim("%s (%d)", r.Label, r.Score))
			continue
		}
		fmt.Fprintln(out, r.Password)
	}
	return nil
}
