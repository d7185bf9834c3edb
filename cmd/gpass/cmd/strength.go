package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgutierrezgil/guardiapass/internal/strength"
)

var errPolicyViolation = errors.New("password does not meet the policy")

func newStrengthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strength [password]",
		Short: "Rate a password",
		Long: `Score a password and show what raised or lowered the score.

The password is read from the argument, from a pipe, or from a prompt
with echo disabled. Prefer the last two: arguments end up in shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runStrength,
	}
}

func runStrength(cmd *cobra.Command, args []string) error {
	password, err := readInput(cmd, args, "Password: ")
	if err != nil {
		return err
	}

	result := strength.Measure(password)
	out := cmd.OutOrStdout()
	if jsonOutput {
		return PrintJSON(out, result)
	}

	PrintKeyValue(out, "Strength", fmt.Sprintf("%s (%d)", LabelText(result.Label), result.Score))
	for _, note := range result.Feedback {
		fmt.Fprintf(out, "  %s\n", note)
	}
	return nil
}

type validateOutput struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [password]",
		Short: "Check a password against the master password policy",
		Long: `Check a password against the policy applied to master passwords:
12 to 60 characters with upper and lower case letters, a digit and a
special character. Exits non-zero when the password fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	password, err := readInput(cmd, args, "Password: ")
	if err != nil {
		return err
	}

	valid, problems := strength.Validate(password)
	out := cmd.OutOrStdout()
	if jsonOutput {
		if problems == nil {
			problems = []string{}
		}
		if err := PrintJSON(out, validateOutput{Valid: valid, Errors: problems}); err != nil {
			return err
		}
	} else if valid {
		fmt.Fprintf(out, "%s Password meets the policy\n", SuccessIcon())
	} else {
		for _, p := range problems {
			fmt.Fprintf(out, "%s %s\n", ErrorIcon(), p)
		}
	}

	if !valid {
		return errPolicyViolation
	}
	return nil
}
