package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"futuresbot/pkg/crypto"
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Hash an operator API token for API_TOKEN_HASH",
	Long: `Hash-token prints the bcrypt hash of the given token. Without an argument
a random token is generated and printed together with its hash.

Example:
  export API_TOKEN_HASH=$(futuresbot hash-token my-secret --quiet)`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHashToken,
}

var (
	htCost  int
	htQuiet bool
)

func init() {
	rootCmd.AddCommand(hashTokenCmd)
	hashTokenCmd.Flags().IntVar(&htCost, "cost", crypto.DefaultCost, "bcrypt cost")
	hashTokenCmd.Flags().BoolVarP(&htQuiet, "quiet", "q", false, "print only the hash")
}

func runHashToken(cmd *cobra.Command, args []string) error {
	var token string
	generated := len(args) == 0
	if generated {
		t, err := crypto.GenerateToken()
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		token = t
	} else {
		token = args[0]
	}

	hash, err := crypto.HashTokenWithCost(token, htCost)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if htQuiet {
		fmt.Fprintln(out, hash)
		return nil
	}
	if generated {
		fmt.Fprintf(out, "token: %s\n", token)
	}
	fmt.Fprintf(out, "hash:  %s\n", hash)
	return nil
}
