package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// errInvalid signals a well-formed but non-matching signature. It maps to
// exit status 1; every other error exits with 2.
var errInvalid = errors.New("signature invalid")

func main() {
	os.Exit(execute(newRootCmd(), os.Stderr))
}

func execute(cmd *cobra.Command, stderr io.Writer) int {
	err := cmd.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInvalid):
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "webhooksig",
		Short: "webhooksig - Stripe-style webhook signature verification",
		Long: `webhooksig verifies HMAC-SHA256 webhook signatures of the form

  t=<unix timestamp>,v1=<hex hmac-sha256 of "<t>.<body>">

It can check or produce a single signature from the command line, or run a
receiver that verifies deliveries over HTTP and archives accepted events.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			// variables already set in the environment win over the file
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Load WEBHOOKSIG_* variables from a .env file")

	root.AddCommand(
		newVersionCmd(),
		newVerifyCmd(),
		newSignCmd(),
		newServeCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "webhooksig %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
