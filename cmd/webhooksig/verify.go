package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oleg-kozlyuk-grafana/go-webhooksig/signature"
)

type verifyOptions struct {
	secret      string
	header      string
	payloadFile string
	tolerance   time.Duration
	now         func() time.Time
}

func newVerifyCmd() *cobra.Command {
	opts := verifyOptions{now: time.Now}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a signature header against a payload",
		Long: `Verify reads the payload from --payload-file (or stdin) and checks it
against the given signature header.

Prints "valid" and exits 0 on a match, prints "invalid" and exits 1 on a
mismatch. A header that cannot be parsed is an error (exit 2).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.secret, "secret", "", "Endpoint signing secret")
	cmd.Flags().StringVar(&opts.header, "header", "", "Signature header value, e.g. t=...,v1=...")
	cmd.Flags().StringVar(&opts.payloadFile, "payload-file", "", "File holding the raw payload (default: stdin)")
	cmd.Flags().DurationVar(&opts.tolerance, "tolerance", 0, "Reject timestamps further than this from now (0 disables)")
	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("header")

	return cmd
}

func runVerify(cmd *cobra.Command, opts verifyOptions) error {
	payload, err := readPayload(cmd, opts.payloadFile)
	if err != nil {
		return err
	}

	ok, err := signature.Verify([]byte(opts.secret), opts.header, payload)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !ok {
		fmt.Fprintln(out, "invalid")
		return errInvalid
	}

	if opts.tolerance > 0 {
		parsed, err := signature.ParseHeader(opts.header)
		if err != nil {
			return err
		}
		signedAt, err := parsed.Timestamp()
		if err != nil {
			return err
		}
		if skew := opts.now().Sub(signedAt).Abs(); skew > opts.tolerance {
			fmt.Fprintf(out, "invalid: timestamp is %s away from now (tolerance %s)\n", skew.Round(time.Second), opts.tolerance)
			return errInvalid
		}
	}

	fmt.Fprintln(out, "valid")
	return nil
}

func readPayload(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" {
		payload, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		return payload, nil
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("payload file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read payload file: %w", err)
	}
	return payload, nil
}
