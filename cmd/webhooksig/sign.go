package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oleg-kozlyuk-grafana/go-webhooksig/signature"
)

func newSignCmd() *cobra.Command {
	var (
		secret      string
		timestamp   int64
		payloadFile string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Produce a signature header for a payload",
		Long: `Sign reads the payload from --payload-file (or stdin) and prints a
t=...,v1=... header for it, as the provider would send it. Useful for
exercising a receiver with curl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, payloadFile)
			if err != nil {
				return err
			}

			ts := time.Now()
			if cmd.Flags().Changed("timestamp") {
				ts = time.Unix(timestamp, 0)
			}

			fmt.Fprintln(cmd.OutOrStdout(), signature.Sign([]byte(secret), payload, ts))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Endpoint signing secret")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Unix timestamp to sign with (default: now)")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "File holding the raw payload (default: stdin)")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}
