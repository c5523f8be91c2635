package main

import (
	"fmt"
	"io"
	"os"

	jwskit "github.com/PaulFidika/tpayhook/jws"
	"github.com/spf13/cobra"
)

func verifyCmd() *cobra.Command {
	var signature, bodyFile string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a notification signature against a body",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			body, err := readBody(bodyFile)
			if err != nil {
				return err
			}
			v, err := newVerifier(cfg, log)
			if err != nil {
				return err
			}
			if err := v.Check(cmd.Context(), signature, body); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "invalid: %s\n", jwskit.Code(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&signature, "signature", "", "compact JWS from the X-JWS-Signature header")
	cmd.Flags().StringVar(&bodyFile, "body", "-", "file holding the raw request body, - for stdin")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

func readBody(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
