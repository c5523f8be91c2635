package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PaulFidika/tpayhook/tpayapi"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Obtain an API token and print its introspection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.HasAPICredentials() {
				return errors.New("TPAY_API_DOMAIN, TPAY_CLIENT_ID and TPAY_SECRET are required")
			}
			client, err := tpayapi.NewClient(cmd.Context(), tpayapi.Config{
				Domain:       cfg.APIDomain,
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.Secret,
			})
			if err != nil {
				return err
			}
			tok, err := client.Token()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "token valid until %s\n", tok.Expiry.Format(time.RFC3339))
			info, err := client.TokenInfo(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}
