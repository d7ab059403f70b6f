package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vehicle-lookup-api/config"
	"vehicle-lookup-api/internal/payment"
	"vehicle-lookup-api/internal/vault"
)

func paymentRequestCmd(v *viper.Viper) *cobra.Command {
	var email, success, cancel string

	cmd := &cobra.Command{
		Use:   "payment-request",
		Short: "Print a signed payment creation request (headers and body)",
		Long: `Builds the request the checkout provider expects for the vehicle report
product and signs it with PROVIDER_SECRET. Nothing is sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			builder, err := payment.NewBuilder(config.ProviderConfig{
				Account: v.GetString("PROVIDER_ACCOUNT"),
				Secret:  v.GetString("PROVIDER_SECRET"),
			})
			if err != nil {
				return err
			}

			order := payment.DefaultOrder()
			if email != "" {
				order.Email = email
			}
			if success != "" {
				order.RedirectURLs.Success = success
			}
			if cancel != "" {
				order.RedirectURLs.Cancel = cancel
			}

			req, err := builder.Build(order)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"headers": req.Headers,
				"body":    req.Body,
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "customer email")
	cmd.Flags().StringVar(&success, "success-url", "", "redirect URL after a successful payment")
	cmd.Flags().StringVar(&cancel, "cancel-url", "", "redirect URL after a cancelled payment")
	return cmd
}

func secretsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage registry template secrets in Vault",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Copy SECRET1..SECRET5 from the environment into Vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := vault.NewClient(vaultConfig(v))
			if err != nil {
				return err
			}

			var secrets [config.SecretCount]string
			for i := range secrets {
				key := fmt.Sprintf("SECRET%d", i+1)
				if secrets[i] = v.GetString(key); secrets[i] == "" {
					return fmt.Errorf("%s is not set", key)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := client.StoreRegistrySecrets(ctx, secrets); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Template secrets stored")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Report which template secrets Vault holds, without printing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := vault.NewClient(vaultConfig(v))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			secrets, err := client.RegistrySecrets(ctx)
			if err != nil {
				return err
			}
			for i, s := range secrets {
				state := "set"
				if s == "" {
					state = "missing"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "secret%d: %s\n", i+1, state)
			}
			return nil
		},
	})

	return cmd
}

func vaultConfig(v *viper.Viper) config.VaultConfig {
	v.SetDefault("VAULT_ADDR", "http://localhost:8200")
	v.SetDefault("VAULT_MOUNT_PATH", "secret")
	v.SetDefault("VAULT_SECRET_PATH", "vehicle-lookup/registry")
	return config.VaultConfig{
		Enabled:    true,
		Address:    v.GetString("VAULT_ADDR"),
		Token:      v.GetString("VAULT_TOKEN"),
		MountPath:  v.GetString("VAULT_MOUNT_PATH"),
		SecretPath: v.GetString("VAULT_SECRET_PATH"),
	}
}
