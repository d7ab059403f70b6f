package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vehicle-lookup-api/internal/database"
)

func tokenCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage promo tokens",
	}
	cmd.AddCommand(tokenCreateCmd(v), tokenShowCmd(v))
	return cmd
}

func tokenCreateCmd(v *viper.Viper) *cobra.Command {
	var (
		value   string
		legend  string
		credits int
		valid   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a promo token",
		Example: `  lookup-admin token create --credits 10 --valid 720h --legend "dealer trial"
  lookup-admin token create --token SPRING24 --credits 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if credits < 0 {
				return fmt.Errorf("--credits must not be negative")
			}
			if valid <= 0 {
				return fmt.Errorf("--valid must be positive")
			}
			if value == "" {
				value = uuid.NewString()
			}

			tok := &database.Token{
				Token:   value,
				Legend:  legend,
				Credits: credits,
				Expires: time.Now().UTC().Add(valid),
			}
			return withStore(v, func(ctx context.Context, store database.Store) error {
				if err := store.CreateToken(ctx, tok); err != nil {
					return fmt.Errorf("create token: %w", err)
				}
				return printJSON(cmd, tok)
			})
		},
	}

	cmd.Flags().StringVar(&value, "token", "", "token value (default: random UUID)")
	cmd.Flags().StringVar(&legend, "legend", "", "free-text label")
	cmd.Flags().IntVar(&credits, "credits", 1, "number of lookups the token allows")
	cmd.Flags().DurationVar(&valid, "valid", 30*24*time.Hour, "validity period from now")
	return cmd
}

func tokenShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show [token]",
		Short: "Print a promo token and its remaining credits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(v, func(ctx context.Context, store database.Store) error {
				tok, err := store.FindToken(ctx, args[0])
				if errors.Is(err, database.ErrNotFound) {
					return fmt.Errorf("token %q not found", args[0])
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{
					"token":  tok,
					"usable": tok.Usable(time.Now()),
				})
			})
		},
	}
}

func paymentCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Manage payment records",
	}
	cmd.AddCommand(paymentCreateCmd(v))
	return cmd
}

func paymentCreateCmd(v *viper.Viper) *cobra.Command {
	p := &database.Payment{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Insert a payment record, e.g. to test the pay-token path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.RegNumber == "" && p.VIN == "" {
				return fmt.Errorf("one of --reg-number or --vin is required")
			}
			if p.TransactionID == "" {
				p.TransactionID = uuid.NewString()
			}
			return withStore(v, func(ctx context.Context, store database.Store) error {
				if err := store.CreatePayment(ctx, p); err != nil {
					return fmt.Errorf("create payment: %w", err)
				}
				return printJSON(cmd, p)
			})
		},
	}

	cmd.Flags().StringVar(&p.TransactionID, "transaction-id", "", "provider transaction id (default: random UUID)")
	cmd.Flags().StringVar(&p.RegNumber, "reg-number", "", "registration number")
	cmd.Flags().StringVar(&p.VIN, "vin", "", "vehicle identification number")
	cmd.Flags().StringVar(&p.RegType, "reg-type", "1", "registration type")
	cmd.Flags().StringVar(&p.Reference, "reference", "", "order reference")
	cmd.Flags().StringVar(&p.Href, "href", "", "provider payment URL")
	return cmd
}
