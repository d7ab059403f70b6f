// Command lookup-admin manages the out-of-band state of the lookup service:
// schema migrations, promo tokens, payment records, Vault secrets and signed
// payment requests.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vehicle-lookup-api/config"
	"vehicle-lookup-api/internal/database"
	"vehicle-lookup-api/internal/logging"
)

func main() {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	if err := newRootCmd(v).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	v.SetDefault("DATABASE_NAME", "vehicles")
	v.SetDefault("LOG_LEVEL", "WARN")

	rootCmd := &cobra.Command{
		Use:           "lookup-admin",
		Short:         "Administration tool for the vehicle lookup service",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("database-url", "", "store URI (default $DATABASE_URL or $MONGODB_URI)")
	rootCmd.PersistentFlags().String("database-name", "", "Mongo database name (default $DATABASE_NAME)")
	_ = v.BindPFlag("DATABASE_URL", rootCmd.PersistentFlags().Lookup("database-url"))
	_ = v.BindPFlag("DATABASE_NAME", rootCmd.PersistentFlags().Lookup("database-name"))

	rootCmd.AddCommand(migrateCmd(v))
	rootCmd.AddCommand(tokenCmd(v))
	rootCmd.AddCommand(paymentCmd(v))
	rootCmd.AddCommand(paymentRequestCmd(v))
	rootCmd.AddCommand(secretsCmd(v))
	return rootCmd
}

func newLogger(v *viper.Viper) zerolog.Logger {
	return logging.New(logging.Config{
		Level:     v.GetString("LOG_LEVEL"),
		Output:    os.Stderr,
		Component: "admin",
	})
}

// openStore connects to the configured store; the caller closes it
func openStore(ctx context.Context, v *viper.Viper) (database.Store, error) {
	uri := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if uri == "" {
		uri = strings.TrimSpace(v.GetString("MONGODB_URI"))
	}
	if uri == "" {
		return nil, fmt.Errorf("no store configured: set --database-url or DATABASE_URL")
	}
	return database.Open(ctx, uri, v.GetString("DATABASE_NAME"), newLogger(v))
}

// withStore runs fn against an open store under a command timeout
func withStore(v *viper.Viper, fn func(ctx context.Context, store database.Store) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	return fn(ctx, store)
}

func printJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(value)
}

func migrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(v, func(ctx context.Context, store database.Store) error {
				if err := store.Migrate(ctx); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations complete")
				return nil
			})
		},
	}
}
