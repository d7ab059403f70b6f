// Package vault reads the registry template secrets from a HashiCorp Vault
// KV v2 mount.
package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/vault/api"

	"vehicle-lookup-api/config"
)

// ErrDisabled is returned by operations that need Vault when it is disabled
var ErrDisabled = errors.New("vault is disabled")

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
}

// NewClient creates a new Vault client. A disabled config yields a client
// whose reads return ErrDisabled.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// RegistrySecrets reads secret1..secretN from the configured secret path.
// Missing keys are left empty so the caller can fall back to other sources.
func (c *Client) RegistrySecrets(ctx context.Context) ([config.SecretCount]string, error) {
	var out [config.SecretCount]string
	if !c.config.Enabled {
		return out, ErrDisabled
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return out, fmt.Errorf("failed to read registry secrets from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return out, fmt.Errorf("registry secrets not found at %s", c.secretPath())
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return out, fmt.Errorf("invalid secret format")
	}

	for i := range out {
		out[i] = getString(data, secretKey(i))
	}
	return out, nil
}

// StoreRegistrySecrets writes the template secrets as a new KV version
func (c *Client) StoreRegistrySecrets(ctx context.Context, secrets [config.SecretCount]string) error {
	if !c.config.Enabled {
		return ErrDisabled
	}

	values := make(map[string]interface{}, len(secrets))
	for i, s := range secrets {
		values[secretKey(i)] = s
	}

	_, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(), map[string]interface{}{
		"data": values,
	})
	if err != nil {
		return fmt.Errorf("failed to store registry secrets in vault: %w", err)
	}
	return nil
}

// ApplyTo overlays every non-empty Vault secret onto cfg
func (c *Client) ApplyTo(ctx context.Context, cfg *config.RegistryConfig) error {
	secrets, err := c.RegistrySecrets(ctx)
	if err != nil {
		return err
	}
	for i, s := range secrets {
		if s != "" {
			cfg.Secrets[i] = s
		}
	}
	return nil
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// secretPath returns the KV v2 data path holding the registry secrets
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func secretKey(i int) string {
	return fmt.Sprintf("secret%d", i+1)
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
