// Copyright 2026 fanjia1024
// HashiCorp Vault secret store

package secrets

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`     // e.g. http://vault:8200
	Token      string `mapstructure:"token"`       // 为空时使用 VAULT_TOKEN
	PathPrefix string `mapstructure:"path_prefix"` // e.g. "secret/data/agent"
}

type vaultStore struct {
	logical    *vault.Logical
	pathPrefix string
}

// NewVaultStore 创建 Vault secret store
func NewVaultStore(config VaultConfig) (Store, error) {
	cfg := vault.DefaultConfig()
	if config.Address != "" {
		cfg.Address = config.Address
	}

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}

	prefix := "secret"
	if config.PathPrefix != "" {
		prefix = strings.TrimSuffix(config.PathPrefix, "/")
	}
	return &vaultStore{logical: client.Logical(), pathPrefix: prefix}, nil
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	secret, err := v.logical.ReadWithContext(ctx, v.buildPath(key))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	data := secret.Data
	// KV v2 把值放在 data.data 下
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}
	if val, ok := data["value"].(string); ok {
		return val, nil
	}
	for _, val := range data {
		if str, ok := val.(string); ok {
			return str, nil
		}
	}
	return "", fmt.Errorf("secret value not found: %s", key)
}

func (v *vaultStore) Set(ctx context.Context, key string, value string) error {
	payload := map[string]interface{}{"value": value}
	if v.isKV2() {
		payload = map[string]interface{}{"data": payload}
	}
	if _, err := v.logical.WriteWithContext(ctx, v.buildPath(key), payload); err != nil {
		return fmt.Errorf("failed to write secret to vault: %w", err)
	}
	return nil
}

func (v *vaultStore) Delete(ctx context.Context, key string) error {
	if _, err := v.logical.DeleteWithContext(ctx, v.buildPath(key)); err != nil {
		return fmt.Errorf("failed to delete secret from vault: %w", err)
	}
	return nil
}

func (v *vaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	listPath := v.pathPrefix
	if v.isKV2() {
		listPath = strings.Replace(listPath, "/data", "/metadata", 1)
	}
	secret, err := v.logical.ListWithContext(ctx, listPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets from vault: %w", err)
	}
	if secret == nil {
		return nil, nil
	}
	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}
	var result []string
	for _, k := range keys {
		if str, ok := k.(string); ok && strings.HasPrefix(str, prefix) {
			result = append(result, str)
		}
	}
	return result, nil
}

func (v *vaultStore) isKV2() bool {
	return strings.Contains(v.pathPrefix, "/data")
}

func (v *vaultStore) buildPath(key string) string {
	return fmt.Sprintf("%s/%s", v.pathPrefix, key)
}
