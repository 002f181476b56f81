package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/hashicorp/vault/api"
)

// RedisPasswordKey names the Redis password in every secret store.
const RedisPasswordKey = "redis_password"

// SecretManager retrieves secrets by key.
type SecretManager interface {
	GetSecret(key string) (string, error)
}

// EnvSecretManager reads ARGUS_<KEY> environment variables.
type EnvSecretManager struct{}

func (e *EnvSecretManager) GetSecret(key string) (string, error) {
	envKey := "ARGUS_" + strings.ToUpper(key)
	value := os.Getenv(envKey)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envKey)
	}
	return value, nil
}

// VaultSecretManager retrieves secrets from HashiCorp Vault
type VaultSecretManager struct {
	path   string
	client *api.Client
}

func NewVaultSecretManager(cfg *Config) (*VaultSecretManager, error) {
	client, err := api.NewClient(&api.Config{
		Address: cfg.Secrets.Vault.Address,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Secrets.Vault.Token != "" {
		client.SetToken(cfg.Secrets.Vault.Token)
	} else if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}

	path := cfg.Secrets.Vault.Path
	if path == "" {
		path = "secret/argus"
	}
	return &VaultSecretManager{path: path, client: client}, nil
}

func (v *VaultSecretManager) GetSecret(key string) (string, error) {
	secret, err := v.client.Logical().Read(v.path)
	if err != nil {
		return "", fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found at path %s", v.path)
	}

	data := secret.Data
	// KV version 2 nests the values one level down.
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	value, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in Vault secret", key)
	}
	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("secret value for key %s is not a string", key)
	}
	return strValue, nil
}

// AWSSecretManager retrieves secrets from AWS Secrets Manager
type AWSSecretManager struct {
	secretID string
	client   *secretsmanager.SecretsManager
}

func NewAWSSecretManager(cfg *Config) (*AWSSecretManager, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Secrets.AWS.Region)}
	if cfg.Secrets.AWS.AccessKey != "" && cfg.Secrets.AWS.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(
			cfg.Secrets.AWS.AccessKey,
			cfg.Secrets.AWS.SecretKey,
			"",
		)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	secretID := cfg.Secrets.AWS.SecretID
	if secretID == "" {
		secretID = "argus/secrets"
	}
	return &AWSSecretManager{secretID: secretID, client: secretsmanager.New(sess)}, nil
}

func (a *AWSSecretManager) GetSecret(key string) (string, error) {
	result, err := a.client.GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(a.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret from AWS: %w", err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("AWS secret %s has no string value", a.secretID)
	}

	var secrets map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &secrets); err != nil {
		return "", fmt.Errorf("failed to parse AWS secret JSON: %w", err)
	}
	value, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in AWS secret", key)
	}
	return value, nil
}

// NewSecretManager creates the secret manager named by secrets.provider.
func NewSecretManager(cfg *Config) (SecretManager, error) {
	switch cfg.Secrets.Provider {
	case "", "env":
		return &EnvSecretManager{}, nil
	case "vault":
		return NewVaultSecretManager(cfg)
	case "aws":
		return NewAWSSecretManager(cfg)
	}
	return nil, fmt.Errorf("unsupported secret provider: %s", cfg.Secrets.Provider)
}

// LoadSecrets fills secrets that the config leaves empty. It only consults
// a store when secrets.provider is set and the Redis transport is in use.
func LoadSecrets(cfg *Config) error {
	if cfg.Secrets.Provider == "" || cfg.Distributed.Transport != TransportRedis || cfg.Distributed.Redis.Password != "" {
		return nil
	}

	manager, err := NewSecretManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	password, err := manager.GetSecret(RedisPasswordKey)
	if err != nil {
		return fmt.Errorf("failed to load redis password: %w", err)
	}
	cfg.Distributed.Redis.Password = password
	return nil
}
