package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
)

// LoadEnv populates the process environment before Load reads it: first from
// an AWS Secrets Manager secret when AWS_SECRETS_MANAGER_SECRET_ID is set,
// then from a .env file. Neither source is required.
func LoadEnv(ctx context.Context, logger *slog.Logger, defaultEnvPath string) {
	if err := loadSecretsIntoEnv(ctx, logger); err != nil {
		logger.Warn("skipping AWS Secrets Manager load", "error", err)
	}

	envFile := os.Getenv("ENV_FILE_PATH")
	if envFile == "" {
		envFile = defaultEnvPath
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil {
		logger.Debug("no .env file loaded, using process environment", "path", envFile)
	}
}

func loadSecretsIntoEnv(ctx context.Context, logger *slog.Logger) error {
	secretID := os.Getenv("AWS_SECRETS_MANAGER_SECRET_ID")
	if secretID == "" {
		return nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region := os.Getenv("AWS_SECRETS_MANAGER_REGION"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	output, err := secretsmanager.NewFromConfig(cfg).GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return fmt.Errorf("fetching secret %s: %w", secretID, err)
	}

	var payload []byte
	switch {
	case output.SecretString != nil:
		payload = []byte(*output.SecretString)
	case len(output.SecretBinary) > 0:
		payload = output.SecretBinary
	default:
		return fmt.Errorf("secret %s has no payload", secretID)
	}

	overwrite := strings.EqualFold(os.Getenv("AWS_SECRETS_MANAGER_OVERWRITE"), "true")
	applied, err := applySecret(payload, overwrite, os.LookupEnv, os.Setenv)
	if err != nil {
		return fmt.Errorf("secret %s: %w", secretID, err)
	}
	logger.Info("loaded environment from AWS Secrets Manager", "secret", secretID, "applied", applied)
	return nil
}

// applySecret copies the keys of a flat JSON object into the environment and
// returns how many were set.
func applySecret(payload []byte, overwrite bool, lookup func(string) (string, bool), setenv func(string, string) error) (int, error) {
	var kv map[string]interface{}
	if err := json.Unmarshal(payload, &kv); err != nil {
		return 0, fmt.Errorf("payload is not a JSON object: %w", err)
	}

	applied := 0
	for key, val := range kv {
		if cur, ok := lookup(key); ok && cur != "" && !overwrite {
			continue
		}
		if err := setenv(key, fmt.Sprint(val)); err != nil {
			return applied, fmt.Errorf("setting env %s: %w", key, err)
		}
		applied++
	}
	return applied, nil
}
