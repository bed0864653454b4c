// Copyright 2025 IntentFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManager retrieves named secret bundles. A bundle is a flat map
// of string keys to values.
type SecretsManager interface {
	GetSecret(ctx context.Context, ref string) (map[string]string, error)
}

// secretsAPI is the subset of the AWS Secrets Manager client we call.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager reads JSON secret bundles from AWS Secrets Manager,
// caching each ref for a TTL to keep the API off the hot path.
type AWSSecretsManager struct {
	client secretsAPI
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions configures an AWSSecretsManager.
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsManager creates a secrets manager backed by AWS.
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newAWSSecretsManager(secretsmanager.NewFromConfig(cfg), opts), nil
}

// newAWSSecretsManager wires the manager onto any secretsAPI (tests pass
// a fake client).
func newAWSSecretsManager(client secretsAPI, opts AWSSecretsManagerOptions) *AWSSecretsManager {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS] ", log.LstdFlags)
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}
}

// GetSecret retrieves a secret bundle, serving from cache within the TTL.
// The secret value is expected to be a JSON object of string values; a
// non-JSON secret is returned under the "value" key.
func (s *AWSSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[ref]
	s.mu.RUnlock()
	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskRef(ref), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskRef(ref))
	}

	var bundle map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &bundle); err != nil {
		bundle = map[string]string{"value": *result.SecretString}
	}

	s.mu.Lock()
	s.cache[ref] = &secretCacheEntry{value: bundle, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	s.logger.Printf("retrieved and cached secret %s", maskRef(ref))
	return bundle, nil
}

// Invalidate drops one ref from the cache.
func (s *AWSSecretsManager) Invalidate(ref string) {
	s.mu.Lock()
	delete(s.cache, ref)
	s.mu.Unlock()
}

// maskRef hides the secret reference in logs, keeping the tail for
// correlation.
func maskRef(ref string) string {
	if len(ref) <= 12 {
		return "***"
	}
	return "..." + ref[len(ref)-8:]
}

// EnvSecretsManager serves secret bundles straight from environment
// variables, for development and deployments without AWS.
type EnvSecretsManager struct{}

// NewEnvSecretsManager creates an environment-backed secrets manager.
func NewEnvSecretsManager() *EnvSecretsManager {
	return &EnvSecretsManager{}
}

// envSecretKeys are the bundle keys Hydrate consumes, mapped to their
// environment variable names.
var envSecretKeys = map[string]string{
	"jwt_signing_key":   "JWT_SIGNING_KEY",
	"openai_api_key":    "OPENAI_API_KEY",
	"anthropic_api_key": "ANTHROPIC_API_KEY",
	"gemini_api_key":    "GEMINI_API_KEY",
	"database_url":      "DATABASE_URL",
	"redis_url":         "REDIS_URL",
	"authority_secret":  "CONFIG_AUTHORITY_SECRET",
}

// GetSecret builds a bundle from whichever known variables are set. The
// ref is ignored: the environment is one flat bundle.
func (s *EnvSecretsManager) GetSecret(_ context.Context, _ string) (map[string]string, error) {
	bundle := make(map[string]string)
	for key, env := range envSecretKeys {
		if v := os.Getenv(env); v != "" {
			bundle[key] = v
		}
	}
	return bundle, nil
}

// Hydrate fills empty secret-bearing config fields from the configured
// secrets source. Fields already set (file or env) are left alone.
func Hydrate(ctx context.Context, cfg *ServiceConfig, sm SecretsManager) error {
	if sm == nil {
		return nil
	}

	bundle, err := sm.GetSecret(ctx, cfg.Secrets.SecretRef)
	if err != nil {
		return fmt.Errorf("secret hydration failed: %w", err)
	}

	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = bundle[key]
		}
	}
	fill(&cfg.Identity.SigningKey, "jwt_signing_key")
	fill(&cfg.Providers.OpenAIAPIKey, "openai_api_key")
	fill(&cfg.Providers.AnthropicAPIKey, "anthropic_api_key")
	fill(&cfg.Providers.GeminiAPIKey, "gemini_api_key")
	fill(&cfg.Usage.DatabaseURL, "database_url")
	fill(&cfg.Policy.RedisURL, "redis_url")
	fill(&cfg.OrgConfig.AuthoritySecret, "authority_secret")
	return nil
}

// NewSecretsManager builds the secrets manager selected by the config.
// Returns nil when no source is configured.
func NewSecretsManager(ctx context.Context, cfg *ServiceConfig) (SecretsManager, error) {
	switch cfg.Secrets.Source {
	case "aws":
		return NewAWSSecretsManager(ctx, AWSSecretsManagerOptions{Region: cfg.Secrets.Region})
	case "env":
		return NewEnvSecretsManager(), nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown secrets source %q", cfg.Secrets.Source)
	}
}
