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

// Package config loads service configuration from an optional YAML file
// with environment variable overrides. Environment always wins, so a
// deployment can ship one base file and vary per environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceConfig is the full backend configuration.
type ServiceConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Identity  IdentityConfig  `yaml:"identity"`
	OrgConfig OrgConfigConfig `yaml:"org_config"`
	Policy    PolicyConfig    `yaml:"policy"`
	Providers ProviderConfig  `yaml:"providers"`
	Schemas   SchemaConfig    `yaml:"schemas"`
	Actions   ActionConfig    `yaml:"actions"`
	Usage     UsageConfig     `yaml:"usage"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// IdentityConfig configures credential verification and session binding.
type IdentityConfig struct {
	SigningKey string        `yaml:"signing_key"`
	Issuer     string        `yaml:"issuer"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	DevMode    bool          `yaml:"dev_mode"`
}

// OrgConfigConfig configures the tiered org-config resolution chain.
type OrgConfigConfig struct {
	AuthorityURL    string        `yaml:"authority_url"`
	AuthoritySecret string        `yaml:"authority_secret"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	LocalStorePath  string        `yaml:"local_store_path"`
}

// PolicyConfig configures daily-limit counter storage. An empty RedisURL
// selects the in-memory store.
type PolicyConfig struct {
	RedisURL string `yaml:"redis_url"`
}

// ProviderConfig carries per-provider credentials and endpoints.
type ProviderConfig struct {
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	OllamaBaseURL   string `yaml:"ollama_base_url"`
	BedrockEnabled  bool   `yaml:"bedrock_enabled"`
	BedrockRegion   string `yaml:"bedrock_region"`
}

// SchemaConfig locates output schema documents.
type SchemaConfig struct {
	Dir string `yaml:"dir"`
}

// ActionConfig locates action definitions.
type ActionConfig struct {
	Dir string `yaml:"dir"`
}

// UsageConfig configures usage event recording. An empty DatabaseURL
// disables it.
type UsageConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// SecretsConfig selects where runtime secrets are hydrated from.
type SecretsConfig struct {
	// Source is "aws", "env", or "" (no hydration).
	Source string `yaml:"source"`

	// SecretRef is the AWS secret ARN or name when Source is "aws".
	SecretRef string `yaml:"secret_ref"`

	Region string `yaml:"region"`
}

// Default returns the baseline configuration.
func Default() *ServiceConfig {
	return &ServiceConfig{
		Server:   ServerConfig{Port: "8080"},
		Identity: IdentityConfig{Issuer: "intentflow", TokenTTL: time.Hour},
		OrgConfig: OrgConfigConfig{
			CacheTTL:       5 * time.Minute,
			LocalStorePath: "data/orgs.json",
		},
		Schemas: SchemaConfig{Dir: "schemas"},
		Actions: ActionConfig{Dir: "actions"},
	}
}

// Load reads configuration from path (optional, "" skips the file) and
// applies environment overrides on top. Load checks structure only;
// fields that may arrive via secret hydration are enforced by Validate
// after Hydrate has run.
func Load(path string) (*ServiceConfig, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.checkStructure(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServiceConfig) applyEnv() {
	setString(&c.Server.Port, "PORT")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitAndTrim(v)
	}

	setString(&c.Identity.SigningKey, "JWT_SIGNING_KEY")
	setString(&c.Identity.Issuer, "JWT_ISSUER")
	setBool(&c.Identity.DevMode, "DEV_MODE")

	setString(&c.OrgConfig.AuthorityURL, "CONFIG_AUTHORITY_URL")
	setString(&c.OrgConfig.AuthoritySecret, "CONFIG_AUTHORITY_SECRET")
	setString(&c.OrgConfig.LocalStorePath, "ORG_STORE_PATH")

	setString(&c.Policy.RedisURL, "REDIS_URL")

	setString(&c.Providers.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Providers.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.Providers.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.Providers.OllamaBaseURL, "OLLAMA_BASE_URL")
	setBool(&c.Providers.BedrockEnabled, "BEDROCK_ENABLED")
	setString(&c.Providers.BedrockRegion, "BEDROCK_REGION")

	setString(&c.Schemas.Dir, "SCHEMA_DIR")
	setString(&c.Actions.Dir, "ACTION_DIR")

	setString(&c.Usage.DatabaseURL, "DATABASE_URL")

	setString(&c.Secrets.Source, "SECRETS_SOURCE")
	setString(&c.Secrets.SecretRef, "SECRETS_REF")
	setString(&c.Secrets.Region, "AWS_REGION")
}

func (c *ServiceConfig) checkStructure() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port must not be empty")
	}
	switch c.Secrets.Source {
	case "", "aws", "env":
	default:
		return fmt.Errorf("unknown secrets source %q", c.Secrets.Source)
	}
	return nil
}

// Validate enforces required runtime values. It runs after secret
// hydration: a deployment may keep the signing key solely in its
// secrets source, so Load cannot check it.
func (c *ServiceConfig) Validate() error {
	if c.Identity.SigningKey == "" && !c.Identity.DevMode {
		return fmt.Errorf("identity signing key is required outside dev mode")
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
