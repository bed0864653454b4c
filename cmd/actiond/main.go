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

// actiond is the IntentFlow action backend: it binds extension sessions,
// executes page-context actions through configured LLM providers, and
// serves health and metrics endpoints.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	_ "github.com/lib/pq"

	"intentflow/backend/config"
	"intentflow/backend/identity"
	"intentflow/backend/llm"
	"intentflow/backend/llm/anthropic"
	"intentflow/backend/llm/bedrock"
	"intentflow/backend/llm/gemini"
	"intentflow/backend/llm/ollama"
	"intentflow/backend/llm/openai"
	"intentflow/backend/orgconfig"
	"intentflow/backend/pipeline"
	"intentflow/backend/policy"
	"intentflow/backend/schema"
	"intentflow/backend/server"
	"intentflow/backend/shared/logger"
	"intentflow/backend/usage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	ctx := context.Background()
	appLog := logger.New("actiond")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	sm, err := config.NewSecretsManager(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize secrets manager: %v", err)
	}
	if err := config.Hydrate(ctx, cfg, sm); err != nil {
		log.Fatalf("failed to hydrate secrets: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Org config resolution chain: cache, remote authority, local store,
	// hardcoded default.
	var authority *orgconfig.AuthorityClient
	if cfg.OrgConfig.AuthorityURL != "" {
		authority = orgconfig.NewAuthorityClient(orgconfig.AuthorityOptions{
			BaseURL:      cfg.OrgConfig.AuthorityURL,
			SharedSecret: cfg.OrgConfig.AuthoritySecret,
		})
	}
	var store *orgconfig.FileStore
	if cfg.OrgConfig.LocalStorePath != "" {
		store = orgconfig.NewFileStore(cfg.OrgConfig.LocalStorePath)
	}
	configs := orgconfig.NewResolver(orgconfig.NewCache(cfg.OrgConfig.CacheTTL), authority, store)

	identities := identity.NewResolver(identity.ResolverOptions{
		SigningKey: []byte(cfg.Identity.SigningKey),
		Issuer:     cfg.Identity.Issuer,
		DevMode:    cfg.Identity.DevMode,
	})
	binder := identity.NewBinder(identity.BinderOptions{
		SigningKey: []byte(cfg.Identity.SigningKey),
		Issuer:     cfg.Identity.Issuer,
		TokenTTL:   cfg.Identity.TokenTTL,
	})

	// Daily counters share state across instances when Redis is
	// configured; otherwise each instance counts alone.
	var counters policy.CounterStore = policy.NewMemoryCounterStore()
	if cfg.Policy.RedisURL != "" {
		redisCounters, err := policy.NewRedisCounterStoreFromURL(cfg.Policy.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		counters = redisCounters
		appLog.Info("", "", "daily counters backed by redis", nil)
	}
	enforcer := policy.NewEnforcer(counters)

	registry, err := llm.BuildRegistry(ctx, llm.FactoryConfig{
		OpenAI:         openai.Config{APIKey: cfg.Providers.OpenAIAPIKey},
		Anthropic:      anthropic.Config{APIKey: cfg.Providers.AnthropicAPIKey},
		Gemini:         gemini.Config{APIKey: cfg.Providers.GeminiAPIKey},
		Ollama:         ollama.Config{BaseURL: cfg.Providers.OllamaBaseURL},
		BedrockEnabled: cfg.Providers.BedrockEnabled,
		Bedrock:        bedrock.Config{Region: cfg.Providers.BedrockRegion},
	})
	if err != nil {
		log.Fatalf("failed to build provider registry: %v", err)
	}
	orchestrator := llm.NewOrchestrator(registry)

	catalog, err := pipeline.LoadCatalogFromDir(cfg.Actions.Dir)
	if err != nil {
		log.Fatalf("failed to load action catalog from %s: %v", cfg.Actions.Dir, err)
	}
	appLog.Info("", "", "action catalog loaded", map[string]interface{}{
		"actions": catalog.Names(),
	})

	validator := schema.NewValidator(schema.NewStore(cfg.Schemas.Dir))

	// Usage recording is optional and strictly fail-open.
	var sink pipeline.UsageSink
	if cfg.Usage.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.Usage.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open usage database: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			appLog.Warn("", "", "usage database unreachable at startup, recording may fail", map[string]interface{}{
				"error": err.Error(),
			})
		}
		sink = usage.NewRecorder(db)
	}

	executor, err := pipeline.NewExecutor(pipeline.ExecutorDeps{
		Configs:    configs,
		Identities: identities,
		Enforcer:   enforcer,
		Catalog:    catalog,
		LLM:        orchestrator,
		Validator:  validator,
		Usage:      sink,
	})
	if err != nil {
		log.Fatalf("failed to wire pipeline: %v", err)
	}

	srv, err := server.New(server.Options{
		Executor:       executor,
		Binder:         binder,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	if err != nil {
		log.Fatalf("failed to build server: %v", err)
	}

	if err := srv.ListenAndServe(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
