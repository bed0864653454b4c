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

package orgconfig

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
)

// Strategy is one source in the resolution chain. Try returns ErrNotFound
// to advance the chain without noise; any other error also advances but is
// recorded as a degradation warning.
type Strategy interface {
	// Source identifies this strategy in resolution tags.
	Source() Source

	// Try attempts to resolve the org's config from this source.
	Try(ctx context.Context, orgID string) (*OrgConfig, error)
}

// Resolution is the outcome of resolving one org.
type Resolution struct {
	Config *OrgConfig
	Source Source

	// CachedFrom records which source originally populated the cache when
	// Source == SourceCache.
	CachedFrom Source

	// Warnings lists every degradation hit on the way to this config.
	Warnings []string
}

// Resolver resolves org configs through an ordered strategy chain:
// fresh cache, remote authority, stale cache (remote down), durable local
// store, hardcoded default. It never fails: every path produces a config.
type Resolver struct {
	cache      *Cache
	strategies []Strategy
	logger     *log.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets a custom logger.
func WithResolverLogger(l *log.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// WithStrategies replaces the default chain (used by tests).
func WithStrategies(strategies ...Strategy) ResolverOption {
	return func(r *Resolver) { r.strategies = strategies }
}

// NewResolver builds the standard chain from an authority client and a
// local store. Either may be nil; the corresponding tier is skipped.
func NewResolver(cache *Cache, authority *AuthorityClient, store *FileStore, opts ...ResolverOption) *Resolver {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL)
	}

	r := &Resolver{
		cache:  cache,
		logger: log.New(os.Stdout, "[ORG_RESOLVER] ", log.LstdFlags),
	}

	var chain []Strategy
	if authority != nil {
		chain = append(chain, &remoteStrategy{authority: authority, cache: cache})
		chain = append(chain, &staleCacheStrategy{cache: cache})
	}
	if store != nil {
		chain = append(chain, &localStrategy{store: store})
	}
	chain = append(chain, &defaultStrategy{})
	r.strategies = chain

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces a config for the org, tagging the source used. It never
// returns an error: a completely unknown org yields the hardcoded default.
func (r *Resolver) Resolve(ctx context.Context, orgID string) Resolution {
	// Fresh cache entries short-circuit the chain entirely.
	if cfg, origin, ok := r.cache.Get(orgID); ok {
		return Resolution{
			Config:     cfg,
			Source:     SourceCache,
			CachedFrom: origin,
			Warnings:   []string{fmt.Sprintf("org config for %s served from cache (origin: %s)", orgID, origin)},
		}
	}

	var warnings []string
	for _, strat := range r.strategies {
		cfg, err := strat.Try(ctx, orgID)
		if err == nil {
			if strat.Source() != SourceRemote {
				warnings = append(warnings, fmt.Sprintf("org config for %s resolved from degraded source %s", orgID, strat.Source()))
			}
			return Resolution{Config: cfg, Source: strat.Source(), Warnings: warnings}
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		r.logger.Printf("source %s failed for org %s: %v", strat.Source(), orgID, err)
		warnings = append(warnings, fmt.Sprintf("org config source %s unavailable: %v", strat.Source(), err))
	}

	// Unreachable with the default chain: defaultStrategy always succeeds.
	return Resolution{
		Config:   DefaultConfig(orgID),
		Source:   SourceDefault,
		Warnings: append(warnings, fmt.Sprintf("org config for %s synthesized from hardcoded default", orgID)),
	}
}

// remoteStrategy fetches from the configuration authority and refreshes
// the cache on success.
type remoteStrategy struct {
	authority *AuthorityClient
	cache     *Cache
}

func (s *remoteStrategy) Source() Source { return SourceRemote }

func (s *remoteStrategy) Try(ctx context.Context, orgID string) (*OrgConfig, error) {
	cfg, err := s.authority.Fetch(ctx, orgID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(orgID, cfg, SourceRemote)
	return cfg, nil
}

// staleCacheStrategy serves an expired cache entry when the remote tier
// has already failed. A stale answer beats dropping to a colder source.
type staleCacheStrategy struct {
	cache *Cache
}

func (s *staleCacheStrategy) Source() Source { return SourceCache }

func (s *staleCacheStrategy) Try(_ context.Context, orgID string) (*OrgConfig, error) {
	cfg, _, ok := s.cache.GetStale(orgID)
	if !ok {
		return nil, ErrNotFound
	}
	return cfg, nil
}

// localStrategy reads the durable local record store.
type localStrategy struct {
	store *FileStore
}

func (s *localStrategy) Source() Source { return SourceLocal }

func (s *localStrategy) Try(_ context.Context, orgID string) (*OrgConfig, error) {
	return s.store.Get(orgID)
}

// defaultStrategy synthesizes the hardcoded default. It never fails.
type defaultStrategy struct{}

func (s *defaultStrategy) Source() Source { return SourceDefault }

func (s *defaultStrategy) Try(_ context.Context, orgID string) (*OrgConfig, error) {
	return DefaultConfig(orgID), nil
}
