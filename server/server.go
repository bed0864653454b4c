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

// Package server exposes the action backend over HTTP: action execution,
// session binding, health, and Prometheus metrics.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"intentflow/backend/identity"
	"intentflow/backend/pipeline"
	"intentflow/backend/shared/logger"
)

// Server routes HTTP traffic to the action pipeline.
type Server struct {
	executor *pipeline.Executor
	binder   *identity.Binder
	router   *mux.Router
	cors     *cors.Cors
	log      *logger.Logger
}

// Options configures a Server.
type Options struct {
	Executor *pipeline.Executor
	Binder   *identity.Binder
	Logger   *logger.Logger

	// AllowedOrigins restricts CORS. Empty allows any origin, which is
	// what a browser extension calling from arbitrary pages needs.
	AllowedOrigins []string
}

// New creates the HTTP server around an executor and a session binder.
func New(opts Options) (*Server, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("server requires an executor")
	}
	if opts.Binder == nil {
		return nil, fmt.Errorf("server requires a session binder")
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("server")
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		executor: opts.Executor,
		binder:   opts.Binder,
		router:   mux.NewRouter(),
		cors: cors.New(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}),
		log: opts.Logger,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.HandleFunc("/v1/action", s.handleAction).Methods("POST")
	s.router.HandleFunc("/v1/session/bind", s.handleBind).Methods("POST")
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Handler returns the CORS-wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.cors.Handler(s.router)
}

// ListenAndServe runs the server with sane timeouts until the listener
// fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info("", "", "http server listening", map[string]interface{}{"addr": addr})
	return srv.ListenAndServe()
}
