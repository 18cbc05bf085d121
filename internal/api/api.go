// Package api provides the HTTP surface of PingPal.
//
// It exposes a health endpoint and the inbound chat event endpoint that
// drives conversational turns: recording history, producing the assistant
// reply, and applying planning directives.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BubblyOak/PingPal/internal/config"
	"github.com/BubblyOak/PingPal/internal/genai"
	"github.com/BubblyOak/PingPal/internal/messaging"
	"github.com/BubblyOak/PingPal/internal/planner"
	"github.com/BubblyOak/PingPal/internal/policy"
	"github.com/BubblyOak/PingPal/internal/store"
	"github.com/BubblyOak/PingPal/internal/util"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// secretHeader carries the shared secret on inbound event requests.
const secretHeader = "X-Bot-Secret"

// GifPicker resolves a gif tag to an asset path. *giflib.Library satisfies it.
type GifPicker interface {
	Pick(tag string) string
}

// Deps bundles the collaborators the server needs.
type Deps struct {
	Store     store.Store
	Settings  *config.Settings
	GenAI     genai.ClientInterface
	Connector messaging.Connector
	Planner   *planner.Planner
	Gifs      GifPicker
	Rand      policy.RandSource
}

// Server handles HTTP requests for PingPal.
type Server struct {
	store     store.Store
	settings  *config.Settings
	genai     genai.ClientInterface
	connector messaging.Connector
	planner   *planner.Planner
	gifs      GifPicker
	rng       policy.RandSource
	now       func() time.Time
}

// NewServer creates a Server from its dependencies.
func NewServer(d Deps) *Server {
	return &Server{
		store:     d.Store,
		settings:  d.Settings,
		genai:     d.GenAI,
		connector: d.Connector,
		planner:   d.Planner,
		gifs:      d.Gifs,
		rng:       d.Rand,
		now:       util.UTCNow,
	}
}

// Handler returns the HTTP mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/event", s.eventHandler)
	return mux
}

// Run serves HTTP on addr until the listener fails.
func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("API server listening", "addr", addr)
	return srv.ListenAndServe()
}
