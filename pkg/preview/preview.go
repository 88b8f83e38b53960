// Package preview serves a published results site over HTTP so reports can
// be inspected locally before they are pushed.
package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultoor/pkg/config"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server is the preview HTTP server.
type Server interface {
	// Start binds the listener and serves in the background.
	Start(ctx context.Context) error
	// Stop gracefully shuts the server down.
	Stop() error
	// Addr returns the bound address, or "" before Start.
	Addr() string
}

type server struct {
	log   logrus.FieldLogger
	cfg   *config.PreviewConfig
	files *siteFileServer

	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
	wg         sync.WaitGroup
}

// Ensure interface compliance.
var _ Server = (*server)(nil)

// NewServer creates a preview server for the site rooted at siteDir.
func NewServer(log logrus.FieldLogger, cfg *config.PreviewConfig, siteDir string) Server {
	log = log.WithField("component", "preview")

	return &server{
		log:   log,
		cfg:   cfg,
		files: newSiteFileServer(log, siteDir),
		done:  make(chan struct{}),
	}
}

func (s *server) Start(_ context.Context) error {
	s.httpServer = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Bind synchronously so port conflicts fail the command.
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.listener = ln

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithFields(logrus.Fields{
			"listen": ln.Addr().String(),
			"root":   s.files.root,
		}).Info("Preview server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	s.log.Info("Preview server stopped")

	return nil
}

func (s *server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"root":   filepath.Base(s.files.root),
	})
}
