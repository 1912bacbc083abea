// Package edge serves the transcribe-audio, generate-recipe and
// process-image-ocr functions the recorder and the recipe screen call.
package edge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/logging"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/ports"
)

const (
	defaultMinAudioBytes  = 100
	defaultMaxUploadBytes = 25 << 20
	shutdownGrace         = 5 * time.Second
)

// RecipeReader extracts a recipe from a photographed page.
type RecipeReader interface {
	ExtractRecipe(ctx context.Context, imageURL string) (domain.ExtractedRecipe, error)
}

// Config controls access and upload limits.
type Config struct {
	// FunctionsKey, when set, must be presented as the apikey header or a bearer token.
	FunctionsKey   string
	AllowedOrigin  string
	MinAudioBytes  int
	MaxUploadBytes int64
}

// Server hosts the three functions behind one chi router.
type Server struct {
	cfg         Config
	transcriber ports.Transcriber
	generator   ports.RecipeGenerator
	reader      RecipeReader
	logger      zerolog.Logger
	newID       func() string
}

func NewServer(cfg Config, transcriber ports.Transcriber, generator ports.RecipeGenerator, reader RecipeReader, logger zerolog.Logger) *Server {
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if cfg.MinAudioBytes <= 0 {
		cfg.MinAudioBytes = defaultMinAudioBytes
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Server{
		cfg:         cfg,
		transcriber: transcriber,
		generator:   generator,
		reader:      reader,
		logger:      logging.Component(logger, "edge"),
		newID:       uuid.NewString,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Route("/functions/v1", func(r chi.Router) {
		r.Use(s.requireKey)
		r.Post("/transcribe-audio", s.handleTranscribe)
		r.Post("/generate-recipe", s.handleGenerateRecipe)
		r.Post("/process-image-ocr", s.handleImageOCR)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("edge functions listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.FunctionsKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		presented := r.Header.Get("apikey")
		if presented == "" {
			presented = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.cfg.FunctionsKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
