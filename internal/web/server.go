package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mutusfa/Neurodeck/internal/anki"
	"github.com/mutusfa/Neurodeck/internal/docsource"
	"github.com/mutusfa/Neurodeck/internal/domain"
	"github.com/mutusfa/Neurodeck/internal/generator"
	"github.com/mutusfa/Neurodeck/internal/storage"
	syncsvc "github.com/mutusfa/Neurodeck/internal/sync"
)

// CardGenerator produces a topic and question-answer pairs for a document.
type CardGenerator interface {
	GenerateCards(ctx context.Context, text string) (generator.Result, error)
}

// Server holds the dependencies for the HTTP API.
type Server struct {
	db       *storage.DB
	gen      CardGenerator
	syncer   *syncsvc.Syncer
	mediaDir string
	router   chi.Router
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, gen CardGenerator, syncer *syncsvc.Syncer, mediaDir string) *Server {
	s := &Server{
		db:       db,
		gen:      gen,
		syncer:   syncer,
		mediaDir: mediaDir,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.StripSlashes)

	s.router.Post("/documents", s.handleIngestDocument)
	s.router.Get("/contexts", s.handleGetContexts)
	s.router.Delete("/contexts", s.handleDeleteContext)
	s.router.Get("/cards", s.handleGetCards)
	s.router.Put("/cards/evaluation", s.handleEvaluateCard)
	s.router.Post("/sync", s.handleSync)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

type ingestRequest struct {
	URL    string `json:"url"`
	GitURL string `json:"git_url"`
}

// handleIngestDocument accepts a document as a multipart file upload or a
// JSON body naming a URL or a git repository, extracts its text, and loads
// or generates cards for it.
func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := r.FormFile("document")
		if err != nil {
			respondError(w, http.StatusBadRequest, "missing document file")
			return
		}
		defer file.Close()

		path, err := docsource.SaveUpload(s.mediaDir, header.Filename, file)
		if err != nil {
			slog.Error("Failed to save upload", "filename", header.Filename, "error", err)
			respondError(w, http.StatusInternalServerError, "failed to store upload")
			return
		}

		text, err := docsource.ExtractFile(path)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		cards, err := s.loadOrGenerate(r.Context(), path, text)
		if err != nil {
			slog.Error("Failed to ingest upload", "context", path, "error", err)
			respondError(w, http.StatusBadGateway, "card generation failed")
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{"context": path, "cards": cards})
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.URL != "":
		text, err := docsource.FetchURL(r.Context(), req.URL)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		cards, err := s.loadOrGenerate(r.Context(), req.URL, text)
		if err != nil {
			slog.Error("Failed to ingest url", "context", req.URL, "error", err)
			respondError(w, http.StatusBadGateway, "card generation failed")
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{"context": req.URL, "cards": cards})

	case req.GitURL != "":
		contexts, err := s.ingestRepo(r.Context(), req.GitURL)
		if err != nil {
			slog.Error("Failed to ingest repo", "url", req.GitURL, "error", err)
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{"contexts": contexts})

	default:
		respondError(w, http.StatusBadRequest, "either url or git_url is required")
	}
}

// loadOrGenerate returns the stored cards for a context if any exist, and
// otherwise generates, persists, and returns fresh ones.
func (s *Server) loadOrGenerate(ctx context.Context, docContext, text string) ([]domain.Card, error) {
	if existing := s.db.LoadCards(docContext); len(existing) > 0 {
		return existing, nil
	}

	res, err := s.gen.GenerateCards(ctx, text)
	if err != nil {
		return nil, err
	}

	cards := make([]domain.Card, len(res.Cards))
	for i, qa := range res.Cards {
		cards[i] = domain.Card{
			Question:   qa.Question,
			Answer:     qa.Answer,
			Topic:      res.Topic,
			Context:    docContext,
			Evaluation: domain.NotEvaluated,
		}
	}
	return s.db.SaveCards(cards)
}

// ingestRepo syncs a git repository into the media dir and ingests every
// document file it contains, each under its own context.
func (s *Server) ingestRepo(ctx context.Context, repoURL string) ([]string, error) {
	localPath, err := docsource.RepoLocalPath(filepath.Join(s.mediaDir, "repos"), repoURL)
	if err != nil {
		return nil, err
	}
	if err := docsource.SyncRepo(repoURL, localPath); err != nil {
		return nil, err
	}

	docs, err := docsource.CollectDocuments(localPath)
	if err != nil {
		return nil, err
	}

	var contexts []string
	for _, doc := range docs {
		text, err := docsource.ExtractFile(doc)
		if err != nil {
			slog.Warn("Skipping document", "path", doc, "error", err)
			continue
		}
		if _, err := s.loadOrGenerate(ctx, doc, text); err != nil {
			slog.Warn("Failed to generate cards for document", "path", doc, "error", err)
			continue
		}
		contexts = append(contexts, doc)
	}
	return contexts, nil
}

func (s *Server) handleGetContexts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"contexts": s.db.GetContexts()})
}

func (s *Server) handleDeleteContext(w http.ResponseWriter, r *http.Request) {
	docContext := r.URL.Query().Get("context")
	if docContext == "" {
		respondError(w, http.StatusBadRequest, "context query parameter is required")
		return
	}
	if err := s.db.DeleteContext(docContext); err != nil {
		slog.Error("Failed to delete context", "context", docContext, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete context")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetCards(w http.ResponseWriter, r *http.Request) {
	docContext := r.URL.Query().Get("context")
	if docContext == "" {
		respondError(w, http.StatusBadRequest, "context query parameter is required")
		return
	}
	cards := s.db.LoadCards(docContext)
	feedback := s.db.LoadFeedback(cardIDs(cards))
	respondJSON(w, http.StatusOK, map[string]any{"cards": cards, "anki_feedback": feedback})
}

type evaluateRequest struct {
	Context    string            `json:"context"`
	Position   int               `json:"position"`
	Evaluation domain.Evaluation `json:"evaluation"`
}

func (s *Server) handleEvaluateCard(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Context == "" || !req.Evaluation.Valid() {
		respondError(w, http.StatusBadRequest, "context and a valid evaluation are required")
		return
	}
	if err := s.db.UpdateCardEvaluation(req.Context, req.Position, req.Evaluation); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type syncRequest struct {
	Context string `json:"context"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Context == "" {
		respondError(w, http.StatusBadRequest, "context is required")
		return
	}

	synced, err := s.syncer.Sync(r.Context(), req.Context)
	if err != nil {
		slog.Error("Sync failed", "context", req.Context, "error", err)
		if errors.Is(err, anki.ErrRejected) {
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"synced": synced})
}

func cardIDs(cards []domain.Card) []int64 {
	var ids []int64
	for _, c := range cards {
		if c.Persisted() {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
