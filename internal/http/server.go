package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ehtbanton/exammer/internal/access"
	"github.com/ehtbanton/exammer/internal/log"
	"github.com/ehtbanton/exammer/internal/pipeline"
	"github.com/ehtbanton/exammer/pkg/models"
	"github.com/ehtbanton/exammer/pkg/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

// Server exposes the study pipeline and user access management over HTTP.
// Subject generation is asynchronous: POST /subjects returns 202 with the
// queue task ids, and clients poll the subject or its tasks for progress.
type Server struct {
	addr   string
	svc    *pipeline.Service
	syncer *access.Syncer
	store  storage.Store
	server *http.Server
}

func NewServer(addr string, svc *pipeline.Service, syncer *access.Syncer, store storage.Store) *Server {
	return &Server{addr: addr, svc: svc, syncer: syncer, store: store}
}

// Handler builds the route table. Exported so tests can drive the server
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.health)
	r.Route("/subjects", func(r chi.Router) {
		r.Post("/", s.createSubject)
		r.Get("/", s.listSubjects)
		r.Get("/{id}", s.getSubject)
		r.Get("/{id}/tasks", s.subjectTasks)
		r.Get("/{id}/questions", s.subjectQuestions)
	})
	r.Get("/tasks/{id}", s.getTask)
	r.Get("/users", s.listUsers)
	r.Put("/users/{id}/access", s.setUserAccess)
	r.Patch("/questions/{id}/score", s.scoreQuestion)
	return r
}

// ListenAndServe blocks until the listener fails or the server is shut
// down. Requests inherit ctx through BaseContext, so cancelling it
// cancels in-flight handlers too.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	log.GetLogger().Infof("Starting Exammer server on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSubjectRequest struct {
	UserID   int64  `json:"user_id"`
	Name     string `json:"name"`
	Material string `json:"material"`
}

func (s *Server) createSubject(w http.ResponseWriter, r *http.Request) {
	var req createSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" {
		log.GetLogger().Error("Missing 'name' parameter in POST /subjects")
		writeError(w, http.StatusBadRequest, "Missing 'name' parameter")
		return
	}
	if _, err := s.store.GetUser(req.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown user %d", req.UserID))
			return
		}
		serverError(w, err)
		return
	}
	subjectID, err := s.svc.EnqueueSubject(r.Context(), req.UserID, req.Name, req.Material)
	if err != nil {
		serverError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"subject_id": subjectID,
		"task_ids":   []string{pipeline.DecomposeTaskID(subjectID), pipeline.ExtractTaskID(subjectID)},
	})
}

func (s *Server) listSubjects(w http.ResponseWriter, _ *http.Request) {
	subjects, err := s.svc.ListSubjects()
	if err != nil {
		serverError(w, err)
		return
	}
	if subjects == nil {
		subjects = []models.Subject{}
	}
	writeJSON(w, http.StatusOK, subjects)
}

type subjectResponse struct {
	models.Subject
	QuestionCount int `json:"question_count"`
}

func (s *Server) getSubject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	subject, err := s.svc.GetSubject(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Subject not found")
			return
		}
		serverError(w, err)
		return
	}
	questions, err := s.svc.Questions(id)
	if err != nil {
		serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subjectResponse{Subject: subject, QuestionCount: len(questions)})
}

func (s *Server) subjectTasks(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.SubjectState(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Subject not found")
			return
		}
		serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) subjectQuestions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Resolve the subject first so an unknown id is a 404, not an empty list.
	if _, err := s.svc.GetSubject(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Subject not found")
			return
		}
		serverError(w, err)
		return
	}
	questions, err := s.svc.Questions(id)
	if err != nil {
		serverError(w, err)
		return
	}
	if questions == nil {
		questions = []models.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.svc.Task(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) listUsers(w http.ResponseWriter, _ *http.Request) {
	users, err := s.store.ListUsers()
	if err != nil {
		serverError(w, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) setUserAccess(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	var req struct {
		AccessLevel int `json:"access_level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.AccessLevel < 0 {
		writeError(w, http.StatusBadRequest, "Access level must not be negative")
		return
	}
	if err := s.syncer.UpdateUserAccessLevel(r.Context(), userID, req.AccessLevel); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": userID, "access_level": req.AccessLevel})
}

func (s *Server) scoreQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Score int `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Score < 0 || req.Score > 100 {
		writeError(w, http.StatusBadRequest, "Score must be between 0 and 100")
		return
	}
	if err := s.svc.RecordScore(id, req.Score); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Question not found")
			return
		}
		serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "mastery_score": req.Score})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.GetLogger().Infof("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

func serverError(w http.ResponseWriter, err error) {
	log.GetLogger().Errorf("Request failed: %v", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
