package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homecore/internal/automation"
)

func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := s.scenes.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list scenes", "error", err)
		writeInternalError(w, "Failed to fetch scenes")
		return
	}
	writeList(w, "scenes", scenes)
}

func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	scene, err := s.scenes.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logDomainError("failed to get scene", err)
		writeDomainError(w, err, "Failed to fetch scene")
		return
	}
	writeJSON(w, http.StatusOK, scene)
}

func (s *Server) handleCreateScene(w http.ResponseWriter, r *http.Request) {
	var scene automation.Scene
	if err := json.NewDecoder(r.Body).Decode(&scene); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if scene.ID == "" || scene.Name == "" || scene.Actions == nil {
		writeBadRequest(w, "id, name, and actions are required")
		return
	}
	if err := scene.Validate(); err != nil {
		writeDomainError(w, err, "Failed to create scene")
		return
	}

	ctx := r.Context()
	if err := s.scenes.Create(ctx, &scene); err != nil {
		s.logDomainError("failed to create scene", err)
		writeDomainError(w, err, "Failed to create scene")
		return
	}
	created, err := s.scenes.GetByID(ctx, scene.ID)
	if err != nil {
		writeDomainError(w, err, "Failed to create scene")
		return
	}
	s.logger.Info("scene created", "scene_id", created.ID, "actions", len(created.Actions))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateScene(w http.ResponseWriter, r *http.Request) {
	var changes automation.Changes
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := changes.Validate(); err != nil {
		writeDomainError(w, err, "Failed to update scene")
		return
	}

	scene, err := s.scenes.Update(r.Context(), chi.URLParam(r, "id"), changes)
	if err != nil {
		s.logDomainError("failed to update scene", err)
		writeDomainError(w, err, "Failed to update scene")
		return
	}
	writeJSON(w, http.StatusOK, scene)
}

func (s *Server) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.scenes.Delete(r.Context(), id); err != nil {
		s.logDomainError("failed to delete scene", err)
		writeDomainError(w, err, "Failed to delete scene")
		return
	}
	s.logger.Info("scene deleted", "scene_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Scene deleted"})
}

// handleExecuteScene runs a scene and reports one result per action.
// Partial failures still return 200.
func (s *Server) handleExecuteScene(w http.ResponseWriter, r *http.Request) {
	exec, err := s.executor.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logDomainError("failed to execute scene", err)
		writeDomainError(w, err, "Failed to execute scene")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     fmt.Sprintf("Scene %q executed", exec.SceneName),
		"results":     exec.Results,
		"duration_ms": exec.DurationMS,
	})
}
