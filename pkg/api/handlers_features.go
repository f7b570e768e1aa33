package api

import (
	"fmt"
	"net/http"
)

func (s *Server) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	set, err := s.features.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, "features retrieved", set)
}

func (s *Server) handleGetFeature(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	set, err := s.features.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	flag, ok := set.Flags[name]
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("feature %q not found", name))
		return
	}
	respondOK(w, "feature retrieved", map[string]any{
		"name":        name,
		"enabled":     flag.Enabled,
		"description": flag.Description,
	})
}

func (s *Server) handleSetFeature(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req SetFeatureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.features.SetFlag(name, req.Enabled, req.Description); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, "feature stored", map[string]any{
		"name":    name,
		"enabled": req.Enabled,
	})
}

func (s *Server) handleDeleteFeature(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.features.DeleteFlag(name); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, "feature deleted", map[string]any{"name": name})
}
