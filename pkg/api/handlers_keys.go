package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/pmoura/lsmkv/pkg/lsm"
	"github.com/pmoura/lsmkv/pkg/wal"
)

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, found, err := s.engine.Get(key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, fmt.Sprintf("key %q not found", key))
		return
	}
	respondOK(w, "key found", map[string]any{
		"key":   key,
		"value": string(value),
	})
}

func (s *Server) handlePutKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if err := s.engine.Put(key, value); err != nil {
		respondError(w, writeErrorStatus(err), err.Error())
		return
	}
	respondOK(w, "key stored", map[string]any{"key": key})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.engine.Delete(key); err != nil {
		respondError(w, writeErrorStatus(err), err.Error())
		return
	}
	respondOK(w, "key deleted", map[string]any{"key": key})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.engine.Keys()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, "keys retrieved", map[string]any{
		"count": len(keys),
		"keys":  keys,
	})
}

func (s *Server) handleBatchSet(w http.ResponseWriter, r *http.Request) {
	var req BatchSetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	items := make([]lsm.KeyValue, 0, len(req.Records))
	for _, rec := range req.Records {
		items = append(items, lsm.KeyValue{Key: rec.Key, Value: []byte(rec.Value)})
	}
	stored, err := s.engine.SetBatch(items)
	if err != nil {
		respondError(w, writeErrorStatus(err), fmt.Sprintf("stored %d of %d: %v", stored, len(items), err))
		return
	}
	respondOK(w, "batch stored", map[string]any{"count": stored})
}

func (s *Server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	var req BatchDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	deleted, err := s.engine.DeleteBatch(req.Keys)
	if err != nil {
		respondError(w, writeErrorStatus(err), fmt.Sprintf("deleted %d of %d: %v", deleted, len(req.Keys), err))
		return
	}
	respondOK(w, "batch deleted", map[string]any{"count": deleted})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("q")
	if pattern == "" {
		respondError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	prefix := r.URL.Query().Get("prefix") == "true"

	matches, err := s.engine.Search(pattern, prefix)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	results := make([]map[string]string, 0, len(matches))
	for _, kv := range matches {
		results = append(results, map[string]string{
			"key":   kv.Key,
			"value": string(kv.Value),
		})
	}
	respondOK(w, "search complete", map[string]any{
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Flush(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, "memtable flushed", nil)
}

// writeErrorStatus maps write-path errors onto HTTP statuses: caller
// mistakes are 4xx, everything else is a 500.
func writeErrorStatus(err error) int {
	switch {
	case errors.Is(err, lsm.ErrEmptyKey):
		return http.StatusBadRequest
	case errors.Is(err, wal.ErrRecordTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
