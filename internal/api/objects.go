package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/apartment/internal/model"
	"github.com/seantiz/apartment/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// createObjectRequest is the JSON body for POST /v1/objects.
type createObjectRequest struct {
	Kind string `json:"kind"`
}

// invokeRequest is the JSON body for POST /v1/objects/{id}/invoke.
type invokeRequest struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args"`
}

// invokeResponse reports one completed invocation.
type invokeResponse struct {
	ObjectID   string          `json:"object_id"`
	Seq        int             `json:"seq"`
	Op         string          `json:"op"`
	Result     json.RawMessage `json:"result,omitempty"`
	DurationMS int             `json:"duration_ms"`
}

// listObjectsResponse wraps the paginated list response.
type listObjectsResponse struct {
	Objects []*model.Object `json:"objects"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// invocationsResponse is the JSON response for GET /v1/objects/{id}/invocations.
type invocationsResponse struct {
	ObjectID    string             `json:"object_id"`
	Invocations []model.Invocation `json:"invocations"`
}

func (s *Server) handleCreateObject(w http.ResponseWriter, r *http.Request) {
	var req createObjectRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Kind == "" {
		s.writeError(w, http.StatusBadRequest, "kind is required")
		return
	}

	obj, err := s.engine.Create(r.Context(), req.Kind)
	observeObjectOp(actionCreate, err)
	if err != nil {
		s.writeEngineError(w, "create object", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, obj)
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	obj, err := s.store.GetObject(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "object not found")
		return
	}
	if err != nil {
		s.logger.Error("get object", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get object")
		return
	}

	s.writeJSON(w, http.StatusOK, obj)
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	objects, total, err := s.store.ListObjects(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list objects", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list objects")
		return
	}

	if objects == nil {
		objects = []*model.Object{}
	}

	s.writeJSON(w, http.StatusOK, listObjectsResponse{
		Objects: objects,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

func (s *Server) handleInvokeObject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req invokeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Op == "" {
		s.writeError(w, http.StatusBadRequest, "op is required")
		return
	}

	inv, err := s.engine.Invoke(r.Context(), id, req.Op, req.Args)
	observeObjectOp(actionInvoke, err)
	if err != nil {
		s.writeEngineError(w, "invoke object", err)
		return
	}

	s.writeJSON(w, http.StatusOK, invokeResponse{
		ObjectID:   id,
		Seq:        inv.Seq,
		Op:         inv.Op,
		Result:     json.RawMessage(inv.Result),
		DurationMS: inv.DurationMS,
	})
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetObject(r.Context(), id); err != nil {
		s.writeEngineError(w, "get object", err)
		return
	}

	invs, err := s.store.GetInvocations(r.Context(), id)
	if err != nil {
		s.logger.Error("get invocations", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get invocations")
		return
	}
	if invs == nil {
		invs = []model.Invocation{}
	}

	s.writeJSON(w, http.StatusOK, invocationsResponse{
		ObjectID:    id,
		Invocations: invs,
	})
}

func (s *Server) handleReleaseObject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.engine.Release(r.Context(), id)
	observeObjectOp(actionRelease, err)
	if err != nil {
		s.writeEngineError(w, "release object", err)
		return
	}

	obj, err := s.store.GetObject(r.Context(), id)
	if err != nil {
		s.logger.Error("get released object", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve object")
		return
	}

	s.writeJSON(w, http.StatusOK, obj)
}
