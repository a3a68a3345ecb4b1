package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/pytestify/internal/convert"
)

// maxSourceBytes bounds a request body.
const maxSourceBytes = 4 << 20

// ConvertRequest is the body of POST /api/v1/convert and /api/v1/diff
type ConvertRequest struct {
	Path     string `json:"path"`
	Source   string `json:"source"`
	Fallback bool   `json:"fallback"`
}

// ConvertResponse reports one conversion
type ConvertResponse struct {
	RunID    string   `json:"run_id"`
	Changed  bool     `json:"changed"`
	Output   string   `json:"output"`
	Imports  []string `json:"imports"`
	Fallback bool     `json:"fallback,omitempty"`
	Diff     string   `json:"diff,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func (s *Server) convertSource(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	resp, ok := s.decodeAndConvert(w, r, &req)
	if !ok {
		return
	}
	s.finish(w, resp)
}

func (s *Server) diffSource(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	resp, ok := s.decodeAndConvert(w, r, &req)
	if !ok {
		return
	}
	if resp.Changed {
		diff, err := convert.UnifiedDiff("a/"+req.Path, "b/"+req.Path, req.Source, resp.Output)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Diff = diff
	}
	resp.Output = ""
	s.finish(w, resp)
}

func (s *Server) decodeAndConvert(w http.ResponseWriter, r *http.Request, req *ConvertRequest) (ConvertResponse, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSourceBytes)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return ConvertResponse{}, false
	}
	if req.Source == "" {
		respondError(w, http.StatusBadRequest, "source is required")
		return ConvertResponse{}, false
	}
	if req.Path == "" {
		req.Path = "test_input.py"
	}

	res := s.converter.ConvertSource(r.Context(), req.Path, req.Source)
	fallback := false
	if res.Err != nil && req.Fallback {
		if fb := s.converter.ConvertFallback(req.Path, req.Source); fb.Changed {
			res, fallback = fb, true
		}
	}

	resp := ConvertResponse{
		RunID:    uuid.New().String(),
		Changed:  res.Changed,
		Output:   res.Output,
		Imports:  res.Imports.Names(),
		Fallback: fallback,
	}
	if resp.Imports == nil {
		resp.Imports = []string{}
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	log.Info().
		Str("run_id", resp.RunID).
		Str("path", req.Path).
		Bool("changed", resp.Changed).
		Bool("fallback", fallback).
		Msg("converted source")
	return resp, true
}

// finish writes resp; failed conversions are 422 with the original text.
func (s *Server) finish(w http.ResponseWriter, resp ConvertResponse) {
	status := http.StatusOK
	if resp.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, resp)
}
