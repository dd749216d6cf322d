package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hyperjump/imgdedup/internal/dedup"
	"github.com/hyperjump/imgdedup/internal/models"
	"github.com/hyperjump/imgdedup/internal/output"
	"github.com/hyperjump/imgdedup/internal/scan"
	"go.uber.org/zap"
)

// DedupeRequest is the body of POST /api/v1/dedupe.
type DedupeRequest struct {
	TargetDir   string   `json:"target_dir"`
	CompareDirs []string `json:"compare_dirs,omitempty"`
	Self        bool     `json:"self"`
	Threshold   *float32 `json:"threshold,omitempty"`
	OutputDir   string   `json:"output_dir,omitempty"`
}

// DedupeResponse wraps the run result with the copy count.
type DedupeResponse struct {
	*models.Result
	Copied int `json:"copied,omitempty"`
}

func (s *Server) handleDedupe(w http.ResponseWriter, r *http.Request) {
	var req DedupeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TargetDir == "" {
		s.respondError(w, http.StatusBadRequest, "target_dir is required")
		return
	}
	if req.Self == (len(req.CompareDirs) > 0) {
		s.respondError(w, http.StatusBadRequest, "exactly one of self or compare_dirs is required")
		return
	}
	var threshold float32
	if req.Threshold != nil {
		threshold = *req.Threshold
		if !(threshold > 0 && threshold <= 1) {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("threshold %v is outside (0,1]", threshold))
			return
		}
	}
	s.logger.Debug("dedupe request",
		zap.String("target_dir", req.TargetDir),
		zap.Strings("compare_dirs", req.CompareDirs),
		zap.Bool("self", req.Self),
	)

	ctx := r.Context()
	targets, err := scan.Dir(ctx, req.TargetDir, s.scan)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var comparisons []string
	if !req.Self {
		comparisons, err = scan.Dirs(ctx, req.CompareDirs, s.scan)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	res, err := s.runner.Run(ctx, dedup.Request{
		Targets:     targets,
		Comparisons: comparisons,
		Self:        req.Self,
		Threshold:   threshold,
	})
	if err != nil {
		s.logger.Error("dedupe failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	resp := DedupeResponse{Result: res}
	if req.OutputDir != "" {
		n, err := output.NewCopier(req.OutputDir, output.WithLogger(s.logger)).CopyAll(ctx, res.Keep)
		if err != nil {
			s.logger.Error("copy failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Copied = n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.cache.Status(r.Context())
	if err != nil {
		s.logger.Error("cache status failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrCacheCorrupt), errors.Is(err, models.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, models.ErrProviderFailure):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
