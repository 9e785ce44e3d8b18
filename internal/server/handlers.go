package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/compliance-reviewer/internal/db"
	"github.com/jonathan/compliance-reviewer/internal/ingestion"
	"github.com/jonathan/compliance-reviewer/internal/manual"
	"github.com/jonathan/compliance-reviewer/internal/pipeline"
	"github.com/jonathan/compliance-reviewer/internal/types"
)

// NormalizeResponse represents the response for /normalize
type NormalizeResponse struct {
	Text     string              `json:"text"`
	Metadata *ingestion.Metadata `json:"metadata"`
}

// RulesResponse represents the response for /rules
type RulesResponse struct {
	Versions []string `json:"versions"`
}

// RunResponse represents the response for /runs/{id}
type RunResponse struct {
	Run          *db.Run                `json:"run"`
	Applications []db.ApplicationResult `json:"applications"`
}

// decode reads a JSON body and runs its validate tags.
func decode[T interface{ Validate() error }](r *http.Request, req T) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return &ErrValidation{Message: "invalid request body: " + err.Error()}
	}
	if err := req.Validate(); err != nil {
		return requestError(err)
	}
	return nil
}

// handleValidate validates one application's text against its rule set
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req types.ValidateRequest
	if err := decode(r, &req); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	outcome, err := s.runner.RunApplication(r.Context(), pipeline.Input{
		ApplicationID: req.ApplicationID,
		Text:          req.Text,
		YearCode:      req.YearCode,
		SkipCache:     req.SkipCache,
	})
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, outcome)
}

// handleCompare reconciles supplied verdicts with a manual review
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req types.CompareRequest
	if err := decode(r, &req); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	entries := manual.ForApplication(req.ManualEntries, req.ApplicationID)
	comparison := s.runner.Comparator.CompareApplication(req.ApplicationID, req.Results, entries)
	s.jsonResponse(w, http.StatusOK, comparison)
}

// handleNormalize normalizes raw extracted text
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req types.NormalizeRequest
	if err := decode(r, &req); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	text, metadata, err := pipeline.Normalize(r.Context(), pipeline.Input{Text: req.Text})
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, NormalizeResponse{Text: text, Metadata: metadata})
}

// handleListRules lists the available rule set versions
func (s *Server) handleListRules(w http.ResponseWriter, _ *http.Request) {
	versions, err := s.runner.Rules.Versions()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if versions == nil {
		versions = []string{}
	}
	s.jsonResponse(w, http.StatusOK, RulesResponse{Versions: versions})
}

// handleGetRules returns the rule set used for a year code
func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	ruleSet, err := s.runner.Rules.Load(r.PathValue("year"))
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, ruleSet)
}

// handleGetRun returns a recorded run and its per-application results
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.errorResponse(w, http.StatusNotFound, "Run history is not enabled")
		return
	}
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID format")
		return
	}

	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if run == nil {
		err := &ErrNotFound{Resource: "run", ID: runID.String()}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	results, err := s.runs.ListApplicationResults(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if results == nil {
		results = []db.ApplicationResult{}
	}
	s.jsonResponse(w, http.StatusOK, RunResponse{Run: run, Applications: results})
}
