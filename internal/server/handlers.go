package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/bulk"
	"github.com/sells-group/prospect-enricher/internal/enrich"
	"github.com/sells-group/prospect-enricher/internal/importjob"
	"github.com/sells-group/prospect-enricher/internal/llm"
	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
)

// singleResponse is the body of POST /v1/enrich/single.
type singleResponse struct {
	Success            bool                 `json:"success"`
	Message            string               `json:"message,omitempty"`
	ContactsFound      int                  `json:"contactsFound,omitempty"`
	CompanyNameUpdated bool                 `json:"companyNameUpdated,omitempty"`
	Error              string               `json:"error,omitempty"`
	NotViable          bool                 `json:"notViable,omitempty"`
	TLD                string               `json:"tld,omitempty"`
	Status             model.ProspectStatus `json:"status,omitempty"`
}

func (s *Server) handleEnrichSingle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProspectID string `json:"prospect_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.ProspectID = strings.TrimSpace(req.ProspectID)
	if req.ProspectID == "" {
		writeError(w, http.StatusBadRequest, "prospect_id is required")
		return
	}

	res, err := s.d.Enricher.Enrich(r.Context(), req.ProspectID)
	switch {
	case eris.Is(err, enrich.ErrAlreadyAttempted), eris.Is(err, enrich.ErrLeaseLost):
		writeJSON(w, http.StatusConflict, singleResponse{Error: res.Message, Status: res.Status})
		return
	case eris.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, singleResponse{Error: "prospect not found"})
		return
	case err != nil:
		zap.L().Error("server: single enrichment", zap.String("prospect", req.ProspectID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, singleResponse{Error: "enrichment failed"})
		return
	}

	writeJSON(w, singleStatus(res), singleBody(res))
}

func singleStatus(res *enrich.Result) int {
	switch {
	case res.Skipped:
		return http.StatusConflict
	case res.Failure == llm.FailureRateLimited:
		return http.StatusTooManyRequests
	case res.Failure == llm.FailurePaymentRequired:
		return http.StatusPaymentRequired
	case res.Failure != llm.FailureNone:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

func singleBody(res *enrich.Result) singleResponse {
	body := singleResponse{
		Success:            res.Succeeded(),
		ContactsFound:      res.ContactsFound,
		CompanyNameUpdated: res.CompanyNameUpdated,
		NotViable:          res.NotViable,
		TLD:                res.TLD,
		Status:             res.Status,
	}
	if res.Skipped || res.Failure != llm.FailureNone {
		body.Error = res.Message
	} else {
		body.Message = res.Message
	}
	return body
}

func (s *Server) handleEnrichBulk(w http.ResponseWriter, r *http.Request) {
	var req bulk.Request
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.d.Bulk.Start(r.Context(), req)
	switch {
	case eris.Is(err, bulk.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case eris.Is(err, bulk.ErrJobRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	case eris.Is(err, bulk.ErrNoEligible):
		writeError(w, http.StatusConflict, "every requested prospect has already been attempted")
		return
	case err != nil:
		zap.L().Error("server: start bulk job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start bulk job")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	// The job keeps running if the client goes away; Drain empties the
	// channel regardless.
	bulk.NewNDJSONWriter(w).Drain(run.Events())
}

func (s *Server) handleStopJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.d.Store.RequestStop(r.Context(), id); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		zap.L().Error("server: stop job", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not stop job")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": id, "status": "stopping"})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.d.Store.GetJob(r.Context(), id)
	if err != nil {
		s.notFoundOr500(w, err, "job")
		return
	}
	items, err := s.d.Store.ListJobItems(r.Context(), id)
	if err != nil {
		s.notFoundOr500(w, err, "job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job, "items": items})
}

func (s *Server) handleImportProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID string `json:"jobId"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.JobID == "" {
		writeError(w, http.StatusBadRequest, "jobId is required")
		return
	}

	res, err := s.d.Imports.Resume(r.Context(), req.JobID)
	if err != nil {
		if eris.Is(err, importjob.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "import job not found")
			return
		}
		zap.L().Error("server: import chunk", zap.String("job_id", req.JobID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": string(importjob.StatusFailed), "error": "import chunk failed"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.d.Imports.Cancel(r.Context(), id)
	if err != nil {
		if eris.Is(err, importjob.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "import job not found")
			return
		}
		zap.L().Error("server: cancel import", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not cancel import")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jobId": id, "status": string(job.Status)})
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	job, err := s.d.Store.GetImportJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.notFoundOr500(w, err, "import job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetProspect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.d.Store.GetProspect(r.Context(), id)
	if err != nil {
		s.notFoundOr500(w, err, "prospect")
		return
	}
	contacts, err := s.d.Store.ListContacts(r.Context(), id)
	if err != nil {
		s.notFoundOr500(w, err, "prospect")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prospect": p, "contacts": contacts})
}

// handleResetProspect is the manual-review escape hatch. Reset clears the
// lease, so a prospect whose lease is still live is refused whatever its
// status; a bulk job holds leases on prospects it has not reached yet.
func (s *Server) handleResetProspect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	ttl := s.d.LeaseTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	err := s.d.Store.ResetProspect(ctx, id, "Manual review: reset for another enrichment attempt", time.Now().Add(-ttl))
	if eris.Is(err, store.ErrConflict) {
		writeError(w, http.StatusConflict, "prospect is leased by a running enrichment; try again when it finishes")
		return
	}
	if err != nil {
		s.notFoundOr500(w, err, "prospect")
		return
	}
	p, err := s.d.Store.GetProspect(ctx, id)
	if err != nil {
		s.notFoundOr500(w, err, "prospect")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) notFoundOr500(w http.ResponseWriter, err error, what string) {
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	zap.L().Error("server: "+what, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
