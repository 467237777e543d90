package server

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jonathan/resume-orchestrator/internal/pipeline"
	"github.com/jonathan/resume-orchestrator/internal/service"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

// handleHealth reports component health. Degraded services answer 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.service.Health(r.Context())
	status := http.StatusOK
	if report.Status != service.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	s.jsonResponse(w, status, report)
}

// handleProviders lists provider availability.
func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.service.Providers())
}

// handleCreateRun creates a run. With ?wait=true the pipeline runs inline and
// the final record is returned; otherwise the pending run is returned with 202.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var cfg types.RunConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		s.handleError(w, r, err)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		run, err := s.service.RunSync(r.Context(), cfg)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, run)
		return
	}

	run, err := s.service.CreateRun(r.Context(), cfg)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/runs/"+run.ID)
	s.jsonResponse(w, http.StatusAccepted, run)
}

// handleListRuns lists run summaries, optionally filtered by status.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := service.ListQuery{Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.handleError(w, r, &types.ValidationError{Field: "limit", Message: "must be an integer", Cause: err})
			return
		}
		if limit == 0 {
			s.handleError(w, r, &types.ValidationError{Field: "limit", Message: "must be between 1 and 100"})
			return
		}
		q.Limit = limit
	}

	list, err := s.service.ListRuns(r.Context(), q)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, list)
}

// handleGetRun returns the full run record.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleGetArtifact returns the download location of the compiled resume.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	ref, err := s.service.Artifact(r.Context(), r.PathValue("id"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"downloadUrl": ref.DownloadURL})
}

// handleDownloadArtifact streams the compiled PDF.
func (s *Server) handleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ref, err := s.service.Artifact(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	f, err := os.Open(ref.Path)
	if err != nil {
		if os.IsNotExist(err) {
			s.errorResponse(w, http.StatusNotFound, "artifact file is missing")
			return
		}
		s.handleError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="resume-`+id+`.pdf"`)
	http.ServeContent(w, r, "resume.pdf", ref.CreatedAt, f)
}

// handleResubmitRun reopens a run waiting for review.
func (s *Server) handleResubmitRun(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ResubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	run, err := s.service.ResubmitRun(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, run)
}

// handleCancelRun cancels a run. Running runs stop at the next stage boundary.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.CancelRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, run)
}

// handleRunEvents streams progress events for a run until it reaches a
// resting status or the client disconnects.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, unsubscribe := s.service.Coordinator().Events().Subscribe(id)
	defer unsubscribe()

	run, err := s.service.GetRun(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := sse.WriteEvent("run", run.Summarize()); err != nil {
		return
	}
	if resting(run.Status) {
		sse.WriteComplete(run.ID, run.Status)
		return
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// Status events can be dropped for slow subscribers.
			if current, err := s.service.GetRun(r.Context(), id); err == nil && resting(current.Status) {
				drainEvents(sse, events)
				sse.WriteComplete(id, current.Status)
				return
			}
			if err := sse.WriteComment("keep-alive"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.WriteEvent(string(ev.Type), ev); err != nil {
				return
			}
			if ev.Final() {
				sse.WriteComplete(id, ev.Status)
				return
			}
		}
	}
}

// drainEvents forwards events already buffered for the stream.
func drainEvents(sse *SSEWriter, events <-chan pipeline.ProgressEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.WriteEvent(string(ev.Type), ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

func resting(status types.RunStatus) bool {
	return status.Terminal() || status == types.StatusNeedsReview
}
