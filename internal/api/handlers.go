package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

type generateRequest struct {
	TargetIndustry string `json:"targetIndustry" validate:"max=100"`
	TargetLocation string `json:"targetLocation" validate:"max=100"`
	Limit          int    `json:"limit" validate:"gte=0"`
}

// generateResponse is the non-streaming result.
type generateResponse struct {
	RunID string `json:"run_id"`
	leadgen.Summary
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}

	plan, err := s.gen.Prepare(r.Context(), leadgen.GenerateRequest{
		OwnerID:  OwnerFrom(r.Context()),
		Industry: req.TargetIndustry,
		Location: req.TargetLocation,
		Limit:    req.Limit,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	stream := s.gen.Start(r.Context(), plan)
	if !wantsStream(r) {
		stream.Detach()
		sum, err := stream.Wait()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, generateResponse{RunID: plan.RunID, Summary: sum})
		return
	}
	s.streamEvents(w, r, plan, stream)
}

// wantsStream reports whether the caller can consume an event stream.
func wantsStream(r *http.Request) bool {
	if v := r.URL.Query().Get("stream"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			return on
		}
	}
	accept := r.Header.Get("Accept")
	return !strings.Contains(accept, "application/json") || strings.Contains(accept, "text/event-stream")
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, plan *leadgen.Plan, stream *leadgen.Stream) {
	log := zap.L().With(zap.String("run_id", plan.RunID))
	w.Header().Set("X-Run-Id", plan.RunID)
	sse, err := openSSE(w)
	if err != nil {
		stream.Detach()
		log.Warn("api: streaming unsupported, run continues detached", zap.Error(err))
		return
	}

	ticker := time.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()

	events := stream.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.event(ev); err != nil {
				log.Info("api: client went away, run continues detached", zap.Error(err))
				stream.Detach()
				return
			}
		case <-ticker.C:
			if err := sse.comment("keep-alive"); err != nil {
				stream.Detach()
				return
			}
		case <-r.Context().Done():
			log.Info("api: client disconnected, run continues detached")
			stream.Detach()
			return
		}
	}
}

type manualRequest struct {
	Leads []leadgen.ManualLead `json:"leads" validate:"required,min=1,dive"`
}

type manualResponse struct {
	Leads  []leadgen.EnrichedLead  `json:"leads"`
	Failed []leadgen.ManualFailure `json:"failed"`
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	if len(req.Leads) > s.cfg.MaxManualLeads {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d leads per request", s.cfg.MaxManualLeads))
		return
	}

	saved, failed := s.gen.ProcessManual(r.Context(), OwnerFrom(r.Context()), req.Leads)
	if failed == nil {
		failed = []leadgen.ManualFailure{}
	}
	writeJSON(w, http.StatusOK, manualResponse{Leads: saved, Failed: failed})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := leadgen.LeadFilter{Status: leadgen.LeadStatus(q.Get("status"))}
	if f.Status != "" {
		if err := s.validate.Var(string(f.Status), "oneof=new contacted qualified rejected converted"); err != nil {
			writeError(w, http.StatusBadRequest, "status is invalid")
			return
		}
	}
	var ok bool
	if f.Limit, ok = intParam(w, q.Get("limit"), "limit", 0, 200); !ok {
		return
	}
	if f.Offset, ok = intParam(w, q.Get("offset"), "offset", 0, -1); !ok {
		return
	}

	leads, err := s.records.ListLeads(r.Context(), OwnerFrom(r.Context()), f)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if leads == nil {
		leads = []leadgen.EnrichedLead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=new contacted qualified rejected converted"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	lead, err := leadgen.UpdateLeadStatus(r.Context(), s.records, OwnerFrom(r.Context()),
		chi.URLParam(r, "id"), leadgen.LeadStatus(req.Status), s.now().UTC())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r.URL.Query().Get("limit"), "limit", 0, 200)
	if !ok {
		return
	}
	runs, err := s.records.ListRunLogs(r.Context(), OwnerFrom(r.Context()), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if runs == nil {
		runs = []leadgen.RunLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// intParam parses an optional non-negative query parameter. max < 0 means
// unbounded.
func intParam(w http.ResponseWriter, raw, name string, def, max int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || (max >= 0 && n > max) {
		writeError(w, http.StatusBadRequest, name+" is invalid")
		return 0, false
	}
	return n, true
}
