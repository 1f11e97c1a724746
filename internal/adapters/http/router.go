package httpadapter

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/4747uwu/radportal/internal/config"
	"github.com/4747uwu/radportal/internal/core/domain"
	"github.com/4747uwu/radportal/internal/core/ports"
	"github.com/4747uwu/radportal/internal/observability/metrics"
)

const (
	userIDHeader   = "X-User-Id"
	userRoleHeader = "X-User-Role"

	serviceName      = "api"
	exportRowLimit   = 1000
	backpressureWait = 100 * time.Millisecond
)

// WorklistExporter renders a study listing into a downloadable workbook.
type WorklistExporter interface {
	WriteXLSX(out io.Writer, studies []domain.Study) (int, error)
}

type Router struct {
	cfg       config.Config
	registrar ports.StudyRegistrar
	workflow  ports.WorkflowService
	resetter  ports.BaselineResetter
	dashboard ports.DashboardService
	reader    ports.StudyReader
	exporter  WorklistExporter
	metrics   *metrics.HTTPServerMetrics
	now       func() time.Time
}

func NewRouter(
	cfg config.Config,
	registrar ports.StudyRegistrar,
	workflow ports.WorkflowService,
	resetter ports.BaselineResetter,
	dashboard ports.DashboardService,
	reader ports.StudyReader,
	exporter WorklistExporter,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:       cfg,
		registrar: registrar,
		workflow:  workflow,
		resetter:  resetter,
		dashboard: dashboard,
		reader:    reader,
		exporter:  exporter,
		metrics:   m,
		now:       time.Now,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/studies", rt.studiesCollection)
	mux.HandleFunc("/v1/studies/", rt.studyResource)
	mux.HandleFunc("/v1/dashboard/counts", rt.dashboardCounts)
	mux.HandleFunc("/v1/worklist/export", rt.exportWorklist)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) studiesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.createStudy(w, r)
	case http.MethodGet:
		rt.listStudies(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) createStudy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID              string `json:"id"`
		AccessionNumber string `json:"accession_number"`
		PatientName     string `json:"patient_name"`
		Modality        string `json:"modality"`
		Location        string `json:"location"`
		StudyDate       string `json:"study_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	input := domain.RegistrationInput{
		ID:              strings.TrimSpace(req.ID),
		AccessionNumber: strings.TrimSpace(req.AccessionNumber),
		PatientName:     strings.TrimSpace(req.PatientName),
		Modality:        strings.TrimSpace(req.Modality),
		Location:        strings.TrimSpace(req.Location),
	}
	if req.StudyDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.StudyDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "study_date must be RFC 3339"})
			return
		}
		input.StudyDate = &parsed
	}

	study, err := rt.registrar.Register(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, study)
}

func (rt *Router) listStudies(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	scope, err := parseScope(query, rt.now())
	if err != nil {
		writeError(w, err)
		return
	}

	studies, err := rt.dashboard.ListStudies(r.Context(), scope, domain.Category(query.Get("category")), parsePage(query))
	if err != nil {
		writeError(w, err)
		return
	}

	projections := make([]domain.StudyProjection, 0, len(studies))
	for i := range studies {
		projections = append(projections, studies[i].Projection())
	}
	writeJSON(w, http.StatusOK, map[string]any{"studies": projections, "count": len(projections)})
}

// studyResource dispatches /v1/studies/{id} and its sub-resources.
func (rt *Router) studyResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/studies/")
	id, action := rest, ""
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		id, action = rest[:idx], rest[idx+1:]
	}
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "study id is required"})
		return
	}

	switch action {
	case "":
		rt.getStudy(w, r, id)
	case "tat":
		rt.getStudyTAT(w, r, id)
	case "transition":
		rt.transitionStudy(w, r, id)
	case "reset-upload-time":
		rt.resetUploadTime(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown study resource"})
	}
}

func (rt *Router) getStudy(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	study, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, study)
}

func (rt *Router) getStudyTAT(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	study, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	// Computed fresh against the current clock; the persisted snapshot is
	// returned alongside for callers comparing against the last commit.
	current := domain.CalculateTAT(study.Milestones(), rt.now().UTC())
	writeJSON(w, http.StatusOK, map[string]any{
		"study_id": study.ID,
		"current":  current,
		"stored":   study.CalculatedTAT,
	})
}

func (rt *Router) transitionStudy(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Status   string `json:"status"`
		DoctorID string `json:"doctor_id"`
		Priority string `json:"priority"`
		Note     string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	target, err := domain.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := rt.workflow.Transition(r.Context(), id, target, actorFromRequest(r), domain.TransitionOptions{
		DoctorID: strings.TrimSpace(req.DoctorID),
		Priority: strings.TrimSpace(req.Priority),
		Note:     strings.TrimSpace(req.Note),
	})
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordTransition(serviceName, string(target), "error")
			if domain.IsKind(err, domain.ErrConflict) {
				rt.metrics.RecordTransitionConflict(serviceName)
			}
		}
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordTransition(serviceName, string(result.NewStatus), "success")
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) resetUploadTime(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	result, err := rt.resetter.ResetBaseline(r.Context(), id, actorFromRequest(r))
	if err != nil {
		// The baseline may have committed even though recomputation
		// failed. Report the commit; the worker heals the snapshot.
		if domain.IsKind(err, domain.ErrRecalculation) && result != nil {
			if rt.metrics != nil {
				rt.metrics.RecordReset(serviceName, "degraded")
			}
			writeJSON(w, http.StatusAccepted, map[string]any{
				"study_id":   result.StudyID,
				"reset_time": result.ResetTime,
				"snapshot":   nil,
				"warning":    "tat recalculation pending",
			})
			return
		}
		if rt.metrics != nil {
			rt.metrics.RecordReset(serviceName, "error")
		}
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordReset(serviceName, "success")
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) dashboardCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	scope, err := parseScope(r.URL.Query(), rt.now())
	if err != nil {
		writeError(w, err)
		return
	}
	counts, err := rt.dashboard.GetCounts(r.Context(), scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (rt *Router) exportWorklist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	query := r.URL.Query()
	scope, err := parseScope(query, rt.now())
	if err != nil {
		writeError(w, err)
		return
	}

	studies, err := rt.dashboard.ListStudies(r.Context(), scope, domain.Category(query.Get("category")), domain.Page{Limit: exportRowLimit})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="worklist.xlsx"`)
	rows, err := rt.exporter.WriteXLSX(w, studies)
	if err != nil {
		// Headers are out; all that is left is to cut the stream short.
		slog.Error("worklist_export_failed",
			"request_id", requestIDFromContext(r.Context()),
			"rows", len(studies),
			"error", err,
		)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExport(serviceName, rows)
	}
}

func actorFromRequest(r *http.Request) domain.Actor {
	return domain.Actor{
		ID:   strings.TrimSpace(r.Header.Get(userIDHeader)),
		Role: domain.Role(strings.TrimSpace(strings.ToLower(r.Header.Get(userRoleHeader)))),
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
