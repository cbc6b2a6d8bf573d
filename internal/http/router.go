package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/account"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/ci"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/schedule"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/simulation"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/stats"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/ws"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/config"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	simulations *simulation.Service
	schedules   *schedule.Service
	stats       *stats.Service
	ci          *ci.Poller
	accounts    *account.Service
	hub         *ws.Hub
	servers     []config.ArtemisServer
	upgrader    websocket.Upgrader
	limiter     RateLimiter
	adminToken  string
	dbHealth    func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault    = time.Minute
	rateWindowRealtime   = 30 * time.Second
	rateLimitWrite       = 60
	rateLimitRead        = 240
	rateLimitStream      = 30
	rateLimitUnsubscribe = 30
	healthCheckTimeout   = 2 * time.Second
	sseHeartbeatInterval = 20 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(
	logger *slog.Logger,
	simulationSvc *simulation.Service,
	scheduleSvc *schedule.Service,
	statsSvc *stats.Service,
	ciPoller *ci.Poller,
	accountSvc *account.Service,
	hub *ws.Hub,
	servers []config.ArtemisServer,
	limiter RateLimiter,
	adminToken string,
	dbHealth func(context.Context) error,
) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		simulations: simulationSvc,
		schedules:   scheduleSvc,
		stats:       statsSvc,
		ci:          ciPoller,
		accounts:    accountSvc,
		hub:         hub,
		servers:     servers,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    limiter,
		adminToken: strings.TrimSpace(adminToken),
		dbHealth:   dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.HandleFunc("/api/servers", r.audit("/api/servers", r.handlerAuthRate("/api/servers", rateLimitRead, rateWindowDefault, r.handleServers)))
	r.mux.HandleFunc("/api/accounts", r.audit("/api/accounts", r.handlerAuthRate("/api/accounts", rateLimitWrite, rateWindowDefault, r.handleAccounts)))
	r.mux.HandleFunc("/api/accounts/", r.audit("/api/accounts/:id", r.handlerAuthRate("/api/accounts/:id", rateLimitWrite, rateWindowDefault, r.handleAccountByID)))
	r.mux.HandleFunc("/api/simulations", r.audit("/api/simulations", r.handlerAuthRate("/api/simulations", rateLimitWrite, rateWindowDefault, r.handleSimulations)))
	r.mux.HandleFunc("/api/simulations/", r.audit("/api/simulations/:id", r.handlerAuthRate("/api/simulations/:id", rateLimitWrite, rateWindowDefault, r.handleSimulationSubroutes)))
	r.mux.HandleFunc("/api/runs/", r.audit("/api/runs/:id", r.handleRunSubroutes))
	r.mux.HandleFunc("/api/schedules/unsubscribe", r.audit("/api/schedules/unsubscribe", r.withRateLimit("/api/schedules/unsubscribe", rateLimitUnsubscribe, rateWindowDefault, r.handleUnsubscribe)))
	r.mux.HandleFunc("/api/schedules/", r.audit("/api/schedules/:id", r.handlerAuthRate("/api/schedules/:id", rateLimitWrite, rateWindowDefault, r.handleScheduleSubroutes)))
	r.mux.HandleFunc("/api/ws/runs", r.audit("/api/ws/runs", r.handlerAuthRate("/api/ws/runs", rateLimitStream, rateWindowRealtime, r.handleRunWS)))
}

// writeServiceError maps service errors onto HTTP status codes.
func (r *Router) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, simulation.ErrValidation), errors.Is(err, schedule.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, simulation.ErrRunTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (r *Router) handleServers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	type serverInfo struct {
		Name    string `json:"name"`
		URL     string `json:"url"`
		Cleanup bool   `json:"cleanup"`
		Local   bool   `json:"local"`
	}
	out := make([]serverInfo, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, serverInfo{Name: s.Name, URL: s.URL, Cleanup: s.Cleanup, Local: s.Local})
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleAccounts(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Server          string `json:"server"`
		Index           int    `json:"index"`
		Username        string `json:"username"`
		Password        string `json:"password"`
		IsAdmin         bool   `json:"isAdmin"`
		UsernamePattern string `json:"usernamePattern"`
		PasswordPattern string `json:"passwordPattern"`
		Range           string `json:"range"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.UsernamePattern != "" {
		created, err := r.accounts.CreateAccountsFromPattern(req.Context(), payload.Server, payload.UsernamePattern, payload.PasswordPattern, payload.Range)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int{"created": created})
		return
	}
	acct, err := r.accounts.CreateAccount(req.Context(), payload.Server, payload.Index, domain.Credentials{
		Username: payload.Username,
		Password: payload.Password,
	}, payload.IsAdmin)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (r *Router) handleAccountByID(w http.ResponseWriter, req *http.Request) {
	accountID := strings.TrimPrefix(req.URL.Path, "/api/accounts/")
	if accountID == "" || strings.Contains(accountID, "/") {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	if err := r.accounts.DeleteAccount(req.Context(), accountID); err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (r *Router) handleSimulations(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Name               string `json:"name"`
			Server             string `json:"server"`
			Mode               string `json:"mode"`
			NumberOfUsers      int    `json:"numberOfUsers"`
			CustomizeUserRange bool   `json:"customizeUserRange"`
			UserRange          string `json:"userRange"`
			CourseID           int64  `json:"courseId"`
			ExamID             int64  `json:"examId"`
			CommitsFrom        int    `json:"commitsFrom"`
			CommitsTo          int    `json:"commitsTo"`
			InstructorUsername string `json:"instructorUsername"`
			InstructorPassword string `json:"instructorPassword"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		sim, err := r.simulations.CreateSimulation(req.Context(), simulation.CreateParams{
			Name:               payload.Name,
			Server:             payload.Server,
			Mode:               domain.Mode(payload.Mode),
			NumberOfUsers:      payload.NumberOfUsers,
			CustomizeUserRange: payload.CustomizeUserRange,
			UserRange:          payload.UserRange,
			CourseID:           payload.CourseID,
			ExamID:             payload.ExamID,
			CommitsFrom:        payload.CommitsFrom,
			CommitsTo:          payload.CommitsTo,
			InstructorUsername: payload.InstructorUsername,
			InstructorPassword: payload.InstructorPassword,
		})
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sim)
	case http.MethodGet:
		sims, err := r.simulations.ListSimulations(req.Context())
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sims)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleSimulationSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/simulations/")
	parts := strings.Split(trimmed, "/")
	simulationID := parts[0]
	if simulationID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleSimulationByID(w, req, simulationID)
	case len(parts) == 2 && parts[1] == "runs":
		r.handleSimulationRuns(w, req, simulationID)
	case len(parts) == 2 && parts[1] == "schedules":
		r.handleSimulationSchedules(w, req, simulationID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleSimulationByID(w http.ResponseWriter, req *http.Request, simulationID string) {
	switch req.Method {
	case http.MethodGet:
		sim, err := r.simulations.GetSimulation(req.Context(), simulationID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sim)
	case http.MethodDelete:
		if err := r.simulations.DeleteSimulation(req.Context(), simulationID); err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleSimulationRuns(w http.ResponseWriter, req *http.Request, simulationID string) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			AdminUsername string `json:"adminUsername"`
			AdminPassword string `json:"adminPassword"`
		}
		if req.Body != nil {
			_ = json.NewDecoder(req.Body).Decode(&payload)
		}
		var adminAccount *domain.Credentials
		if payload.AdminUsername != "" {
			adminAccount = &domain.Credentials{
				Username: payload.AdminUsername,
				Password: payload.AdminPassword,
			}
		}
		run, err := r.simulations.SubmitRun(req.Context(), simulationID, adminAccount)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, run)
	case http.MethodGet:
		runs, err := r.simulations.ListRuns(req.Context(), simulationID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleSimulationSchedules(w http.ResponseWriter, req *http.Request, simulationID string) {
	switch req.Method {
	case http.MethodPost:
		params, err := decodeScheduleParams(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, err := r.schedules.CreateSchedule(req.Context(), simulationID, params)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		schedules, err := r.schedules.ListSchedules(req.Context(), simulationID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, schedules)
	default:
		r.methodNotAllowed(w)
	}
}

// handleRunSubroutes dispatches /api/runs/{id}[/...]. The SSE stream carries
// its own auth and rate limit because EventSource cannot set headers.
func (r *Router) handleRunSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/runs/")
	parts := strings.Split(trimmed, "/")
	runID := parts[0]
	if runID == "" {
		r.notFound(w)
		return
	}
	if len(parts) == 2 && parts[1] == "stream" {
		r.handlerAuthRate("/api/runs/:id/stream", rateLimitStream, rateWindowRealtime, func(w http.ResponseWriter, req *http.Request) {
			r.handleRunStream(w, req, runID)
		})(w, req)
		return
	}
	r.handlerAuthRate("/api/runs/:id", rateLimitRead, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
		switch {
		case len(parts) == 1:
			r.handleRunByID(w, req, runID)
		case len(parts) == 2 && parts[1] == "cancel":
			r.handleRunCancel(w, req, runID)
		case len(parts) == 2 && parts[1] == "logs":
			r.handleRunLogs(w, req, runID)
		case len(parts) == 2 && parts[1] == "stats":
			r.handleRunStats(w, req, runID)
		case len(parts) == 2 && parts[1] == "ci-status":
			r.handleRunCiStatus(w, req, runID)
		default:
			r.notFound(w)
		}
	})(w, req)
}

func (r *Router) handleRunByID(w http.ResponseWriter, req *http.Request, runID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	run, err := r.simulations.GetRun(req.Context(), runID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (r *Router) handleRunCancel(w http.ResponseWriter, req *http.Request, runID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if err := r.simulations.CancelRun(req.Context(), runID); err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelled"})
}

func (r *Router) handleRunLogs(w http.ResponseWriter, req *http.Request, runID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	logs, err := r.simulations.ListLogMessages(req.Context(), runID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (r *Router) handleRunStats(w http.ResponseWriter, req *http.Request, runID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	buckets, err := r.stats.Snapshot(req.Context(), runID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	totals, err := r.stats.RunStats(req.Context(), runID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totals":  totals,
		"buckets": buckets,
	})
}

func (r *Router) handleRunCiStatus(w http.ResponseWriter, req *http.Request, runID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	status, err := r.ci.Status(req.Context(), runID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleRunStream subscribes the caller to live run events over SSE.
func (r *Router) handleRunStream(w http.ResponseWriter, req *http.Request, runID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Register(runID, client)
	defer func() {
		r.hub.Unregister(runID, client)
		client.Close()
	}()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleRunWS(w http.ResponseWriter, req *http.Request) {
	runID := req.URL.Query().Get("run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id query parameter required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(runID, client)
	go func() {
		defer func() {
			r.hub.Unregister(runID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleScheduleSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/schedules/")
	parts := strings.Split(trimmed, "/")
	scheduleID := parts[0]
	if scheduleID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleScheduleByID(w, req, scheduleID)
	case len(parts) == 2 && parts[1] == "subscribe":
		r.handleScheduleSubscribe(w, req, scheduleID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleScheduleByID(w http.ResponseWriter, req *http.Request, scheduleID string) {
	switch req.Method {
	case http.MethodGet:
		sched, err := r.schedules.GetSchedule(req.Context(), scheduleID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sched)
	case http.MethodPut:
		params, err := decodeScheduleParams(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := r.schedules.UpdateSchedule(req.Context(), scheduleID, params)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := r.schedules.DeleteSchedule(req.Context(), scheduleID); err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleScheduleSubscribe(w http.ResponseWriter, req *http.Request, scheduleID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	subscriber, err := r.schedules.Subscribe(req.Context(), scheduleID, payload.Email)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, subscriber)
}

// handleUnsubscribe is reached from mail links; the signed token is the only
// authentication.
func (r *Router) handleUnsubscribe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	token := strings.TrimSpace(req.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "token query parameter required")
		return
	}
	if err := r.schedules.Unsubscribe(req.Context(), token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid unsubscribe token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// timeOfDayLayouts accepts the clock formats mails and clients send.
var timeOfDayLayouts = []string{"15:04", "15:04:05", time.RFC3339}

func decodeScheduleParams(req *http.Request) (schedule.CreateParams, error) {
	var payload struct {
		Cycle         string `json:"cycle"`
		StartDateTime string `json:"startDateTime"`
		EndDateTime   string `json:"endDateTime"`
		TimeOfDay     string `json:"timeOfDay"`
		DayOfWeek     *int   `json:"dayOfWeek"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		return schedule.CreateParams{}, errors.New("invalid JSON body")
	}
	params := schedule.CreateParams{Cycle: domain.Cycle(payload.Cycle)}

	if payload.StartDateTime != "" {
		start, err := time.Parse(time.RFC3339, payload.StartDateTime)
		if err != nil {
			return schedule.CreateParams{}, errors.New("invalid startDateTime, want RFC 3339")
		}
		params.StartDateTime = start
	}
	if payload.EndDateTime != "" {
		end, err := time.Parse(time.RFC3339, payload.EndDateTime)
		if err != nil {
			return schedule.CreateParams{}, errors.New("invalid endDateTime, want RFC 3339")
		}
		params.EndDateTime = &end
	}
	if payload.TimeOfDay != "" {
		tod, err := parseTimeOfDay(payload.TimeOfDay)
		if err != nil {
			return schedule.CreateParams{}, err
		}
		params.TimeOfDay = tod
	}
	if payload.DayOfWeek != nil {
		if *payload.DayOfWeek < 0 || *payload.DayOfWeek > 6 {
			return schedule.CreateParams{}, errors.New("dayOfWeek must be 0 (Sunday) through 6 (Saturday)")
		}
		dow := time.Weekday(*payload.DayOfWeek)
		params.DayOfWeek = &dow
	}
	return params, nil
}

func parseTimeOfDay(value string) (time.Time, error) {
	for _, layout := range timeOfDayLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errors.New("invalid timeOfDay, want HH:MM")
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
