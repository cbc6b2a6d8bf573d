package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the benchmarking API for interactive tools.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL. The token
// is sent as a bearer credential on every request.
func New(base, token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:8080"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// Server is one benchmarkable Artemis deployment known to the API.
type Server struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Cleanup bool   `json:"cleanup"`
	Local   bool   `json:"local"`
}

// ListServers returns the deployments the API can benchmark.
func (c *Client) ListServers(ctx context.Context) ([]Server, error) {
	var servers []Server
	if err := c.do(ctx, http.MethodGet, "/api/servers", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// Simulation mirrors the API simulation payload.
type Simulation struct {
	ID                 string    `json:"ID"`
	Name               string    `json:"Name"`
	Server             string    `json:"Server"`
	Mode               string    `json:"Mode"`
	NumberOfUsers      int       `json:"NumberOfUsers"`
	CustomizeUserRange bool      `json:"CustomizeUserRange"`
	UserRange          string    `json:"UserRange"`
	CourseID           int64     `json:"CourseID"`
	ExamID             int64     `json:"ExamID"`
	CommitsFrom        int       `json:"CommitsFrom"`
	CommitsTo          int       `json:"CommitsTo"`
	InstructorUsername string    `json:"InstructorUsername"`
	CreatedAt          time.Time `json:"CreatedAt"`
}

// CreateSimulationInput captures the payload for simulation creation.
type CreateSimulationInput struct {
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

// CreateSimulation stores a new simulation configuration.
func (c *Client) CreateSimulation(ctx context.Context, input CreateSimulationInput) (Simulation, error) {
	var sim Simulation
	if err := c.do(ctx, http.MethodPost, "/api/simulations", input, &sim); err != nil {
		return Simulation{}, err
	}
	return sim, nil
}

// ListSimulations returns every stored simulation.
func (c *Client) ListSimulations(ctx context.Context) ([]Simulation, error) {
	var sims []Simulation
	if err := c.do(ctx, http.MethodGet, "/api/simulations", nil, &sims); err != nil {
		return nil, err
	}
	return sims, nil
}

// GetSimulation fetches one simulation.
func (c *Client) GetSimulation(ctx context.Context, simulationID string) (Simulation, error) {
	path := fmt.Sprintf("/api/simulations/%s", url.PathEscape(simulationID))
	var sim Simulation
	if err := c.do(ctx, http.MethodGet, path, nil, &sim); err != nil {
		return Simulation{}, err
	}
	return sim, nil
}

// DeleteSimulation removes a simulation and its dependent data.
func (c *Client) DeleteSimulation(ctx context.Context, simulationID string) error {
	path := fmt.Sprintf("/api/simulations/%s", url.PathEscape(simulationID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Run mirrors the API simulation run payload.
type Run struct {
	ID           string     `json:"ID"`
	SimulationID string     `json:"SimulationID"`
	Status       string     `json:"Status"`
	StartTime    time.Time  `json:"StartTime"`
	EndTime      *time.Time `json:"EndTime"`
	ScheduleID   *string    `json:"ScheduleID"`
}

// Terminal reports whether the run reached a final state.
func (r Run) Terminal() bool {
	return r.Status == "FINISHED" || r.Status == "FAILED"
}

// SubmitRun enqueues a run. Admin credentials are optional and only used
// for this one run.
func (c *Client) SubmitRun(ctx context.Context, simulationID, adminUsername, adminPassword string) (Run, error) {
	body := map[string]string{}
	if strings.TrimSpace(adminUsername) != "" {
		body["adminUsername"] = adminUsername
		body["adminPassword"] = adminPassword
	}
	path := fmt.Sprintf("/api/simulations/%s/runs", url.PathEscape(simulationID))
	var run Run
	if err := c.do(ctx, http.MethodPost, path, body, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns fetches a simulation's runs.
func (c *Client) ListRuns(ctx context.Context, simulationID string) ([]Run, error) {
	path := fmt.Sprintf("/api/simulations/%s/runs", url.PathEscape(simulationID))
	var runs []Run
	if err := c.do(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun fetches one run.
func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	path := fmt.Sprintf("/api/runs/%s", url.PathEscape(runID))
	var run Run
	if err := c.do(ctx, http.MethodGet, path, nil, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// CancelRun aborts a queued or running run.
func (c *Client) CancelRun(ctx context.Context, runID string) error {
	path := fmt.Sprintf("/api/runs/%s/cancel", url.PathEscape(runID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// LogMessage is one run log line.
type LogMessage struct {
	ID        string    `json:"ID"`
	RunID     string    `json:"RunID"`
	Message   string    `json:"Message"`
	IsError   bool      `json:"IsError"`
	Timestamp time.Time `json:"Timestamp"`
}

// FetchLogs returns a run's log.
func (c *Client) FetchLogs(ctx context.Context, runID string) ([]LogMessage, error) {
	path := fmt.Sprintf("/api/runs/%s/logs", url.PathEscape(runID))
	var logs []LogMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// StatsBucket is one wall-clock-minute aggregation window.
type StatsBucket struct {
	RunID         string    `json:"RunID"`
	MinuteStart   time.Time `json:"MinuteStart"`
	RequestCount  int64     `json:"RequestCount"`
	AvgDurationNS float64   `json:"AvgDurationNS"`
}

// RunStats is the per-request-type aggregate of a finished run.
type RunStats struct {
	RunID         string `json:"RunID"`
	RequestType   string `json:"RequestType"`
	RequestCount  int64  `json:"RequestCount"`
	AvgDurationNS int64  `json:"AvgDurationNS"`
}

// RunStatsPayload combines live buckets and final totals.
type RunStatsPayload struct {
	Totals  []RunStats    `json:"totals"`
	Buckets []StatsBucket `json:"buckets"`
}

// FetchStats returns timing aggregates for a run.
func (c *Client) FetchStats(ctx context.Context, runID string) (RunStatsPayload, error) {
	path := fmt.Sprintf("/api/runs/%s/stats", url.PathEscape(runID))
	var payload RunStatsPayload
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return RunStatsPayload{}, err
	}
	return payload, nil
}

// CiStatus tracks the drain of the target's build backlog.
type CiStatus struct {
	RunID            string    `json:"RunID"`
	TotalJobs        int       `json:"TotalJobs"`
	QueuedJobs       int       `json:"QueuedJobs"`
	ElapsedMinutes   int       `json:"ElapsedMinutes"`
	AvgJobsPerMinute float64   `json:"AvgJobsPerMinute"`
	Finished         bool      `json:"Finished"`
	UpdatedAt        time.Time `json:"UpdatedAt"`
}

// FetchCiStatus returns a run's CI backlog status.
func (c *Client) FetchCiStatus(ctx context.Context, runID string) (CiStatus, error) {
	path := fmt.Sprintf("/api/runs/%s/ci-status", url.PathEscape(runID))
	var status CiStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return CiStatus{}, err
	}
	return status, nil
}

// Schedule mirrors the API schedule payload.
type Schedule struct {
	ID            string     `json:"ID"`
	SimulationID  string     `json:"SimulationID"`
	Cycle         string     `json:"Cycle"`
	StartDateTime time.Time  `json:"StartDateTime"`
	EndDateTime   *time.Time `json:"EndDateTime"`
	TimeOfDay     time.Time  `json:"TimeOfDay"`
	DayOfWeek     *int       `json:"DayOfWeek"`
	NextRun       *time.Time `json:"NextRun"`
	CreatedAt     time.Time  `json:"CreatedAt"`
}

// CreateScheduleInput captures the payload for schedule creation.
type CreateScheduleInput struct {
	Cycle         string `json:"cycle"`
	StartDateTime string `json:"startDateTime"`
	EndDateTime   string `json:"endDateTime,omitempty"`
	TimeOfDay     string `json:"timeOfDay"`
	DayOfWeek     *int   `json:"dayOfWeek,omitempty"`
}

// CreateSchedule attaches a recurring schedule to a simulation.
func (c *Client) CreateSchedule(ctx context.Context, simulationID string, input CreateScheduleInput) (Schedule, error) {
	path := fmt.Sprintf("/api/simulations/%s/schedules", url.PathEscape(simulationID))
	var schedule Schedule
	if err := c.do(ctx, http.MethodPost, path, input, &schedule); err != nil {
		return Schedule{}, err
	}
	return schedule, nil
}

// ListSchedules fetches a simulation's schedules.
func (c *Client) ListSchedules(ctx context.Context, simulationID string) ([]Schedule, error) {
	path := fmt.Sprintf("/api/simulations/%s/schedules", url.PathEscape(simulationID))
	var schedules []Schedule
	if err := c.do(ctx, http.MethodGet, path, nil, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

// DeleteSchedule removes a schedule and its subscribers.
func (c *Client) DeleteSchedule(ctx context.Context, scheduleID string) error {
	path := fmt.Sprintf("/api/schedules/%s", url.PathEscape(scheduleID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Subscribe registers an email address for a schedule's result mails.
func (c *Client) Subscribe(ctx context.Context, scheduleID, email string) error {
	path := fmt.Sprintf("/api/schedules/%s/subscribe", url.PathEscape(scheduleID))
	return c.do(ctx, http.MethodPost, path, map[string]string{"email": email}, nil)
}

// CreateAccountsInput seeds stored Artemis accounts from printf-style
// patterns, e.g. "student_%d" over range "1-100".
type CreateAccountsInput struct {
	Server          string `json:"server"`
	UsernamePattern string `json:"usernamePattern"`
	PasswordPattern string `json:"passwordPattern"`
	Range           string `json:"range"`
}

// CreateAccounts stores a batch of benchmark accounts.
func (c *Client) CreateAccounts(ctx context.Context, input CreateAccountsInput) (int, error) {
	var resp struct {
		Created int `json:"created"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/accounts", input, &resp); err != nil {
		return 0, err
	}
	return resp.Created, nil
}
