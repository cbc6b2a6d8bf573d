package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apiclient "github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/api/client"
	"golang.org/x/term"
)

type cliConfig struct {
	APIBaseURL string `json:"api_base_url"`
	AdminToken string `json:"admin_token"`
}

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "auth":
		err = commandAuth(args)
	case "servers":
		err = commandServers(args)
	case "simulation":
		err = commandSimulation(args)
	case "run":
		err = commandRun(args)
	case "schedule":
		err = commandSchedule(args)
	case "accounts":
		err = commandAccounts(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandAuth(args []string) error {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL (default http://localhost:8080)")
	token := fs.String("token", "", "Admin API token (supply to avoid prompt)")
	fs.Parse(args)

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	} else if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8080"
	}

	secret := strings.TrimSpace(*token)
	if secret == "" {
		fmt.Print("Admin API token: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		secret = strings.TrimSpace(string(bytes))
	}
	if secret == "" {
		return errors.New("token must not be empty")
	}
	cfg.AdminToken = secret

	client, err := apiclient.New(cfg.APIBaseURL, cfg.AdminToken)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := client.ListServers(ctx); err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("token stored")
	return nil
}

func newClient() (*apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AdminToken) == "" {
		return nil, errors.New("please authenticate first using 'benchctl auth'")
	}
	return apiclient.New(cfg.APIBaseURL, cfg.AdminToken)
}

func commandServers(args []string) error {
	fs := flag.NewFlagSet("servers", flag.ExitOnError)
	fs.Parse(args)

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	servers, err := client.ListServers(ctx)
	if err != nil {
		return err
	}
	for _, s := range servers {
		fmt.Printf("%s\t%s\tcleanup=%t\n", s.Name, s.URL, s.Cleanup)
	}
	return nil
}

func commandSimulation(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: benchctl simulation [list|create|delete]")
	}
	sub := args[0]
	switch sub {
	case "list":
		return simulationList(args[1:])
	case "create":
		return simulationCreate(args[1:])
	case "delete":
		return simulationDelete(args[1:])
	default:
		return fmt.Errorf("unknown simulation command: %s", sub)
	}
}

func simulationList(args []string) error {
	fs := flag.NewFlagSet("simulation list", flag.ExitOnError)
	fs.Parse(args)

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sims, err := client.ListSimulations(ctx)
	if err != nil {
		return err
	}
	for _, s := range sims {
		fmt.Printf("%s\t%s\t%s\t%s\tusers=%d\n", s.ID, s.Name, s.Server, s.Mode, s.NumberOfUsers)
	}
	return nil
}

func simulationCreate(args []string) error {
	fs := flag.NewFlagSet("simulation create", flag.ExitOnError)
	name := fs.String("name", "", "Simulation name")
	server := fs.String("server", "", "Target Artemis server name")
	mode := fs.String("mode", "EXISTING_COURSE_PREPARED_EXAM", "Simulation mode")
	users := fs.Int("users", 0, "Number of simulated users")
	userRange := fs.String("user-range", "", "Explicit account index range, e.g. 1-50,70")
	courseID := fs.Int64("course", 0, "Existing course id")
	examID := fs.Int64("exam", 0, "Existing exam id")
	commitsFrom := fs.Int("commits-from", 5, "Minimum commits per programming exercise")
	commitsTo := fs.Int("commits-to", 15, "Maximum commits per programming exercise")
	instructor := fs.String("instructor", "", "Instructor username (password is prompted)")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		return errors.New("--name is required")
	}
	if strings.TrimSpace(*server) == "" {
		return errors.New("--server is required")
	}

	input := apiclient.CreateSimulationInput{
		Name:               *name,
		Server:             *server,
		Mode:               *mode,
		NumberOfUsers:      *users,
		CustomizeUserRange: strings.TrimSpace(*userRange) != "",
		UserRange:          *userRange,
		CourseID:           *courseID,
		ExamID:             *examID,
		CommitsFrom:        *commitsFrom,
		CommitsTo:          *commitsTo,
		InstructorUsername: *instructor,
	}
	if strings.TrimSpace(*instructor) != "" {
		fmt.Print("Instructor password: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		input.InstructorPassword = string(bytes)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sim, err := client.CreateSimulation(ctx, input)
	if err != nil {
		return err
	}
	fmt.Printf("simulation created: %s (%s)\n", sim.ID, sim.Name)
	return nil
}

func simulationDelete(args []string) error {
	fs := flag.NewFlagSet("simulation delete", flag.ExitOnError)
	simulationID := fs.String("simulation", "", "Simulation identifier")
	fs.Parse(args)
	if strings.TrimSpace(*simulationID) == "" {
		return errors.New("--simulation is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.DeleteSimulation(ctx, *simulationID); err != nil {
		return err
	}
	fmt.Println("simulation deleted")
	return nil
}

func commandRun(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: benchctl run [submit|list|cancel|logs|stats|watch]")
	}
	sub := args[0]
	switch sub {
	case "submit":
		return runSubmit(args[1:])
	case "list":
		return runList(args[1:])
	case "cancel":
		return runCancel(args[1:])
	case "logs":
		return runLogs(args[1:])
	case "stats":
		return runStats(args[1:])
	case "watch":
		return runWatch(args[1:])
	default:
		return fmt.Errorf("unknown run command: %s", sub)
	}
}

func runSubmit(args []string) error {
	fs := flag.NewFlagSet("run submit", flag.ExitOnError)
	simulationID := fs.String("simulation", "", "Simulation identifier")
	adminUser := fs.String("admin-user", "", "One-off admin username (password is prompted)")
	watch := fs.Bool("watch", false, "Follow the run until it finishes")
	fs.Parse(args)
	if strings.TrimSpace(*simulationID) == "" {
		return errors.New("--simulation is required")
	}

	adminPassword := ""
	if strings.TrimSpace(*adminUser) != "" {
		fmt.Print("Admin password: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		adminPassword = string(bytes)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	run, err := client.SubmitRun(ctx, *simulationID, *adminUser, adminPassword)
	cancel()
	if err != nil {
		return err
	}
	fmt.Printf("run queued: %s\n", run.ID)
	if *watch {
		return watchRun(client, run.ID)
	}
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("run list", flag.ExitOnError)
	simulationID := fs.String("simulation", "", "Simulation identifier")
	fs.Parse(args)
	if strings.TrimSpace(*simulationID) == "" {
		return errors.New("--simulation is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	runs, err := client.ListRuns(ctx, *simulationID)
	if err != nil {
		return err
	}
	for _, run := range runs {
		end := "-"
		if run.EndTime != nil {
			end = run.EndTime.Format(time.RFC3339)
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", run.ID, run.Status, run.StartTime.Format(time.RFC3339), end)
	}
	return nil
}

func runCancel(args []string) error {
	fs := flag.NewFlagSet("run cancel", flag.ExitOnError)
	runID := fs.String("run", "", "Run identifier")
	fs.Parse(args)
	if strings.TrimSpace(*runID) == "" {
		return errors.New("--run is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.CancelRun(ctx, *runID); err != nil {
		return err
	}
	fmt.Println("run cancelled")
	return nil
}

func runLogs(args []string) error {
	fs := flag.NewFlagSet("run logs", flag.ExitOnError)
	runID := fs.String("run", "", "Run identifier")
	fs.Parse(args)
	if strings.TrimSpace(*runID) == "" {
		return errors.New("--run is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logs, err := client.FetchLogs(ctx, *runID)
	if err != nil {
		return err
	}
	for _, msg := range logs {
		printLogMessage(msg)
	}
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("run stats", flag.ExitOnError)
	runID := fs.String("run", "", "Run identifier")
	fs.Parse(args)
	if strings.TrimSpace(*runID) == "" {
		return errors.New("--run is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	payload, err := client.FetchStats(ctx, *runID)
	if err != nil {
		return err
	}
	printStats(payload)
	return nil
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("run watch", flag.ExitOnError)
	runID := fs.String("run", "", "Run identifier")
	fs.Parse(args)
	if strings.TrimSpace(*runID) == "" {
		return errors.New("--run is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	return watchRun(client, *runID)
}

// watchRun polls run state and prints log lines as they appear until the
// run reaches a terminal state.
func watchRun(client *apiclient.Client, runID string) error {
	seen := 0
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		run, err := client.GetRun(ctx, runID)
		if err != nil {
			cancel()
			return err
		}
		logs, err := client.FetchLogs(ctx, runID)
		cancel()
		if err != nil {
			return err
		}
		for ; seen < len(logs); seen++ {
			printLogMessage(logs[seen])
		}
		if run.Terminal() {
			fmt.Printf("run %s: %s\n", run.ID, run.Status)
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			payload, err := client.FetchStats(ctx, runID)
			cancel()
			if err == nil {
				printStats(payload)
			}
			return nil
		}
		time.Sleep(2 * time.Second)
	}
}

func printLogMessage(msg apiclient.LogMessage) {
	level := "INFO"
	if msg.IsError {
		level = "ERROR"
	}
	fmt.Printf("%s\t%s\t%s\n", msg.Timestamp.Format(time.RFC3339), level, msg.Message)
}

func printStats(payload apiclient.RunStatsPayload) {
	for _, total := range payload.Totals {
		avg := time.Duration(total.AvgDurationNS)
		fmt.Printf("%-20s\tcount=%d\tavg=%s\n", total.RequestType, total.RequestCount, avg)
	}
}

func commandSchedule(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: benchctl schedule [create|list|delete|subscribe]")
	}
	sub := args[0]
	switch sub {
	case "create":
		return scheduleCreate(args[1:])
	case "list":
		return scheduleList(args[1:])
	case "delete":
		return scheduleDelete(args[1:])
	case "subscribe":
		return scheduleSubscribe(args[1:])
	default:
		return fmt.Errorf("unknown schedule command: %s", sub)
	}
}

func scheduleCreate(args []string) error {
	fs := flag.NewFlagSet("schedule create", flag.ExitOnError)
	simulationID := fs.String("simulation", "", "Simulation identifier")
	cycle := fs.String("cycle", "DAILY", "Recurrence (DAILY or WEEKLY)")
	start := fs.String("start", "", "Start date-time, RFC 3339")
	end := fs.String("end", "", "Optional end date-time, RFC 3339")
	timeOfDay := fs.String("time", "", "Fire time, HH:MM")
	dayOfWeek := fs.Int("day", -1, "Day of week for WEEKLY (0=Sunday .. 6=Saturday)")
	fs.Parse(args)
	if strings.TrimSpace(*simulationID) == "" {
		return errors.New("--simulation is required")
	}
	if strings.TrimSpace(*start) == "" || strings.TrimSpace(*timeOfDay) == "" {
		return errors.New("--start and --time are required")
	}

	input := apiclient.CreateScheduleInput{
		Cycle:         *cycle,
		StartDateTime: *start,
		EndDateTime:   *end,
		TimeOfDay:     *timeOfDay,
	}
	if *dayOfWeek >= 0 {
		day := *dayOfWeek
		input.DayOfWeek = &day
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	schedule, err := client.CreateSchedule(ctx, *simulationID, input)
	if err != nil {
		return err
	}
	next := "-"
	if schedule.NextRun != nil {
		next = schedule.NextRun.Format(time.RFC3339)
	}
	fmt.Printf("schedule created: %s next=%s\n", schedule.ID, next)
	return nil
}

func scheduleList(args []string) error {
	fs := flag.NewFlagSet("schedule list", flag.ExitOnError)
	simulationID := fs.String("simulation", "", "Simulation identifier")
	fs.Parse(args)
	if strings.TrimSpace(*simulationID) == "" {
		return errors.New("--simulation is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	schedules, err := client.ListSchedules(ctx, *simulationID)
	if err != nil {
		return err
	}
	for _, s := range schedules {
		next := "-"
		if s.NextRun != nil {
			next = s.NextRun.Format(time.RFC3339)
		}
		fmt.Printf("%s\t%s\tnext=%s\n", s.ID, s.Cycle, next)
	}
	return nil
}

func scheduleDelete(args []string) error {
	fs := flag.NewFlagSet("schedule delete", flag.ExitOnError)
	scheduleID := fs.String("schedule", "", "Schedule identifier")
	fs.Parse(args)
	if strings.TrimSpace(*scheduleID) == "" {
		return errors.New("--schedule is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.DeleteSchedule(ctx, *scheduleID); err != nil {
		return err
	}
	fmt.Println("schedule deleted")
	return nil
}

func scheduleSubscribe(args []string) error {
	fs := flag.NewFlagSet("schedule subscribe", flag.ExitOnError)
	scheduleID := fs.String("schedule", "", "Schedule identifier")
	email := fs.String("email", "", "Email address for result mails")
	fs.Parse(args)
	if strings.TrimSpace(*scheduleID) == "" {
		return errors.New("--schedule is required")
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.Subscribe(ctx, *scheduleID, *email); err != nil {
		return err
	}
	fmt.Println("subscribed")
	return nil
}

func commandAccounts(args []string) error {
	if len(args) == 0 || args[0] != "create" {
		return errors.New("usage: benchctl accounts create --server <name> --username-pattern student_%d --range 1-100")
	}
	fs := flag.NewFlagSet("accounts create", flag.ExitOnError)
	server := fs.String("server", "", "Target Artemis server name")
	usernamePattern := fs.String("username-pattern", "", "printf-style username pattern, e.g. student_%d")
	passwordPattern := fs.String("password-pattern", "", "printf-style password pattern (prompted when omitted)")
	rangeStr := fs.String("range", "", "Account index range, e.g. 1-100")
	fs.Parse(args[1:])

	if strings.TrimSpace(*server) == "" {
		return errors.New("--server is required")
	}
	if strings.TrimSpace(*usernamePattern) == "" {
		return errors.New("--username-pattern is required")
	}
	if strings.TrimSpace(*rangeStr) == "" {
		return errors.New("--range is required")
	}

	secretPattern := strings.TrimSpace(*passwordPattern)
	if secretPattern == "" {
		fmt.Print("Password pattern: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read password pattern: %w", err)
		}
		secretPattern = string(bytes)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, err := client.CreateAccounts(ctx, apiclient.CreateAccountsInput{
		Server:          *server,
		UsernamePattern: *usernamePattern,
		PasswordPattern: secretPattern,
		Range:           *rangeStr,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d accounts stored\n", created)
	return nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: "http://localhost:8080"}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "benchctl", "config.json"), nil
}

func printUsage() {
	fmt.Printf("benchctl %s\n\n", buildVersion)
	os.Stdout.WriteString(`Usage:
	benchctl auth [--api http://localhost:8080] [--token secret]
	benchctl servers
	benchctl simulation list
	benchctl simulation create --name <name> --server <server> [--mode MODE] [--users N | --user-range 1-50] [--course id] [--exam id] [--commits-from N] [--commits-to N] [--instructor user]
	benchctl simulation delete --simulation <id>
	benchctl run submit --simulation <id> [--admin-user user] [--watch]
	benchctl run list --simulation <id>
	benchctl run cancel --run <id>
	benchctl run logs --run <id>
	benchctl run stats --run <id>
	benchctl run watch --run <id>
	benchctl schedule create --simulation <id> --cycle DAILY|WEEKLY --start <rfc3339> --time HH:MM [--end <rfc3339>] [--day 0-6]
	benchctl schedule list --simulation <id>
	benchctl schedule delete --schedule <id>
	benchctl schedule subscribe --schedule <id> --email <address>
	benchctl accounts create --server <name> --username-pattern student_%d --range 1-100 [--password-pattern pw_%d]
	benchctl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
