package config

import (
	"strings"
	"time"
)

// ArtemisServer describes one benchmarkable Artemis deployment.
type ArtemisServer struct {
	Name    string
	URL     string
	Cleanup bool
	Local   bool
}

// APIConfig holds runtime configuration for the benchmarking service.
type APIConfig struct {
	Environment   string
	Addr          string
	DatabaseURL   string
	MigrationsDir string

	AdminAPIToken    string
	JWTSecret        string
	EncryptionSecret string
	PublicBaseURL    string

	Servers []ArtemisServer

	ReposDir           string
	MaxConcurrentUsers int

	CiPollInterval       time.Duration
	ScheduleTickInterval time.Duration
	StatsFlushInterval   time.Duration

	MailHost     string
	MailPort     int
	MailUsername string
	MailPassword string
	MailFrom     string

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:   GetString("APP_ENV", "development"),
		Addr:          GetString("API_ADDR", ":8080"),
		DatabaseURL:   GetString("DATABASE_URL", "postgres://benchmark:benchmark@db:5432/benchmark?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "./db/migrations"),

		AdminAPIToken:    GetString("ADMIN_API_TOKEN", ""),
		JWTSecret:        GetString("JWT_SECRET", "supersecuresecret"),
		EncryptionSecret: GetString("ACCOUNT_ENCRYPTION_KEY", "supersecuresecret"),
		PublicBaseURL:    GetString("PUBLIC_BASE_URL", "http://localhost:8080"),

		Servers: loadServers(),

		ReposDir:           GetString("REPOS_DIR", "./repos"),
		MaxConcurrentUsers: GetInt("MAX_CONCURRENT_USERS", 0),

		CiPollInterval:       GetDuration("CI_POLL_INTERVAL", time.Minute),
		ScheduleTickInterval: GetDuration("SCHEDULE_TICK_INTERVAL", time.Minute),
		StatsFlushInterval:   GetDuration("STATS_FLUSH_INTERVAL", 30*time.Second),

		MailHost:     GetString("MAIL_HOST", ""),
		MailPort:     GetInt("MAIL_PORT", 587),
		MailUsername: GetString("MAIL_USERNAME", ""),
		MailPassword: GetString("MAIL_PASSWORD", ""),
		MailFrom:     GetString("MAIL_FROM", "benchmarking@localhost"),

		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASS", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}

// loadServers reads the configured Artemis deployments. ARTEMIS_SERVERS lists
// the server names; each name is expanded to ARTEMIS_<NAME>_URL,
// ARTEMIS_<NAME>_CLEANUP and ARTEMIS_<NAME>_LOCAL.
func loadServers() []ArtemisServer {
	names := strings.Split(GetString("ARTEMIS_SERVERS", "local"), ",")
	servers := make([]ArtemisServer, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		servers = append(servers, ArtemisServer{
			Name:    name,
			URL:     GetString("ARTEMIS_"+key+"_URL", "http://localhost:8080"),
			Cleanup: GetBool("ARTEMIS_"+key+"_CLEANUP", false),
			Local:   GetBool("ARTEMIS_"+key+"_LOCAL", name == "local"),
		})
	}
	return servers
}

// Server looks up a configured Artemis deployment by name.
func (c APIConfig) Server(name string) (ArtemisServer, bool) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return ArtemisServer{}, false
}
