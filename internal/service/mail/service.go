package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
)

// NotificationKind selects the mail template.
type NotificationKind string

const (
	KindSubscribed    NotificationKind = "subscribed"
	KindRunFinished   NotificationKind = "run-finished"
	KindRunFailed     NotificationKind = "run-failed"
	KindScheduleEnded NotificationKind = "schedule-ended"
)

// Notification is one queued mail task. Producers enqueue and move on;
// delivery happens on the service's own goroutine.
type Notification struct {
	Kind           NotificationKind
	Email          string
	Simulation     *domain.Simulation
	Schedule       *domain.SimulationSchedule
	Run            *domain.SimulationRun
	Stats          []domain.RunStats
	FailureLog     *domain.LogMessage
	UnsubscribeURL string
}

// Config carries SMTP settings. An empty Host disables delivery; queued
// notifications are then logged and dropped.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Service delivers schedule notifications from a bounded queue.
type Service struct {
	cfg   Config
	log   *slog.Logger
	queue chan Notification
}

// New creates the mail service.
func New(cfg Config, logger *slog.Logger) *Service {
	return &Service{cfg: cfg, log: logger, queue: make(chan Notification, 256)}
}

// Enqueue submits a notification without blocking the caller. When the
// queue is full the notification is dropped with a warning; mail is best
// effort and must never stall a run or the schedule evaluator.
func (s *Service) Enqueue(n Notification) {
	select {
	case s.queue <- n:
	default:
		s.log.Warn("notification queue full, dropping mail", "kind", n.Kind, "to", n.Email)
	}
}

// Run consumes the queue until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.queue:
			if err := s.deliver(ctx, n); err != nil {
				s.log.Warn("mail delivery failed", "kind", n.Kind, "to", n.Email, "error", err)
			}
		}
	}
}

func (s *Service) deliver(ctx context.Context, n Notification) error {
	subject, body := render(n)
	if s.cfg.Host == "" {
		s.log.Info("mail disabled, skipping delivery", "kind", n.Kind, "to", n.Email, "subject", subject)
		return nil
	}

	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(n.Email); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func render(n Notification) (subject, body string) {
	name := "simulation"
	if n.Simulation != nil {
		name = n.Simulation.Name
	}

	switch n.Kind {
	case KindSubscribed:
		subject = fmt.Sprintf("Subscribed to schedule of %q", name)
		body = fmt.Sprintf(
			"You will receive a mail after every scheduled run of %q.\n\nUnsubscribe: %s\n",
			name, n.UnsubscribeURL)
	case KindRunFinished:
		subject = fmt.Sprintf("Scheduled run of %q finished", name)
		body = fmt.Sprintf("The scheduled run started at %s finished successfully.\n\n%s\nUnsubscribe: %s\n",
			runStart(n.Run), statsSummary(n.Stats), n.UnsubscribeURL)
	case KindRunFailed:
		subject = fmt.Sprintf("Scheduled run of %q failed", name)
		reason := "Check the run log for details."
		if n.FailureLog != nil {
			reason = fmt.Sprintf("Last error: %s", n.FailureLog.Message)
		}
		body = fmt.Sprintf("The scheduled run started at %s failed. %s\n\nUnsubscribe: %s\n",
			runStart(n.Run), reason, n.UnsubscribeURL)
	case KindScheduleEnded:
		subject = fmt.Sprintf("Schedule of %q has ended", name)
		body = fmt.Sprintf("The recurring schedule of %q reached its end date and was removed. No further runs will be triggered.\n", name)
	default:
		subject = fmt.Sprintf("Notification for %q", name)
	}
	return subject, body
}

func runStart(run *domain.SimulationRun) string {
	if run == nil {
		return "unknown time"
	}
	return run.StartTime.UTC().Format(time.RFC1123)
}

func statsSummary(stats []domain.RunStats) string {
	if len(stats) == 0 {
		return ""
	}
	out := "Request statistics:\n"
	for _, s := range stats {
		out += fmt.Sprintf("  %-20s %6d requests, avg %s\n",
			s.RequestType, s.RequestCount, time.Duration(s.AvgDurationNS))
	}
	return out
}
