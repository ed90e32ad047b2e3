package notifier

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/mrz1836/postmark"

	"github.com/lumichat/premium/pkg/taskqueue"
)

// sender is the slice of the Postmark client the notifier needs.
type sender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// EmailNotifier implements taskqueue.FailureNotifier by emailing the
// on-call address. Delivery is best effort: the queue has already recorded
// the permanent failure, so a lost alert loses visibility, not state.
type EmailNotifier struct {
	client sender
	config Config
	log    *slog.Logger
}

// NewEmailNotifier creates a Postmark-backed failure notifier.
func NewEmailNotifier(cfg Config, log *slog.Logger) (*EmailNotifier, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if cfg.AlertEmail == "" {
		return nil, fmt.Errorf("%w: AlertEmail is required", ErrInvalidConfig)
	}
	if log == nil {
		log = slog.Default()
	}

	return &EmailNotifier{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
		log:    log,
	}, nil
}

// TaskFailedPermanently implements taskqueue.FailureNotifier.
func (n *EmailNotifier) TaskFailedPermanently(ctx context.Context, task taskqueue.Task) {
	subject, body := alertEmail(task)

	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:     n.config.SenderEmail,
		To:       n.config.AlertEmail,
		Subject:  subject,
		Tag:      "task-failure",
		HTMLBody: body,
	})
	if err == nil && resp.ErrorCode > 0 {
		err = fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	if err != nil {
		n.log.ErrorContext(ctx, "failed to send task failure alert",
			slog.String("task_id", task.ID.String()),
			slog.String("error", errors.Join(ErrFailedToSendAlert, err).Error()))
	}
}

// alertEmail renders the alert subject and HTML body for a task.
func alertEmail(task taskqueue.Task) (subject, body string) {
	subject = fmt.Sprintf("[premium] task %s failed permanently", task.Type)

	var b strings.Builder
	b.WriteString("<h2>Reconciliation task failed permanently</h2>")
	b.WriteString("<table>")
	row := func(label, value string) {
		fmt.Fprintf(&b, "<tr><td><b>%s</b></td><td>%s</td></tr>", label, html.EscapeString(value))
	}
	row("Task ID", task.ID.String())
	row("Type", string(task.Type))
	row("Retries", fmt.Sprintf("%d", task.Retries))
	row("Last error", task.LastError)
	if task.LastErrorAt != nil {
		row("Last error at", task.LastErrorAt.UTC().String())
	}
	row("Created at", task.CreatedAt.UTC().String())
	b.WriteString("</table>")
	if len(task.Payload) > 0 {
		fmt.Fprintf(&b, "<pre>%s</pre>", html.EscapeString(string(task.Payload)))
	}
	return subject, b.String()
}

// Noop is a FailureNotifier that discards alerts. Used when alert delivery
// is not configured.
type Noop struct{}

// TaskFailedPermanently implements taskqueue.FailureNotifier.
func (Noop) TaskFailedPermanently(ctx context.Context, task taskqueue.Task) {}

// FromConfig returns an email notifier when alerting is configured, the
// no-op notifier otherwise.
func FromConfig(cfg Config, log *slog.Logger) (taskqueue.FailureNotifier, error) {
	if !cfg.Enabled() {
		return Noop{}, nil
	}
	return NewEmailNotifier(cfg, log)
}
