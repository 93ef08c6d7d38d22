// Package notify decouples task outcomes from their delivery channel.
package notify

import (
	"context"

	"github.com/halftone-io/halftone/internal/email"
	"github.com/halftone-io/halftone/internal/logger"
	"github.com/halftone-io/halftone/internal/model"
)

// Notifier is told about task outcomes. filename is the source image's
// original upload name and may be empty when the image is gone.
// Implementations must not block task completion; delivery failures are
// logged, never surfaced.
type Notifier interface {
	TaskCompleted(ctx context.Context, user model.User, task model.ProcessingTask, filename string)
	TaskFailed(ctx context.Context, user model.User, task model.ProcessingTask, filename, reason string)
}

// EmailNotifier delivers outcomes over SMTP in a background goroutine.
type EmailNotifier struct {
	mail *email.Service
}

func NewEmailNotifier(mail *email.Service) *EmailNotifier {
	return &EmailNotifier{mail: mail}
}

var _ Notifier = (*EmailNotifier)(nil)

func (n *EmailNotifier) TaskCompleted(ctx context.Context, user model.User, task model.ProcessingTask, filename string) {
	log := logger.FromContext(ctx)
	go func() {
		if err := n.mail.SendTaskCompleted(user.Email, user.Username, task.ID.String(), filename); err != nil {
			log.Warn("completion notification failed", "task_id", task.ID, "error", err)
		}
	}()
}

func (n *EmailNotifier) TaskFailed(ctx context.Context, user model.User, task model.ProcessingTask, filename, reason string) {
	log := logger.FromContext(ctx)
	go func() {
		if err := n.mail.SendTaskFailed(user.Email, user.Username, task.ID.String(), filename, reason); err != nil {
			log.Warn("failure notification failed", "task_id", task.ID, "error", err)
		}
	}()
}

// Nop discards all notifications.
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) TaskCompleted(context.Context, model.User, model.ProcessingTask, string) {}

func (Nop) TaskFailed(context.Context, model.User, model.ProcessingTask, string, string) {}
