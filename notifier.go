package identity

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// LogNotifier writes notifications to the logger instead of sending email.
// Info entries carry a digest prefix of the token, the clickable link is
// only written at debug level for local development.
type LogNotifier struct {
	logger  Logger
	baseURL string
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier returns a notifier that renders links against baseURL
func NewLogNotifier(logger Logger, baseURL string) *LogNotifier {
	return &LogNotifier{
		logger:  resolveLogger(logger),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (n *LogNotifier) NotifyEmailVerification(ctx context.Context, email, token string) error {
	n.logger.Info("email verification notification",
		"to", email,
		"subject", "Verify your email address",
		"token_digest", tokenDigest(token),
	)
	n.logger.Debug("email verification link", "to", email, "link", n.link("/verify-email", token))
	return nil
}

func (n *LogNotifier) NotifyPasswordReset(ctx context.Context, email, token string) error {
	n.logger.Info("password reset notification",
		"to", email,
		"subject", "Reset your password",
		"token_digest", tokenDigest(token),
	)
	n.logger.Debug("password reset link", "to", email, "link", n.link("/reset-password", token))
	return nil
}

func (n *LogNotifier) NotifyWithdrawal(ctx context.Context, email string, scheduledDeletionAt time.Time) error {
	n.logger.Info("withdrawal notification",
		"to", email,
		"subject", "Your account is scheduled for deletion",
		"scheduled_deletion_at", scheduledDeletionAt.UTC().Format(time.RFC3339),
	)
	return nil
}

func (n *LogNotifier) link(path, token string) string {
	return n.baseURL + path + "?token=" + url.QueryEscape(token)
}

// tokenDigest correlates a notification with its stored token row
func tokenDigest(token string) string {
	return HashVerificationToken(token)[:12]
}

type noopNotifier struct{}

func (noopNotifier) NotifyEmailVerification(context.Context, string, string) error { return nil }
func (noopNotifier) NotifyPasswordReset(context.Context, string, string) error     { return nil }
func (noopNotifier) NotifyWithdrawal(context.Context, string, time.Time) error     { return nil }

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// notifyAfterCommit runs a notification and swallows its failure
func notifyAfterCommit(ctx context.Context, logger Logger, kind string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notifier panic", "notification", kind, "panic", r)
		}
	}()

	if err := fn(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("notification failed", "notification", kind, "error", err)
	}
}
