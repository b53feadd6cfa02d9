package notice

import (
	"embed"
	"log/slog"

	"github.com/tendant/stepup-mfa/pkg/notification"
)

// Notice types used by the step-up subsystem.
const (
	MfaCodeNotice notification.NoticeType = "mfa_code"
)

//go:embed templates/*
var templateFiles embed.FS

func loadTemplate(filename string) string {
	content, err := templateFiles.ReadFile(filename)
	if err != nil {
		slog.Error("Error reading template file!", "err", err, "filename", filename)
		return ""
	}
	return string(content)
}

// NotificationManagerOption configures a notification manager under
// construction.
type NotificationManagerOption func(*notification.NotificationManager) error

// WithSMTP adds an email notifier with the provided SMTP configuration
func WithSMTP(config notification.SMTPConfig) NotificationManagerOption {
	return func(nm *notification.NotificationManager) error {
		emailNotifier, err := notification.NewEmailNotifier(config)
		if err != nil {
			return err
		}
		nm.RegisterNotifier(notification.EmailSystem, emailNotifier)
		return nil
	}
}

// WithNotifier registers an arbitrary notifier, used by tests to install a
// mock.
func WithNotifier(system notification.NotificationSystem, notifier notification.Notifier) NotificationManagerOption {
	return func(nm *notification.NotificationManager) error {
		nm.RegisterNotifier(system, notifier)
		return nil
	}
}

// WithMfaCodeTemplate registers the MFA code email template
func WithMfaCodeTemplate() NotificationManagerOption {
	return func(nm *notification.NotificationManager) error {
		return nm.RegisterNotification(MfaCodeNotice, notification.EmailSystem, notification.NoticeTemplate{
			Subject: "Your verification code",
			Text:    "Your verification code is: {{.Passcode}}. It expires in {{.ExpiryMinutes}} minutes.",
			Html:    loadTemplate("templates/email/mfa_code.html"),
		})
	}
}

// WithDefaultTemplates registers all default notice templates
func WithDefaultTemplates() NotificationManagerOption {
	return WithMfaCodeTemplate()
}

// NewNotificationManager creates a notification manager with the provided
// options.
func NewNotificationManager(opts ...NotificationManagerOption) (*notification.NotificationManager, error) {
	notificationManager := notification.NewNotificationManager()

	for _, opt := range opts {
		if err := opt(notificationManager); err != nil {
			return nil, err
		}
	}

	return notificationManager, nil
}
