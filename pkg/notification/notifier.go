package notification

// NotificationSystem represents a delivery system (e.g., email).
type NotificationSystem string

// NoticeType represents a type of notice (e.g., "mfa_code").
type NoticeType string

const (
	EmailSystem NotificationSystem = "email"
)

// NoticeTemplate holds the subject and bodies for a registered notice.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

// NotificationData carries the recipient and template data for one send.
type NotificationData struct {
	To   string            // Recipient identifier (e.g., email address)
	Data map[string]string // Template data
}

type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
