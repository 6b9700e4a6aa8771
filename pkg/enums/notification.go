package enums

import "fmt"

// NotificationKind identifies the notification payloads handed to the sender.
type NotificationKind string

// Balance reminders do not appear here: they ride the dedicated
// balance_requested/balance_resent event types straight to the
// notification topic.
const (
	NotificationKindStatusChange NotificationKind = "status_change"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindStatusChange,
}

// IsValid checks whether the given kind matches the canonical enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
