package mock

import (
	"context"
	"strings"
	"sync"
)

// Notification is one captured notifier call.
type Notification struct {
	Critical bool
	Title    string
	Message  string
	Fields   map[string]string
}

// RecordingNotifier captures notifications for assertions.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(ctx context.Context, title, message string, fields map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Title: title, Message: message, Fields: fields})
}

func (n *RecordingNotifier) Critical(ctx context.Context, title, message string, fields map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Critical: true, Title: title, Message: message, Fields: fields})
}

// Sent returns a copy of the captured notifications.
func (n *RecordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

// TitlesContaining returns captured notifications whose title contains s.
func (n *RecordingNotifier) TitlesContaining(s string) []Notification {
	var out []Notification
	for _, notif := range n.Sent() {
		if strings.Contains(notif.Title, s) {
			out = append(out, notif)
		}
	}
	return out
}
