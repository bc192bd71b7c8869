// Package alert fans operator notifications out to configured channels.
package alert

import (
	"context"
	"sync"
	"time"

	"margin_maker/internal/core"

	"github.com/alitto/pond"
)

type Level string

const (
	Info     Level = "INFO"
	Warning  Level = "WARNING"
	Error    Level = "ERROR"
	Critical Level = "CRITICAL"
)

type Payload struct {
	Level     Level
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// Channel is one delivery target for alerts.
type Channel interface {
	Send(ctx context.Context, alert Payload) error
	Name() string
}

const (
	deliveryWorkers = 4
	deliveryBacklog = 256
	deliveryTimeout = 10 * time.Second
)

// Manager implements core.INotifier over a set of channels. Deliveries run on
// a small pond pool so a slow channel never blocks the trading path; when the
// backlog is full or a channel errors, the alert is logged and dropped.
type Manager struct {
	channels []Channel
	pool     *pond.WorkerPool
	logger   core.ILogger
	mu       sync.RWMutex
}

func NewManager(logger core.ILogger) *Manager {
	logger = logger.WithField("component", "alert_manager")
	pool := pond.New(deliveryWorkers, deliveryBacklog,
		pond.MinWorkers(1),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			logger.Error("Alert delivery panicked", "panic", p)
		}),
	)

	return &Manager{
		pool:   pool,
		logger: logger,
	}
}

func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.logger.Info("Added alert channel", "name", ch.Name())
}

// Notify sends an informational alert.
func (m *Manager) Notify(ctx context.Context, title, message string, fields map[string]string) {
	m.dispatch(title, message, Info, fields)
}

// Critical sends a critical alert.
func (m *Manager) Critical(ctx context.Context, title, message string, fields map[string]string) {
	m.dispatch(title, message, Critical, fields)
}

// Close drains in-flight deliveries.
func (m *Manager) Close() {
	m.pool.StopAndWait()
}

func (m *Manager) dispatch(title, message string, level Level, fields map[string]string) {
	payload := Payload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	m.logger.Info("Triggering alert", "title", title, "level", level)

	m.mu.RLock()
	channels := make([]Channel, len(m.channels))
	copy(channels, m.channels)
	m.mu.RUnlock()

	for _, ch := range channels {
		ch := ch
		queued := m.pool.TrySubmit(func() {
			// Delivery deadline is independent of the caller's context:
			// the trading step that raised the alert may be long gone.
			timeoutCtx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
			defer cancel()

			if err := ch.Send(timeoutCtx, payload); err != nil {
				m.logger.Error("Failed to send alert", "channel", ch.Name(), "error", err)
			}
		})
		if !queued {
			m.logger.Error("Alert backlog full, dropping alert", "channel", ch.Name(), "title", title)
		}
	}
}
