// Package streaming is an in-process pub/sub of run progress events. The
// orchestrator publishes; subscribers (the WebSocket endpoint, tests) attach
// per run. Publishing never blocks: slow subscribers drop events.
package streaming

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types published during a run.
const (
	EventRunStarted         = "run_started"
	EventAgentStarted       = "agent_started"
	EventAgentFinished      = "agent_finished"
	EventRecordValidated    = "record_validated"
	EventDiscoveryFinished  = "discovery_finished"
	EventEnrichmentStarted  = "enrichment_started"
	EventEnrichmentFinished = "enrichment_finished"
	EventRunFinished        = "run_finished"
)

// Event is one run progress notification.
type Event struct {
	RunID     string         `json:"run_id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

const subscriberBuffer = 64

type subscriber struct {
	ch chan Event
}

// Manager fans events out to per-run subscribers.
type Manager struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	logger *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		subs:   make(map[string]map[*subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe attaches to a run's event stream. The returned cancel function
// detaches and closes the channel; it is safe to call more than once.
func (m *Manager) Subscribe(runID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	m.mu.Lock()
	if m.subs[runID] == nil {
		m.subs[runID] = make(map[*subscriber]struct{})
	}
	m.subs[runID][sub] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[runID], sub)
			if len(m.subs[runID]) == 0 {
				delete(m.subs, runID)
			}
			m.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers an event to every subscriber of its run. Non-blocking; a
// full subscriber buffer drops the event for that subscriber only.
func (m *Manager) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for sub := range m.subs[ev.RunID] {
		select {
		case sub.ch <- ev:
		default:
			m.logger.Debug("dropping event for slow subscriber",
				zap.String("run_id", ev.RunID),
				zap.String("type", ev.Type))
		}
	}
}

// SubscriberCount reports attached subscribers for a run.
func (m *Manager) SubscriberCount(runID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[runID])
}
