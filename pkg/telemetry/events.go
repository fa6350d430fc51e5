package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the platform.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// ReloadID is the associated dev-loop reload cycle ID, if applicable.
	ReloadID string `json:"reload_id,omitempty"`

	// ChangeID is the associated table-change ID, if applicable.
	ChangeID string `json:"change_id,omitempty"`

	// TableID is the associated table ID, if applicable.
	TableID string `json:"table_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeReloadStarted     = "reload.started"
	EventTypeReloadCompleted   = "reload.completed"
	EventTypeReloadFailed      = "reload.failed"
	EventTypeChangeStarted     = "change.started"
	EventTypeChangeCompleted   = "change.completed"
	EventTypeChangeFailed      = "change.failed"
	EventTypeTableStateChanged = "table.state_changed"
	EventTypeDriftDetected     = "drift.detected"
	EventTypePolicyViolation   = "policy.violation"
	EventTypeBackendInvoked    = "backend.invoked"
	EventTypeError             = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	if cfg.FlushInterval > 0 {
		ep.wg.Add(1)
		go ep.periodicFlush()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishReloadStarted publishes a dev-loop reload started event.
func (ep *EventPublisher) PublishReloadStarted(reloadID, trigger string) error {
	return ep.Publish(Event{
		Type:     EventTypeReloadStarted,
		Source:   "devloop",
		ReloadID: reloadID,
		Message:  fmt.Sprintf("reload %s started by %s", reloadID, trigger),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"trigger": trigger,
		},
	})
}

// PublishReloadCompleted publishes a dev-loop reload completed event.
func (ep *EventPublisher) PublishReloadCompleted(reloadID, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:     EventTypeReloadCompleted,
		Source:   "devloop",
		ReloadID: reloadID,
		Message:  fmt.Sprintf("reload %s completed with status: %s", reloadID, status),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishReloadFailed publishes a dev-loop reload failed event.
func (ep *EventPublisher) PublishReloadFailed(reloadID, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeReloadFailed,
		Source:   "devloop",
		ReloadID: reloadID,
		Message:  fmt.Sprintf("reload %s failed: %s", reloadID, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishChangeStarted publishes a table-change started event.
func (ep *EventPublisher) PublishChangeStarted(reloadID, changeID, tableID, kind string) error {
	return ep.Publish(Event{
		Type:     EventTypeChangeStarted,
		Source:   "executor",
		ReloadID: reloadID,
		ChangeID: changeID,
		TableID:  tableID,
		Message:  fmt.Sprintf("change %s started: %s on table %s", changeID, kind, tableID),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"kind": kind,
		},
	})
}

// PublishChangeCompleted publishes a table-change completed event.
func (ep *EventPublisher) PublishChangeCompleted(reloadID, changeID, tableID string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:     EventTypeChangeCompleted,
		Source:   "executor",
		ReloadID: reloadID,
		ChangeID: changeID,
		TableID:  tableID,
		Message:  fmt.Sprintf("change %s completed for table %s", changeID, tableID),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishChangeFailed publishes a table-change failed event.
func (ep *EventPublisher) PublishChangeFailed(reloadID, changeID, tableID, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeChangeFailed,
		Source:   "executor",
		ReloadID: reloadID,
		ChangeID: changeID,
		TableID:  tableID,
		Message:  fmt.Sprintf("change %s failed for table %s: %s", changeID, tableID, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishTableStateChanged publishes a table state change event.
func (ep *EventPublisher) PublishTableStateChanged(tableID, oldState, newState string) error {
	return ep.Publish(Event{
		Type:    EventTypeTableStateChanged,
		Source:  "reconciler",
		TableID: tableID,
		Message: fmt.Sprintf("table %s state changed from %s to %s", tableID, oldState, newState),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"old_state": oldState,
			"new_state": newState,
		},
	})
}

// PublishDriftDetected publishes a drift detected event.
func (ep *EventPublisher) PublishDriftDetected(tableID string, driftCount int) error {
	return ep.Publish(Event{
		Type:    EventTypeDriftDetected,
		Source:  "reality_reconciler",
		TableID: tableID,
		Message: fmt.Sprintf("drift detected on table %s (%d discrepancies)", tableID, driftCount),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"drift_count": driftCount,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(tableID, policyName, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy_engine",
		TableID: tableID,
		Message: fmt.Sprintf("policy violation on table %s: %s - %s", tableID, policyName, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	var tick <-chan time.Time
	if ep.config.FlushInterval > 0 {
		ticker := time.NewTicker(ep.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-tick:
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			for len(ep.buffer) > 0 {
				batch = append(batch, <-ep.buffer)
			}
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// periodicFlush runs a FlushInterval ticker until shutdown. It delivers
// nothing itself; processEvents flushes on its own ticker.
func (ep *EventPublisher) periodicFlush() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// flushing happens in processEvents
		case <-ep.ctx.Done():
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByReloadID creates a filter that only allows events for a specific reload cycle.
func FilterByReloadID(reloadID string) EventFilter {
	return func(event Event) bool {
		return event.ReloadID == reloadID
	}
}

// FilterByTableID creates a filter that only allows events for a specific table.
func FilterByTableID(tableID string) EventFilter {
	return func(event Event) bool {
		return event.TableID == tableID
	}
}
