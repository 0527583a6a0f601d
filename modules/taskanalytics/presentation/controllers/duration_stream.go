package controllers

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/events"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/presentation/mappers"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/presentation/viewmodels"
	"github.com/iota-uz/taskpulse/pkg/logging"
)

const (
	MessageDurations = "durations"
	MessagePurged    = "purged"
	MessageState     = "state"
)

type Broadcaster interface {
	Broadcast(message []byte)
}

type Subscriber interface {
	Subscribe(handler interface{})
	Unsubscribe(handler interface{})
}

// DurationStream forwards scheduler events to websocket clients.
type DurationStream struct {
	hub    Broadcaster
	logger *logrus.Entry

	handlers []interface{}
}

func NewDurationStream(hub Broadcaster, logger *logrus.Entry) *DurationStream {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DurationStream{hub: hub, logger: logger}
}

func (s *DurationStream) Attach(bus Subscriber) {
	s.handlers = []interface{}{
		s.onRefreshed,
		s.onPurged,
		s.onStateChanged,
	}
	for _, h := range s.handlers {
		bus.Subscribe(h)
	}
}

func (s *DurationStream) Detach(bus Subscriber) {
	for _, h := range s.handlers {
		bus.Unsubscribe(h)
	}
	s.handlers = nil
}

func (s *DurationStream) onRefreshed(e *events.DurationsRefreshedEvent) {
	if len(e.Entries) == 0 {
		return
	}
	entries := make([]viewmodels.Duration, 0, len(e.Entries))
	for _, snap := range e.Entries {
		entries = append(entries, mappers.SnapshotToViewModel(snap))
	}
	s.send(viewmodels.StreamMessage{Type: MessageDurations, Seq: e.Seq, Entries: entries})
}

func (s *DurationStream) onPurged(e *events.DurationPurgedEvent) {
	s.send(viewmodels.StreamMessage{Type: MessagePurged, TaskID: e.TaskID, Reason: e.Reason})
}

func (s *DurationStream) onStateChanged(e *events.SchedulerStateChangedEvent) {
	s.send(viewmodels.StreamMessage{Type: MessageState, State: e.To})
}

func (s *DurationStream) send(msg viewmodels.StreamMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.logger.WithError(err).Error("duration stream: marshal failed")
		return
	}
	s.hub.Broadcast(b)
}
