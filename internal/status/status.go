// Package status reports stream lifecycle changes to logs and, optionally,
// an MQTT broker.
package status

import (
	"log/slog"
	"time"
)

// Event is one state change of one stream.
type Event struct {
	ClientID string    `json:"clientId"`
	Stream   string    `json:"stream"`
	State    string    `json:"state"`
	Detail   string    `json:"detail,omitempty"`
	Time     time.Time `json:"time"`
}

// Emitter publishes events. Emit must return quickly.
type Emitter interface {
	Emit(ev Event)
}

// LogEmitter writes events to a slog logger.
type LogEmitter struct {
	Logger *slog.Logger
}

func (e LogEmitter) Emit(ev Event) {
	log := e.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("status: "+ev.State, "stream", ev.Stream, "client_id", ev.ClientID, "detail", ev.Detail)
}

type multi []Emitter

func (m multi) Emit(ev Event) {
	for _, e := range m {
		e.Emit(ev)
	}
}

// Multi fans events out to every non-nil emitter.
func Multi(emitters ...Emitter) Emitter {
	var m multi
	for _, e := range emitters {
		if e != nil {
			m = append(m, e)
		}
	}
	return m
}
