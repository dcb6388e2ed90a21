// Package queue implements ticket issuance and the queue entry lifecycle.
package queue

import (
	"errors"
	"fmt"
	"time"

	"qlink/internal/models"
)

type Event string

const (
	EventCall   Event = "call"
	EventDone   Event = "done"
	EventSkip   Event = "skip"
	EventCancel Event = "cancel"
	EventExpire Event = "expire"
)

var ErrIllegalTransition = errors.New("illegal queue transition")

type TransitionError struct {
	From  models.QueueStatus
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("queue: cannot %s an entry that is %s", e.Event, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// done, cancelled and missed have no outgoing edges.
var transitions = map[models.QueueStatus]map[Event]models.QueueStatus{
	models.StatusWaiting: {
		EventCall:   models.StatusServing,
		EventCancel: models.StatusCancelled,
		EventExpire: models.StatusMissed,
	},
	models.StatusServing: {
		EventDone:   models.StatusDone,
		EventSkip:   models.StatusWaiting,
		EventCancel: models.StatusCancelled,
		EventExpire: models.StatusMissed,
	},
}

// Next returns the status reached from `from` on ev.
func Next(from models.QueueStatus, ev Event) (models.QueueStatus, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, &TransitionError{From: from, Event: ev}
	}
	return to, nil
}

func Terminal(s models.QueueStatus) bool {
	return len(transitions[s]) == 0
}

// Apply moves e through ev and stamps its timestamps. e is left untouched on error.
// Renumbering on skip is the caller's job.
func Apply(e *models.QueueEntry, ev Event, now time.Time) error {
	to, err := Next(e.Status, ev)
	if err != nil {
		return err
	}

	switch ev {
	case EventCall:
		e.StartedAt = &now
		e.FinishedAt = nil
	case EventSkip:
		e.StartedAt = nil
	case EventDone, EventCancel, EventExpire:
		e.FinishedAt = &now
	}
	e.Status = to
	return nil
}
