package ledger

import (
	"fmt"
	"time"
)

type EventKind string

const (
	EventConfirm            EventKind = "confirm"
	EventCancel             EventKind = "cancel"
	EventMarkCompleted      EventKind = "mark_completed"
	EventMarkNoShow         EventKind = "mark_no_show"
	EventReminderDispatched EventKind = "reminder_dispatched"
	EventReminderResponse   EventKind = "reminder_response"
)

// Event is the closed union of ledger inputs. Stage and Response are
// set only for the reminder kinds; Reason only for cancellations.
type Event struct {
	Kind     EventKind
	Stage    Stage
	Response Response
	Reason   string
}

func Confirm() Event                { return Event{Kind: EventConfirm} }
func Cancel(reason string) Event    { return Event{Kind: EventCancel, Reason: reason} }
func MarkCompleted() Event          { return Event{Kind: EventMarkCompleted} }
func MarkNoShow() Event             { return Event{Kind: EventMarkNoShow} }
func ReminderDispatched(stage Stage) Event {
	return Event{Kind: EventReminderDispatched, Stage: stage}
}
func ReminderResponse(stage Stage, resp Response) Event {
	return Event{Kind: EventReminderResponse, Stage: stage, Response: resp}
}

// Transition computes the successor state for an event against the
// appointment's current state. It mutates nothing; persisting the
// result is the service's job.
func Transition(a *Appointment, ev Event, now time.Time) (State, error) {
	current := a.State

	if current.Terminal() {
		return current, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, current)
	}

	switch ev.Kind {
	case EventConfirm:
		if current == StateScheduled {
			return StateConfirmed, nil
		}

	case EventCancel:
		// Permitted from every non-terminal state.
		return StateCancelled, nil

	case EventMarkCompleted:
		if activeConfirmed(current) && now.After(a.Slot.End()) {
			return StateCompleted, nil
		}

	case EventMarkNoShow:
		if activeConfirmed(current) && now.After(a.Slot.End()) {
			return StateNoShow, nil
		}

	case EventReminderDispatched:
		// Re-entrant per stage; semantically the appointment stays
		// confirmed, the distinct state only tracks that outreach began.
		if activeConfirmed(current) {
			return StateReminderSent, nil
		}

	case EventReminderResponse:
		if !activeConfirmed(current) {
			break
		}
		switch ev.Response {
		case ResponseConfirmed:
			return StateConfirmed, nil
		case ResponseCancelled:
			return StateCancelled, nil
		}
	}

	return current, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev.Kind, current)
}

// activeConfirmed treats reminder_sent as confirmed for everything but
// reminder bookkeeping.
func activeConfirmed(s State) bool {
	return s == StateConfirmed || s == StateReminderSent
}
