package events

import "fmt"

// ConfigurationError reports a missing or blank setting. It is returned
// before any network access.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("No calendar URI configured, see '%s'", e.Key)
}

// Reason tells apart the two InvalidCalendarError causes.
type Reason int

const (
	ReasonUnavailable Reason = iota + 1
	ReasonUnparseable
)

const (
	msgUnavailable = "calendar data not available"
	msgUnparseable = "could not parse iCal data"
)

// InvalidCalendarError reports that the calendar source could not be used,
// either because it did not answer with a success status or because its body
// is not valid iCalendar data.
type InvalidCalendarError struct {
	Reason Reason
	Err    error
}

func (e *InvalidCalendarError) Error() string {
	if e.Reason == ReasonUnparseable {
		return msgUnparseable
	}
	return msgUnavailable
}

func (e *InvalidCalendarError) Unwrap() error {
	return e.Err
}
