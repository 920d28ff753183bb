package user

import (
	"errors"
	"fmt"
)

var ErrInvalidCount = errors.New("user: count must not be negative")

// ReconciliationTimeout is returned when a confirmation poll spends its whole
// budget without observing the desired state. LastErr is the most recent
// remote error seen while polling, if the final attempts failed.
type ReconciliationTimeout struct {
	Operation    string
	Desired      any
	LastObserved any
	LastErr      error
}

func (e *ReconciliationTimeout) Error() string {
	msg := fmt.Sprintf("%s: timed out waiting for %v (last observed %v)", e.Operation, e.Desired, e.LastObserved)
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

func (e *ReconciliationTimeout) Unwrap() error { return e.LastErr }

// IsTimeout reports whether err carries a *ReconciliationTimeout.
func IsTimeout(err error) bool {
	var rt *ReconciliationTimeout
	return errors.As(err, &rt)
}
