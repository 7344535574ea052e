package strategy

import "errors"

// ErrNoSessions indicates that no consumer sessions were provided for assignment.
var ErrNoSessions = errors.New("no sessions available for assignment")
