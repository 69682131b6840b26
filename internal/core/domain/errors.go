package domain

import "errors"

// ErrInvalidStateTransition is returned by PaymentTransactionRepository
// transition methods when the requested move is forbidden by the
// transaction's state machine (e.g. CONFIRMED->FAILED, or any move out of
// a terminal state).
var ErrInvalidStateTransition = errors.New("invalid state transition")
