package engine

import "errors"

// ErrInsufficientData is returned by baseline training when the historical
// window holds fewer samples than the training gate requires. No partial
// baseline is written.
var ErrInsufficientData = errors.New("insufficient data for training")

// ErrAlertResolved is returned when acknowledging or resolving an alert that
// has already reached its terminal state.
var ErrAlertResolved = errors.New("alert already resolved")
