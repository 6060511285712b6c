package types

import "errors"

var (
	// ErrInsufficientData means the price series is shorter than the requested look-back.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrMissingIndicator means the active strategy mode needs an indicator that was not supplied.
	ErrMissingIndicator = errors.New("missing indicator")
	// ErrDataUnavailable is a collaborator I/O failure (empty or malformed response).
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrExecutionFailed means a trade submission was rejected or errored.
	ErrExecutionFailed = errors.New("execution failed")

	ErrInvalidAllocation = errors.New("invalid target allocation")
	ErrInvalidPortfolio  = errors.New("invalid portfolio")

	// ErrInvalidAlert is an alert payload that cannot be analysed.
	ErrInvalidAlert = errors.New("invalid alert")
	// ErrPlanNotPending means the plan was already executed, rejected or expired.
	ErrPlanNotPending = errors.New("plan not pending")
)
