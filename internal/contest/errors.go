package contest

import "errors"

var (
	// ErrContestNotFound is returned when a contest id is unknown to the registry.
	ErrContestNotFound = errors.New("contest: not found")
	// ErrDuplicateContest is returned when creating a contest with an existing id.
	ErrDuplicateContest = errors.New("contest: duplicate id")
	// ErrRegistrationClosed is returned when entering a contest past its deadline.
	ErrRegistrationClosed = errors.New("contest: registration closed")
	// ErrContestFull is returned when the participant limit is reached.
	ErrContestFull = errors.New("contest: participant limit reached")
	// ErrDuplicateParticipant is returned when a user enters a contest twice.
	ErrDuplicateParticipant = errors.New("contest: user already entered")
	// ErrPaymentDeclined is returned when the gateway declines the entry fee.
	ErrPaymentDeclined = errors.New("contest: entry payment declined")
)
