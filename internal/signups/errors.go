package signups

import "errors"

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrHelpersDisabled  = errors.New("event does not take helpers")
	ErrRoleNotAllowed   = errors.New("role may not sign up for this event")
	ErrHelperRestricted = errors.New("role may not sign up as helper")
	ErrSlotNotFound     = errors.New("slot not found for this event")
	// ErrSignupNotFound covers missing, foreign and already cancelled signups.
	ErrSignupNotFound  = errors.New("active signup not found")
	ErrAlreadySignedUp = errors.New("already signed up")
)
