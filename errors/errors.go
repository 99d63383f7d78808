package errors

import "fmt"

var (
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrWaitTimeout          = fmt.Errorf("event wait timeout exceeded")
	ErrNotConnected         = fmt.Errorf("stream is not connected")
	ErrNoPartyRoom          = fmt.Errorf("no party room joined")
	ErrNoActiveInvitation   = fmt.Errorf("no active invitation")
	ErrIncompatibleBuild    = fmt.Errorf("incompatible build id")
	ErrConfirmationResolved = fmt.Errorf("confirmation already resolved")
	ErrDuplicateMember      = fmt.Errorf("member already in party")
	ErrEmptyWords           = fmt.Errorf("no words have been found")
	ErrPartyService         = fmt.Errorf("party service request failed")
)
