package permissions

import (
	"errors"
	"fmt"
)

var ErrMicrophoneDenied = errors.New("microphone permission not granted")

// Status mirrors AVAuthorizationStatus.
type Status int

const (
	NotDetermined Status = 0
	Restricted    Status = 1
	Denied        Status = 2
	Authorized    Status = 3
)

func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "not_determined"
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}
