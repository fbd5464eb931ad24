package cdp

import "fmt"

// ProtocolError is a request the inspector rejected or errored. Session state
// is unchanged by a ProtocolError; the caller sees the remote message.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("protocol error: %s", e.Message)
}
