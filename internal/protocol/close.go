package protocol

// Websocket close codes used by the room engine (RFC 6455 §7.4.1).
const (
	CloseGoingAway      = 1001 // superseded link, or room terminating
	CloseProtocolError  = 1002 // audio send failure, malformed frame sequence
	CloseCannotAccept   = 1003 // room full, unknown room, not a committed player
	CloseViolatedPolicy = 1008 // missing or unresolvable session on upgrade
)

// CloseReason is the code/text pair a link is closed with.
type CloseReason struct {
	Code int
	Text string
}

// CannotAccept rejects an admission attempt.
func CannotAccept(text string) *CloseReason {
	return &CloseReason{Code: CloseCannotAccept, Text: text}
}

// GoingAway closes a link that is being replaced or torn down.
func GoingAway(text string) *CloseReason {
	return &CloseReason{Code: CloseGoingAway, Text: text}
}

// ProtocolError closes a link after a fatal transport failure.
func ProtocolError(text string) *CloseReason {
	return &CloseReason{Code: CloseProtocolError, Text: text}
}

// ViolatedPolicy closes an upgrade that carried no resolvable session.
func ViolatedPolicy(text string) *CloseReason {
	return &CloseReason{Code: CloseViolatedPolicy, Text: text}
}
