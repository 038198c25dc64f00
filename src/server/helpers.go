package server

import (
	"range-meter/src/protocol"
	"range-meter/src/session"
)

// -----------------------------------------------------------------------------

// statusValue maps session state onto the wire status tag.
func statusValue(st session.Status) protocol.StatusValue {
	switch st {
	case session.StatusConnecting:
		return protocol.StatusConnecting
	case session.StatusConnected:
		return protocol.StatusWaitingForData
	default:
		return protocol.StatusDisconnected
	}
}
