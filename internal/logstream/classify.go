package logstream

import (
	"github.com/GriffinCanCode/jsgist/internal/protocol"
)

// ErrorType is the entry type given to exceptions and rejections
const ErrorType = "error"

// Classify turns an inbound protocol message into a log entry.
//
// log payloads pass through unchanged. error and unhandledRejection payloads
// are marked as errors with their stack shown. Any other message, or a
// payload that does not decode, yields false.
func Classify(msg protocol.Message) (Entry, bool) {
	switch msg.Type {
	case protocol.TypeLog, protocol.TypeError, protocol.TypeUnhandledRejection:
	default:
		return Entry{}, false
	}

	var e Entry
	if err := msg.Decode(&e); err != nil {
		return Entry{}, false
	}

	if msg.Type != protocol.TypeLog {
		e.Type = ErrorType
		e.ShowStack = true
		e.present |= keyType | keyShowStack
	}
	return e, true
}
