package defs

import "time"

// Protocol constants
const (
	MagicNumber     uint16 = 0x5047 // "PG"
	ProtocolVersion byte   = 1

	// Message types
	MsgWorkerRegister  byte = 0x01
	MsgWorkerHeartbeat byte = 0x02
	MsgJobRequest      byte = 0x03
	MsgJobAssign       byte = 0x04
	MsgJobResult       byte = 0x05
	MsgNoJob           byte = 0x06
	MsgAck             byte = 0x07
	MsgError           byte = 0x08

	// Error codes carried in MsgError payloads
	CodeInvalidPayload  = 1001
	CodeNotRegistered   = 1003
	CodeUnknownWorker   = 1005
	CodeStaleSubmission = 1007
	CodeUnknownMessage  = 1016

	// MaxPayloadBytes bounds a single frame; a batch of a few hundred
	// proxies with outcomes stays far below this.
	MaxPayloadBytes = 16 << 20

	// Configuration constants
	InitialRegistrationTimeout = 30 * time.Second
	ConnectionRetryDelay       = 1 * time.Second
	RequestTimeout             = 30 * time.Second
)
