// Package streaming implements the SSE port: connecting to the control
// plane's push channel, decoding its event envelopes, and handing decoded
// updates to the push manager. Transport concerns (connect, reconnect,
// heartbeat timeout) live here; what to do with a decoded event is the push
// manager's job.
package streaming

// EventType tags the decoded data envelope carried by an SSE message.
type EventType string

const (
	EventSplitUpdate   EventType = "SPLIT_UPDATE"
	EventSplitKill     EventType = "SPLIT_KILL"
	EventSegmentUpdate EventType = "SEGMENT_UPDATE"
	EventControl       EventType = "CONTROL"
	EventOccupancy     EventType = "OCCUPANCY"
)

// ControlType is the sub-kind of a CONTROL envelope.
type ControlType string

const (
	ControlStreamingPaused   ControlType = "STREAMING_PAUSED"
	ControlStreamingResumed  ControlType = "STREAMING_RESUMED"
	ControlStreamingDisabled ControlType = "STREAMING_DISABLED"
)

// Compression codes carried on a SPLIT_UPDATE envelope's embedded definition.
const (
	CompressionNone = 0
	CompressionGzip = 1
	CompressionZlib = 2
)

// RawEvent is one SSE message as received: an id, an event name, and the raw
// JSON payload of its data field.
type RawEvent struct {
	ID    string
	Event string
	Data  []byte
}

// Envelope is the decoded data field of a push message, covering every
// variant the control plane may send. Only the fields relevant to Type are
// populated.
type Envelope struct {
	Type EventType `json:"type"`

	// SPLIT_UPDATE / SPLIT_KILL
	ChangeNumber         int64  `json:"changeNumber"`
	PreviousChangeNumber int64  `json:"pcn,omitempty"`
	Compression          int    `json:"d,omitempty"`
	Definition           string `json:"definition,omitempty"`
	SplitName            string `json:"splitName,omitempty"`
	DefaultTreatment     string `json:"defaultTreatment,omitempty"`

	// SEGMENT_UPDATE
	SegmentName string `json:"segmentName,omitempty"`

	// CONTROL
	ControlType ControlType `json:"controlType,omitempty"`

	// OCCUPANCY (the channel name travels on the message's channel, not the
	// JSON body; neither DecodeEnvelope nor the SSE client sets Channel, so
	// it stays empty)
	Channel         string `json:"-"`
	PublishersCount int    `json:"publishers"`
}
