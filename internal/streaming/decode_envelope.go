package streaming

import (
	"encoding/json"
	"fmt"
)

// DecodeEnvelope parses an SSE message's data payload. OCCUPANCY messages
// carry their channel name in the SSE "channel" metadata rather than the
// JSON body in the real wire protocol; RawEvent does not carry that name,
// so the returned Envelope's Channel field is left empty.
func DecodeEnvelope(raw RawEvent) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		return Envelope{}, fmt.Errorf("streaming: decoding envelope: %w", err)
	}
	if env.Type == "" {
		// A JSON payload with no type field is treated as OCCUPANCY, with its
		// publishers count (0 when the field is absent).
		if json.Valid(raw.Data) {
			var occ struct {
				Publishers int `json:"publishers"`
			}
			if err := json.Unmarshal(raw.Data, &occ); err == nil && occ.Publishers >= 0 {
				env.Type = EventOccupancy
				env.PublishersCount = occ.Publishers
			}
		}
	}
	return env, nil
}
