package streaming

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// DecodeDefinition turns a SPLIT_UPDATE envelope's base64 definition field
// into the raw flag-definition JSON, applying whichever compression codec
// the envelope declared. An unrecognized code is the caller's cue to fall
// back to a full fetch rather than trust this function's output.
func DecodeDefinition(compression int, encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("streaming: decoding base64 definition: %w", err)
	}

	switch compression {
	case CompressionNone:
		return raw, nil
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("streaming: opening gzip definition: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionZlib:
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("streaming: opening zlib definition: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("streaming: unrecognized compression code %d", compression)
	}
}
