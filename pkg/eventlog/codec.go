package eventlog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// frameHeaderSize is the length prefix on each frame: raw size then
// compressed size, both uint32 little-endian.
const frameHeaderSize = 8

// WriteTo flushes the buffered events as one LZ4-compressed frame and
// resets the buffer.
func (l *Logger) WriteTo(w io.Writer) error {
	if l == nil || len(l.events) == 0 {
		return nil
	}

	raw, err := json.Marshal(l.events)
	if err != nil {
		return fmt.Errorf("eventlog: encode events: %w", err)
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))

	written, err := lz4.CompressBlock(raw, compressed, nil)
	if err != nil {
		return fmt.Errorf("eventlog: compress frame: %w", err)
	}

	// Incompressible frames are stored raw, flagged by a zero compressed size.
	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(header[0:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(header[4:], uint32(written))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("eventlog: write frame header: %w", err)
	}

	payload := compressed[:written]
	if written == 0 {
		payload = raw
	}

	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("eventlog: write frame: %w", err)
	}

	l.events = l.events[:0]

	return nil
}

// ReadFrom decodes every frame in r, returning the concatenated events.
func ReadFrom(r io.Reader) ([]Event, error) {
	var events []Event

	header := make([]byte, frameHeaderSize)

	for {
		_, err := io.ReadFull(r, header)
		if err == io.EOF {
			return events, nil
		}

		if err != nil {
			return nil, fmt.Errorf("eventlog: read frame header: %w", err)
		}

		rawSize := binary.LittleEndian.Uint32(header[0:])
		compressedSize := binary.LittleEndian.Uint32(header[4:])

		payloadSize := compressedSize
		if compressedSize == 0 {
			payloadSize = rawSize
		}

		payload := make([]byte, payloadSize)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("eventlog: read frame: %w", err)
		}

		raw := payload

		if compressedSize != 0 {
			raw = make([]byte, rawSize)
			if _, err := lz4.UncompressBlock(payload, raw); err != nil {
				return nil, fmt.Errorf("eventlog: decompress frame: %w", err)
			}
		}

		var frame []Event
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, fmt.Errorf("eventlog: decode events: %w", err)
		}

		events = append(events, frame...)
	}
}
