package trace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// DecodeError reports the first malformed element of a durable trace.
// Decoding stops at the first error; no partial result is returned.
type DecodeError struct {
	File   string
	Packet int
	Record int    // -1 for packet level errors
	Field  string // empty when the error is not tied to a field
	Err    error
}

func (e *DecodeError) Error() string {
	loc := fmt.Sprintf("%s: packet %d", filepath.Base(e.File), e.Packet)
	if e.Record >= 0 {
		loc += fmt.Sprintf(" record %d", e.Record)
	}
	if e.Field != "" {
		loc += fmt.Sprintf(" field %s", e.Field)
	}
	return fmt.Sprintf("decode %s: %v", loc, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// DecodeFile reads every record of one durable trace file in order.
func DecodeFile(path string) ([]EventMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace file: %w", err)
	}
	return decodePackets(path, data)
}

func decodePackets(path string, data []byte) ([]EventMessage, error) {
	var (
		out    []EventMessage
		stream uuid.UUID
	)
	for packet := 0; len(data) > 0; packet++ {
		fail := func(record int, field string, err error) error {
			return &DecodeError{File: path, Packet: packet, Record: record, Field: field, Err: err}
		}

		h, err := parseHeader(data)
		if err != nil {
			return nil, fail(-1, "", err)
		}
		if int(h.PacketSize) > len(data) {
			return nil, fail(-1, "", fmt.Errorf("truncated packet: need %d bytes, have %d", h.PacketSize, len(data)))
		}
		if packet == 0 {
			stream = h.Stream
		} else if h.Stream != stream {
			return nil, fail(-1, "", fmt.Errorf("stream id %s differs from %s", h.Stream, stream))
		}
		if h.Seq != uint32(packet) {
			return nil, fail(-1, "", fmt.Errorf("packet sequence %d, want %d", h.Seq, packet))
		}

		body := data[packetHeaderSize:h.ContentSize]
		var records uint32
		for len(body) > 0 {
			size, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, fail(int(records), "", protowire.ParseError(n))
			}
			body = body[n:]
			if size > uint64(len(body)) {
				return nil, fail(int(records), "", fmt.Errorf("record length %d exceeds packet content", size))
			}
			m, field, err := decodeMessage(body[:size])
			if err != nil {
				return nil, fail(int(records), field, err)
			}
			out = append(out, m)
			body = body[size:]
			records++
		}
		if records != h.Records {
			return nil, fail(-1, "", fmt.Errorf("decoded %d records, header declares %d", records, h.Records))
		}
		data = data[h.PacketSize:]
	}
	return out, nil
}

// DecodeDir decodes every trace file in dir and groups the messages by the
// resource named in each file name. Files of the same resource are joined
// in capture order.
func DecodeDir(dir string) (map[string][]EventMessage, error) {
	paths, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]EventMessage)
	for _, path := range paths {
		resource, err := ResourceFromFileName(path)
		if err != nil {
			return nil, err
		}
		msgs, err := DecodeFile(path)
		if err != nil {
			return nil, err
		}
		out[resource] = append(out[resource], msgs...)
	}
	return out, nil
}

// ListFiles returns the trace files in dir in capture order.
func ListFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("list trace files: %w", err)
	}
	paths, err := filepath.Glob(filepath.Join(dir, filePrefix+"*."+FileExtension))
	if err != nil {
		return nil, fmt.Errorf("list trace files: %w", err)
	}
	// The capture stamp is fixed width, so lexical order is capture order.
	sort.Strings(paths)
	return paths, nil
}

// ExternalEvents keeps only the externalEventInput messages of each
// resource, preserving order.
func ExternalEvents(traces map[string][]EventMessage) map[string][]EventMessage {
	out := make(map[string][]EventMessage, len(traces))
	for resource, msgs := range traces {
		var ext []EventMessage
		for _, m := range msgs {
			if m.Type == ExternalEventInput {
				ext = append(ext, m)
			}
		}
		out[resource] = ext
	}
	return out
}
