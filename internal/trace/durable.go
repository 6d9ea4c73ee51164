package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileExtension is the extension of durable trace files.
const FileExtension = "fbt"

const filePrefix = "trace_"

// FileName returns trace_<instance>_<YYYYMMDD_HHMMSSmmm>.fbt for the
// resource captured at t.
func FileName(resource string, t time.Time) string {
	stamp := t.Format("20060102_150405") + fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
	return filePrefix + resource + "_" + stamp + "." + FileExtension
}

// ResourceFromFileName extracts the resource name from a trace file name.
// Resource names may themselves contain underscores.
func ResourceFromFileName(name string) (string, error) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, filePrefix) || !strings.HasSuffix(base, "."+FileExtension) {
		return "", fmt.Errorf("not a trace file: %s", base)
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(base, filePrefix), "."+FileExtension)
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return "", fmt.Errorf("trace file name has no capture timestamp: %s", base)
	}
	return strings.Join(parts[:len(parts)-2], "_"), nil
}

// durableRecorder serializes records into fixed-size packets and appends
// full packets to the resource's trace file.
type durableRecorder struct {
	file   *os.File
	logger *zap.Logger
	clock  func() int64

	packetSize int
	stream     uuid.UUID
	seq        uint32

	buf     []byte // records of the open packet
	records uint32
	beginTS int64
	endTS   int64

	dropped int
	err     error
}

func newDurable(resource string, opts Options) (Recorder, error) {
	logger := opts.Logger.With(zap.String("resource", resource))
	if opts.Dir == "" {
		logger.Debug("durable tracing disabled: no output directory")
		return Disabled{}, nil
	}
	info, err := os.Stat(opts.Dir)
	if err != nil || !info.IsDir() {
		logger.Warn("durable tracing disabled: output directory unavailable", zap.String("dir", opts.Dir))
		return Disabled{}, nil
	}
	if opts.PacketSize <= packetHeaderSize {
		return nil, fmt.Errorf("packet size %d must exceed header size %d", opts.PacketSize, packetHeaderSize)
	}

	path := filepath.Join(opts.Dir, FileName(resource, opts.Now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	logger.Info("durable tracing enabled", zap.String("file", path))

	return &durableRecorder{
		file:       f,
		logger:     logger,
		clock:      opts.Clock,
		packetSize: opts.PacketSize,
		stream:     uuid.Must(uuid.NewV7()),
		buf:        make([]byte, 0, opts.PacketSize-packetHeaderSize),
	}, nil
}

func (r *durableRecorder) Enabled() bool { return true }

func (r *durableRecorder) write(t EventType, p Payload) {
	if r.file == nil || r.err != nil {
		return
	}
	m := NewMessage(t, r.clock(), p)
	rec := appendRecord(nil, m)
	capacity := r.packetSize - packetHeaderSize
	if len(rec) > capacity {
		r.dropped++
		r.logger.Warn("trace record larger than packet dropped",
			zap.Stringer("type", t),
			zap.Int("size", len(rec)),
			zap.Int("capacity", capacity))
		return
	}
	if len(r.buf)+len(rec) > capacity {
		r.flush()
	}
	if r.records == 0 {
		r.beginTS = m.Timestamp
	}
	r.endTS = m.Timestamp
	r.buf = append(r.buf, rec...)
	r.records++
}

// flush writes the open packet, padded to the packet size.
func (r *durableRecorder) flush() {
	if r.records == 0 || r.err != nil {
		return
	}
	packet := make([]byte, r.packetSize)
	packetHeader{
		Stream:      r.stream,
		PacketSize:  uint32(r.packetSize),
		ContentSize: uint32(packetHeaderSize + len(r.buf)),
		Records:     r.records,
		BeginTS:     uint64(r.beginTS),
		EndTS:       uint64(r.endTS),
		Seq:         r.seq,
	}.put(packet)
	copy(packet[packetHeaderSize:], r.buf)

	if _, err := r.file.Write(packet); err != nil {
		r.err = fmt.Errorf("write trace packet %d: %w", r.seq, err)
		r.logger.Error("trace packet write failed", zap.Error(err))
		return
	}
	r.seq++
	r.buf = r.buf[:0]
	r.records = 0
}

func (r *durableRecorder) RecordInputEvent(src Source, eventID uint64) {
	r.write(ReceiveInputEvent, &EventPayload{Source: src, EventID: eventID})
}

func (r *durableRecorder) RecordOutputEvent(src Source, eventID uint64) {
	r.write(SendOutputEvent, &EventPayload{Source: src, EventID: eventID})
}

func (r *durableRecorder) RecordInputData(src Source, dataID uint64, value string) {
	r.write(InputData, &DataPayload{Source: src, DataID: dataID, Value: value})
}

func (r *durableRecorder) RecordOutputData(src Source, dataID uint64, value string) {
	r.write(OutputData, &DataPayload{Source: src, DataID: dataID, Value: value})
}

func (r *durableRecorder) RecordInstanceSnapshot(src Source, inputs, outputs, internal, internalSubUnits []string) {
	r.write(InstanceData, &InstanceSnapshotPayload{
		Source:           src,
		Inputs:           inputs,
		Outputs:          outputs,
		Internal:         internal,
		InternalSubUnits: internalSubUnits,
	})
}

func (r *durableRecorder) RecordExternalInput(src Source, eventID, eventCounter uint64, outputs []string) {
	r.write(ExternalEventInput, &ExternalEventPayload{
		Source:       src,
		EventID:      eventID,
		EventCounter: eventCounter,
		Outputs:      outputs,
	})
}

// Close flushes the open packet and closes the file. It reports the first
// write error seen during the recorder's lifetime.
func (r *durableRecorder) Close() error {
	if r.file == nil {
		return r.err
	}
	r.flush()
	if r.dropped > 0 {
		r.logger.Warn("trace records dropped", zap.Int("count", r.dropped))
	}
	err := r.file.Close()
	r.file = nil
	if r.err != nil {
		return r.err
	}
	if err != nil {
		return fmt.Errorf("close trace file: %w", err)
	}
	return nil
}
