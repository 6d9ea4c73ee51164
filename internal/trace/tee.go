package trace

import "go.uber.org/multierr"

// tee forwards each call to every enabled recorder.
type tee []Recorder

// Tee returns a recorder that fans out to all of recs. It is used to
// capture the durable and the in-memory trace of the same execution.
func Tee(recs ...Recorder) Recorder {
	return tee(recs)
}

func (t tee) Enabled() bool {
	for _, r := range t {
		if r.Enabled() {
			return true
		}
	}
	return false
}

func (t tee) RecordInputEvent(src Source, eventID uint64) {
	for _, r := range t {
		r.RecordInputEvent(src, eventID)
	}
}

func (t tee) RecordOutputEvent(src Source, eventID uint64) {
	for _, r := range t {
		r.RecordOutputEvent(src, eventID)
	}
}

func (t tee) RecordInputData(src Source, dataID uint64, value string) {
	for _, r := range t {
		r.RecordInputData(src, dataID, value)
	}
}

func (t tee) RecordOutputData(src Source, dataID uint64, value string) {
	for _, r := range t {
		r.RecordOutputData(src, dataID, value)
	}
}

func (t tee) RecordInstanceSnapshot(src Source, inputs, outputs, internal, internalSubUnits []string) {
	for _, r := range t {
		r.RecordInstanceSnapshot(src, inputs, outputs, internal, internalSubUnits)
	}
}

func (t tee) RecordExternalInput(src Source, eventID, eventCounter uint64, outputs []string) {
	for _, r := range t {
		r.RecordExternalInput(src, eventID, eventCounter, outputs)
	}
}

func (t tee) Close() error {
	var err error
	for _, r := range t {
		err = multierr.Append(err, r.Close())
	}
	return err
}
