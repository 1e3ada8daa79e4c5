package logger

import (
	"context"
	"maps"
	"sync"

	"github.com/rs/zerolog"
)

// Entry is one captured log line.
type Entry struct {
	Level   zerolog.Level
	Message string
	Fields  map[string]interface{}
	Err     error
}

type recording struct {
	mu      sync.Mutex
	entries []Entry
}

// Recorder is a Logger that keeps every entry in memory for assertions.
// Loggers derived with WithField and friends write into the same recording.
type Recorder struct {
	rec    *recording
	fields map[string]interface{}
	err    error
}

func NewRecorder() *Recorder {
	return &Recorder{rec: &recording{}}
}

func (r *Recorder) derive(fields map[string]interface{}, err error) *Recorder {
	merged := maps.Clone(r.fields)
	if merged == nil {
		merged = map[string]interface{}{}
	}
	maps.Copy(merged, fields)
	return &Recorder{rec: r.rec, fields: merged, err: err}
}

func (r *Recorder) record(level zerolog.Level, msg string, extra map[string]interface{}) {
	fields := maps.Clone(r.fields)
	if len(extra) > 0 {
		if fields == nil {
			fields = map[string]interface{}{}
		}
		maps.Copy(fields, extra)
	}

	r.rec.mu.Lock()
	r.rec.entries = append(r.rec.entries, Entry{Level: level, Message: msg, Fields: fields, Err: r.err})
	r.rec.mu.Unlock()
}

func (r *Recorder) Debug(msg string) { r.record(zerolog.DebugLevel, msg, nil) }
func (r *Recorder) Info(msg string)  { r.record(zerolog.InfoLevel, msg, nil) }
func (r *Recorder) Warn(msg string)  { r.record(zerolog.WarnLevel, msg, nil) }
func (r *Recorder) Error(msg string) { r.record(zerolog.ErrorLevel, msg, nil) }
func (r *Recorder) Fatal(msg string) { r.record(zerolog.FatalLevel, msg, nil) }

func (r *Recorder) DebugWithFields(msg string, f map[string]interface{}) {
	r.record(zerolog.DebugLevel, msg, f)
}
func (r *Recorder) InfoWithFields(msg string, f map[string]interface{}) {
	r.record(zerolog.InfoLevel, msg, f)
}
func (r *Recorder) WarnWithFields(msg string, f map[string]interface{}) {
	r.record(zerolog.WarnLevel, msg, f)
}
func (r *Recorder) ErrorWithFields(msg string, f map[string]interface{}) {
	r.record(zerolog.ErrorLevel, msg, f)
}
func (r *Recorder) FatalWithFields(msg string, f map[string]interface{}) {
	r.record(zerolog.FatalLevel, msg, f)
}

func (r *Recorder) WithField(key string, value interface{}) Logger {
	return r.derive(map[string]interface{}{key: value}, r.err)
}
func (r *Recorder) WithFields(fields map[string]interface{}) Logger { return r.derive(fields, r.err) }
func (r *Recorder) WithError(err error) Logger                      { return r.derive(nil, err) }
func (r *Recorder) WithContext(context.Context) Logger              { return r }

func (r *Recorder) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.rec.mu.Lock()
	defer r.rec.mu.Unlock()
	out := make([]Entry, len(r.rec.entries))
	copy(out, r.rec.entries)
	return out
}

// Find returns the first entry with the given message.
func (r *Recorder) Find(msg string) (Entry, bool) {
	for _, e := range r.Entries() {
		if e.Message == msg {
			return e, true
		}
	}
	return Entry{}, false
}

// Count returns the number of entries at level.
func (r *Recorder) Count(level zerolog.Level) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.rec.mu.Lock()
	r.rec.entries = nil
	r.rec.mu.Unlock()
}
