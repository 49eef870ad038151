package driver

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// TraceEntry represents a single request/response trace entry.
type TraceEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Driver      string          `json:"driver"`
	Endpoint    string          `json:"endpoint,omitempty"`
	Method      string          `json:"method,omitempty"`
	Model       string          `json:"model,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// NewEntry starts a trace entry for an SDK-backed call where the raw HTTP
// exchange is not visible.
func NewEntry(driverName, model string, req any) TraceEntry {
	entry := TraceEntry{Timestamp: time.Now(), Driver: driverName, Model: model}
	if req != nil {
		if data, err := json.Marshal(req); err == nil {
			entry.RequestBody = data
		}
	}
	return entry
}

// Finish records the outcome of the call onto e and emits it.
func (e TraceEntry) Finish(resp any, status int, err error) {
	if !IsTracingEnabled() {
		return
	}
	e.DurationMs = time.Since(e.Timestamp).Milliseconds()
	e.StatusCode = status
	if err != nil {
		e.Error = err.Error()
	}
	if resp != nil {
		if data, mErr := json.Marshal(resp); mErr == nil {
			e.Response = data
		}
	}
	Trace(e)
}

// traceSink appends entries to an NDJSON file, one line per provider attempt.
type traceSink struct {
	mu   sync.Mutex
	file *os.File
}

func (s *traceSink) append(entry TraceEntry) {
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.file.Write(append(line, '\n'))
}

func (s *traceSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.file.Close()
}

var activeSink atomic.Pointer[traceSink]

// EnableTracing starts appending trace entries to path, replacing any active
// trace file. The returned func stops tracing.
func EnableTracing(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	sink := &traceSink{file: f}
	if prev := activeSink.Swap(sink); prev != nil {
		prev.close()
	}
	return func() {
		if activeSink.CompareAndSwap(sink, nil) {
			sink.close()
		}
	}, nil
}

// DisableTracing stops tracing and closes the trace file.
func DisableTracing() {
	if prev := activeSink.Swap(nil); prev != nil {
		prev.close()
	}
}

func IsTracingEnabled() bool {
	return activeSink.Load() != nil
}

// Trace records entry when tracing is enabled.
func Trace(entry TraceEntry) {
	sink := activeSink.Load()
	if sink == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	sink.append(entry)
}
