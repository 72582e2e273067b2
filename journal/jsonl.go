package journal

import (
	"encoding/json"
	"os"
	"sync"
)

// EventLog appends one JSON object per line.
type EventLog struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

func NewEventLog(path string) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &EventLog{f: f, enc: enc}, nil
}

func (l *EventLog) Append(v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(v)
}

func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
