package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"liquidityLedger/internal/model"
)

// JsonlStorage appends records to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutLogBatch appends a batch of log records.
func (s *JsonlStorage) PutLogBatch(logs []model.LogRecord) error {
	return s.Append(toAny(logs))
}

// Append writes each value as one JSON line.
func (s *JsonlStorage) Append(values []interface{}) error {
	if len(values) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := OpenJSONL(s.path, true)
	if err != nil {
		return err
	}
	for _, v := range values {
		if err := w.Write(v); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// JsonlSnapshotSink writes pool, tick and position records to three JSONL files in dir.
type JsonlSnapshotSink struct {
	pools     *JsonlStorage
	ticks     *JsonlStorage
	positions *JsonlStorage
}

func NewJsonlSnapshotSink(dir string) *JsonlSnapshotSink {
	return &JsonlSnapshotSink{
		pools:     NewJsonlStorage(filepath.Join(dir, "pools.jsonl")),
		ticks:     NewJsonlStorage(filepath.Join(dir, "ticks.jsonl")),
		positions: NewJsonlStorage(filepath.Join(dir, "positions.jsonl")),
	}
}

func (s *JsonlSnapshotSink) PutPoolStates(_ context.Context, pools []model.PoolStateRecord) error {
	return s.pools.Append(toAny(pools))
}

func (s *JsonlSnapshotSink) PutTicks(_ context.Context, ticks []model.TickRecord) error {
	return s.ticks.Append(toAny(ticks))
}

func (s *JsonlSnapshotSink) PutPositions(_ context.Context, positions []model.PositionRecord) error {
	return s.positions.Append(toAny(positions))
}

func toAny[T any](items []T) []interface{} {
	out := make([]interface{}, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out
}

// JSONLWriter is a buffered line writer over a file.
type JSONLWriter struct {
	file   *os.File
	writer *bufio.Writer
}

// OpenJSONL opens path for writing, creating parent directories. Without appendMode an
// existing file is truncated.
func OpenJSONL(path string, appendMode bool) (*JSONLWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &JSONLWriter{file: file, writer: bufio.NewWriter(file)}, nil
}

func (w *JSONLWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *JSONLWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	return w.file.Close()
}
