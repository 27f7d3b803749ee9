package trace

import (
	"fmt"
	"os"
)

// FileSink is a trace file that is synced after every write, so a run
// interrupted by a signal still leaves a readable partial trace.
type FileSink struct {
	f    *os.File
	path string
}

// OpenFileSink opens path for appending. With truncate set, any previous
// contents are discarded first.
func OpenFileSink(path string, truncate bool) (*FileSink, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &FileSink{f: f, path: path}, nil
}

// Path returns the file name the sink writes to.
func (s *FileSink) Path() string {
	return s.path
}

// Write appends p to the trace file.
func (s *FileSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Sync forces written data to stable storage.
func (s *FileSink) Sync() error {
	return syncData(s.f)
}

// Close syncs and closes the file.
func (s *FileSink) Close() error {
	if err := syncData(s.f); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
