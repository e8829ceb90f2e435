// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// FileSink appends newline-delimited JSON alert records to a file, one
// record per line, behind a single writer lock (grounded on
// original_source's wf-core FileAlertSink; spec §12's supplemented
// file-sink feature). It is the bundled default sink type, letting the
// end-to-end scenarios in spec §8 run against a real sink with no
// external service.
type FileSink struct {
	name string
	mu   sync.Mutex
	f    *os.File
}

// OpenFileSink opens path for append, creating it if necessary.
func OpenFileSink(name, path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink %s: open %s: %w", name, path, err)
	}
	return &FileSink{name: name, f: f}, nil
}

func (s *FileSink) Name() string { return s.name }

func (s *FileSink) Write(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(payload); err != nil {
		return err
	}
	_, err := s.f.Write([]byte("\n"))
	return err
}

func (s *FileSink) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
