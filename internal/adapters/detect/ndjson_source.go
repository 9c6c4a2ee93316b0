// Package detect provides detection stream sources. Detections arrive
// from the model under test, not from hardware, so these sources sit on
// the opposite side of the correlation pipeline from signal adapters.
package detect

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

// FileSource replays an NDJSON detection log, one detection object per
// line. Blank lines are skipped. Lines must be ordered by timestamp;
// out-of-order lines are rejected so a bad capture fails loudly instead
// of silently skewing latency statistics.
type FileSource struct {
	mu     sync.Mutex
	f      *os.File
	r      *bufio.Reader
	lastTS float64
	line   int
	closed bool
}

func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{f: f, r: bufio.NewReader(f)}, nil
}

func (s *FileSource) Next() (*domain.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed {
			return nil, io.EOF
		}
		line, err := s.r.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}
		s.line++

		trimmed := trimSpace(line)
		if len(trimmed) == 0 {
			if err == io.EOF {
				return nil, io.EOF
			}
			continue
		}

		var d domain.Detection
		if uerr := json.Unmarshal(trimmed, &d); uerr != nil {
			return nil, fmt.Errorf("detections line %d: %w", s.line, uerr)
		}
		if d.Timestamp < s.lastTS {
			return nil, fmt.Errorf("detections line %d: timestamp %g precedes %g", s.line, d.Timestamp, s.lastTS)
		}
		s.lastTS = d.Timestamp
		return &d, nil
	}
}

func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}

func trimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\t' || b[start] == '\r' || b[start] == '\n') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t' || b[end-1] == '\r' || b[end-1] == '\n') {
		end--
	}
	return b[start:end]
}

// LoadGroundTruth reads an NDJSON annotation file into memory. Ground
// truth sets are small enough that streaming is not worth the trouble.
func LoadGroundTruth(path string) ([]*domain.GroundTruth, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*domain.GroundTruth
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		b := trimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var gt domain.GroundTruth
		if err := json.Unmarshal(b, &gt); err != nil {
			return nil, fmt.Errorf("ground truth line %d: %w", line, err)
		}
		out = append(out, &gt)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ ports.DetectionSource = (*FileSource)(nil)
