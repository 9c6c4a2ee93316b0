// Package resultlog journals latency results to disk as they are
// produced, so partial results survive a crash and remain retrievable
// after an adapter fault on another source.
package resultlog

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

// record format: [8 bytes id][4 bytes len][len bytes json]
const recordHeaderLen = 12

type FileLog struct {
	mu        sync.Mutex
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.LogEntryID
	flushed   ports.LogEntryID
	sizeBytes int64
}

// NewFileLog opens (or creates) the journal for sessionID under dir.
// An existing journal is scanned so a restarted process can replay
// unflushed results; a torn tail record is truncated away.
func NewFileLog(dir, sessionID string) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "results-"+sessionID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	l := &FileLog{
		path:     path,
		metaPath: filepath.Join(dir, "results-"+sessionID+".meta"),
		file:     f,
		writer:   bufio.NewWriterSize(f, 1<<18),
	}
	if err := l.bootstrap(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return l, nil
}

func (l *FileLog) bootstrap() error {
	if err := l.scanExisting(); err != nil {
		return err
	}
	if err := l.loadFlushed(); err != nil {
		return err
	}
	if l.nextID < l.flushed {
		l.nextID = l.flushed
	}
	_, err := l.file.Seek(0, io.SeekEnd)
	return err
}

func (l *FileLog) scanExisting() error {
	stat, err := os.Stat(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err != nil || stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(l.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.LogEntryID
	)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("journal scan header: %w", err)
		}
		id := ports.LogEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])

		if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("journal scan body: %w", err)
		}
		offset += recordHeaderLen + int64(length)
		lastID = id
	}

	if err := l.file.Truncate(offset); err != nil {
		return err
	}
	l.sizeBytes = offset
	l.nextID = lastID
	return nil
}

func (l *FileLog) loadFlushed() error {
	data, err := os.ReadFile(l.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("journal meta parse: %w", err)
	}
	l.flushed = ports.LogEntryID(u)
	return nil
}

func (l *FileLog) Append(r *domain.LatencyResult) (ports.LogEntryID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID + 1

	b, err := json.Marshal(r)
	if err != nil {
		return 0, err
	}

	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))

	if _, err := l.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := l.writer.Write(b); err != nil {
		return 0, err
	}
	// The buffer coalesces header and body into one write; every record
	// is flushed before Append returns so a crash leaves it on disk.
	if err := l.writer.Flush(); err != nil {
		return 0, err
	}

	l.nextID = id
	l.sizeBytes += int64(len(hdr) + len(b))
	return id, nil
}

func (l *FileLog) Replay(from ports.LogEntryID, fn func(id ports.LogEntryID, r *domain.LatencyResult) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.Flush(); err != nil {
		return err
	}

	f, err := os.Open(l.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("journal replay header: %w", err)
		}
		id := ports.LogEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])

		b := make([]byte, length)
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("corrupt journal: %w", err)
		}
		if id < from {
			continue
		}

		var res domain.LatencyResult
		if err := json.Unmarshal(b, &res); err != nil {
			return fmt.Errorf("corrupt journal entry %d: %w", id, err)
		}
		if err := fn(id, &res); err != nil {
			return err
		}
	}
}

func (l *FileLog) MarkFlushed(upto ports.LogEntryID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if upto > l.flushed {
		l.flushed = upto
	}
	return os.WriteFile(l.metaPath, []byte(fmt.Sprintf("%d\n", l.flushed)), 0o644)
}

func (l *FileLog) Stats() ports.ResultLogStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ports.ResultLogStats{
		OldestUnflushed: l.flushed + 1,
		LatestAppended:  l.nextID,
		SizeBytes:       l.sizeBytes,
	}
}

// Close flushes any buffered bytes and releases the file descriptor.
// The session owns its journal and closes it at finalization.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

var _ ports.ResultLog = (*FileLog)(nil)
