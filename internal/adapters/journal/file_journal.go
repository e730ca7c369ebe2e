package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ghalamif/SensorLens/internal/ports"
)

const recordHeaderLen = 12

// ErrEmpty is returned by Latest when nothing has been journaled.
var ErrEmpty = errors.New("journal: no entries")

// FileJournal appends raw BulkData payloads to a single log file.
// entry format: [8 bytes id][4 bytes len][len bytes payload]
type FileJournal struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	writer     *bufio.Writer
	nextID     ports.JournalEntryID
	entries    uint64
	sizeBytes  int64
	lastOffset int64
}

func NewFileJournal(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "payloads.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	j := &FileJournal{
		path:       path,
		file:       f,
		writer:     bufio.NewWriterSize(f, 1<<16),
		lastOffset: -1,
	}
	if err := j.scanExisting(); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return j, nil
}

// scanExisting walks the log, truncating a torn tail left by a crash.
func (j *FileJournal) scanExisting() error {
	stat, err := j.file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.JournalEntryID
	)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("journal scan header: %w", err)
		}
		id := ports.JournalEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])

		if length > 0 {
			if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					break
				}
				return fmt.Errorf("journal scan body: %w", err)
			}
		}
		j.lastOffset = offset
		offset += recordHeaderLen + int64(length)
		lastID = id
		j.entries++
	}

	if err := j.file.Truncate(offset); err != nil {
		return err
	}
	j.sizeBytes = offset
	j.nextID = lastID
	return nil
}

// Append writes and flushes one payload.
func (j *FileJournal) Append(payload []byte) (ports.JournalEntryID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.nextID + 1

	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(payload)))

	if _, err := j.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := j.writer.Write(payload); err != nil {
		return 0, err
	}
	if err := j.writer.Flush(); err != nil {
		return 0, err
	}

	j.nextID = id
	j.entries++
	j.lastOffset = j.sizeBytes
	j.sizeBytes += int64(len(payload) + len(hdr))
	return id, nil
}

// Latest returns the most recently appended payload.
func (j *FileJournal) Latest() (ports.JournalEntryID, []byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.lastOffset < 0 {
		return 0, nil, ErrEmpty
	}

	var hdr [recordHeaderLen]byte
	if _, err := j.file.ReadAt(hdr[:], j.lastOffset); err != nil {
		return 0, nil, fmt.Errorf("journal read header: %w", err)
	}
	id := ports.JournalEntryID(binary.BigEndian.Uint64(hdr[0:8]))
	length := binary.BigEndian.Uint32(hdr[8:12])

	payload := make([]byte, length)
	if _, err := j.file.ReadAt(payload, j.lastOffset+recordHeaderLen); err != nil {
		return 0, nil, fmt.Errorf("corrupt journal: %w", err)
	}
	return id, payload, nil
}

func (j *FileJournal) Stats() ports.JournalStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ports.JournalStats{
		Entries:        j.entries,
		LatestAppended: j.nextID,
		SizeBytes:      j.sizeBytes,
	}
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

var _ ports.Journal = (*FileJournal)(nil)
