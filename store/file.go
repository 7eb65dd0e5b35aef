package store

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// maxFrameSize bounds a compressed Record, so a torn length prefix cannot claim the memory.
const maxFrameSize = 1 << 24

// errTorn reports a Record that cannot be read back, as left by a crash in the middle of an append.
var errTorn = errors.New("torn record")

// FileLog is a Log of JSON lines in a single file, one line per Record, synced on every append.
// Compressed logs store every line as its own zstd frame behind a length prefix.
type FileLog struct {
	path       string
	compressed bool

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	dec *zstd.Decoder

	log *slog.Logger
}

// FileOption configures the FileLog.
type FileOption func(*FileLog)

// WithCompression makes the FileLog compress Records with zstd.
func WithCompression() FileOption {
	return func(l *FileLog) {
		l.compressed = true
	}
}

// WithFileLogger sets the logger of the FileLog.
func WithFileLogger(log *slog.Logger) FileOption {
	return func(l *FileLog) {
		l.log = log
	}
}

// OpenFileLog opens or creates the FileLog at path.
// A torn Record at the end of the file is cut off, so appends continue after the last whole one.
func OpenFileLog(path string, opts ...FileOption) (*FileLog, error) {
	l := &FileLog{path: path, log: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With("module", "store", "path", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	l.f = f

	if l.compressed {
		l.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, errors.Join(err, l.Close())
		}
		l.dec, err = zstd.NewReader(nil)
		if err != nil {
			return nil, errors.Join(err, l.Close())
		}
	}

	l.mu.Lock()
	err = l.scan(context.Background(), nil)
	l.mu.Unlock()
	if err != nil {
		return nil, errors.Join(err, l.Close())
	}
	return l, nil
}

func (l *FileLog) Append(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.enc != nil {
		frame := l.enc.EncodeAll(b, nil)
		b = binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(frame)), uint32(len(frame)))
		b = append(b, frame...)
	}
	if _, err := l.f.Write(b); err != nil {
		return fmt.Errorf("appending record: %w", err)
	}
	return l.f.Sync()
}

// Replay streams the Records of the file. A torn or malformed last Record, as left by a crash
// in the middle of an append, is cut off with a warning. Malformed Records before it are an error.
func (l *FileLog) Replay(ctx context.Context, fn func(Record) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scan(ctx, fn)
}

// scan reads the file from the start, handing every Record to fn if any, and truncates the file
// after the last whole Record if a torn one follows it. Caller must hold the lock.
func (l *FileLog) scan(ctx context.Context, fn func(Record) error) error {
	f, err := os.Open(l.path)
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	// end of the last whole Record
	var good int64
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, size, err := l.read(r)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, errTorn):
			if _, peekErr := r.Peek(1); !errors.Is(peekErr, io.EOF) {
				return fmt.Errorf("%w: record %d", ErrMalformed, n)
			}
			l.log.WarnContext(ctx, "cutting off torn trailing record", "record", n, "offset", good)
			if err := l.f.Truncate(good); err != nil {
				return fmt.Errorf("truncating torn record %d: %w", n, err)
			}
			return l.f.Sync()
		case err != nil:
			return fmt.Errorf("reading record %d: %w", n, err)
		}
		good += size

		if fn == nil {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// read reads the next Record and the number of bytes it takes in the file.
// It returns io.EOF at the end of the file only.
func (l *FileLog) read(r *bufio.Reader) (Record, int64, error) {
	var (
		line []byte
		size int64
	)
	if !l.compressed {
		var err error
		line, err = r.ReadBytes('\n')
		switch {
		case errors.Is(err, io.EOF) && len(line) == 0:
			return Record{}, 0, io.EOF
		case errors.Is(err, io.EOF):
			return Record{}, 0, errTorn
		case err != nil:
			return Record{}, 0, err
		}
		size = int64(len(line))
	} else {
		var prefix [4]byte
		if _, err := io.ReadFull(r, prefix[:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return Record{}, 0, errTorn
			}
			return Record{}, 0, err
		}
		frameSize := binary.BigEndian.Uint32(prefix[:])
		if frameSize > maxFrameSize {
			return Record{}, 0, errTorn
		}
		frame := make([]byte, frameSize)
		if _, err := io.ReadFull(r, frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Record{}, 0, errTorn
			}
			return Record{}, 0, err
		}

		var err error
		if line, err = l.dec.DecodeAll(frame, nil); err != nil {
			return Record{}, 0, errTorn
		}
		size = int64(len(prefix) + len(frame))
	}

	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil || rec.Type == "" {
		return Record{}, 0, errTorn
	}
	return rec, size, nil
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.enc != nil {
		err = l.enc.Close()
		l.enc = nil
	}
	if l.dec != nil {
		l.dec.Close()
		l.dec = nil
	}
	if l.f != nil {
		err = errors.Join(err, l.f.Close())
		l.f = nil
	}
	return err
}
