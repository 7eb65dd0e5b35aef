package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogs(t *testing.T) {
	logs := map[string]func(t *testing.T) Log{
		"mem": func(t *testing.T) Log {
			return NewMemLog()
		},
		"file": func(t *testing.T) Log {
			l, err := OpenFileLog(filepath.Join(t.TempDir(), "replica.jsonl"))
			require.NoError(t, err)
			return l
		},
		"zstd": func(t *testing.T) Log {
			l, err := OpenFileLog(filepath.Join(t.TempDir(), "replica.jsonl.zst"), WithCompression())
			require.NoError(t, err)
			return l
		},
		"sqlite": func(t *testing.T) Log {
			l, err := OpenSQLiteLog(filepath.Join(t.TempDir(), "replica.db"))
			require.NoError(t, err)
			return l
		},
	}

	for name, open := range logs {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
			t.Cleanup(cancel)

			l := open(t)
			t.Cleanup(func() { _ = l.Close() })

			var empty []Record
			require.NoError(t, l.Replay(ctx, collect(&empty)))
			assert.Empty(t, empty)

			want := records(5)
			for _, r := range want {
				require.NoError(t, l.Append(ctx, r))
			}

			var got []Record
			require.NoError(t, l.Replay(ctx, collect(&got)))
			assert.Equal(t, want, got)
		})
	}
}

func TestFileLogReopen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	path := filepath.Join(t.TempDir(), "replica.jsonl.zst")
	l, err := OpenFileLog(path, WithCompression())
	require.NoError(t, err)
	want := records(3)
	for _, r := range want[:2] {
		require.NoError(t, l.Append(ctx, r))
	}
	require.NoError(t, l.Close())

	l, err = OpenFileLog(path, WithCompression())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	require.NoError(t, l.Append(ctx, want[2]))

	var got []Record
	require.NoError(t, l.Replay(ctx, collect(&got)))
	assert.Equal(t, want, got)
}

func TestFileLogTornTail(t *testing.T) {
	tests := []struct {
		name string
		opts []FileOption
		torn string
	}{
		{"plain", nil, `{"type":"post","fie`},
		{"zstd prefix", []FileOption{WithCompression()}, "\x00\x00"},
		{"zstd frame", []FileOption{WithCompression()}, "\x00\x00\x00\x28\x28\xb5\x2f\xfd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
			t.Cleanup(cancel)

			path := filepath.Join(t.TempDir(), "replica.log")
			want := records(3)

			l, err := OpenFileLog(path, tt.opts...)
			require.NoError(t, err)
			require.NoError(t, l.Append(ctx, want[0]))
			require.NoError(t, l.Close())
			// the replica crashes in the middle of the next append
			appendRaw(t, path, tt.torn)

			l, err = OpenFileLog(path, tt.opts...)
			require.NoError(t, err)
			var got []Record
			require.NoError(t, l.Replay(ctx, collect(&got)))
			assert.Equal(t, want[:1], got)
			for _, r := range want[1:] {
				require.NoError(t, l.Append(ctx, r))
			}
			require.NoError(t, l.Close())

			l, err = OpenFileLog(path, tt.opts...)
			require.NoError(t, err)
			t.Cleanup(func() { _ = l.Close() })
			got = nil
			require.NoError(t, l.Replay(ctx, collect(&got)))
			assert.Equal(t, want, got)
		})
	}
}

func TestFileLogReplayCutsTornTail(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	path := filepath.Join(t.TempDir(), "replica.jsonl")
	l, err := OpenFileLog(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	want := records(3)
	for _, r := range want[:2] {
		require.NoError(t, l.Append(ctx, r))
	}
	appendRaw(t, path, `{"type":"post","fie`)

	var got []Record
	require.NoError(t, l.Replay(ctx, collect(&got)))
	assert.Equal(t, want[:2], got)

	require.NoError(t, l.Append(ctx, want[2]))
	got = nil
	require.NoError(t, l.Replay(ctx, collect(&got)))
	assert.Equal(t, want, got)
}

func TestFileLogMalformedOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replica.jsonl")
	appendRaw(t, path, "garbage\n"+`{"type":"post","fields":{}}`+"\n")

	_, err := OpenFileLog(path)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFileLogMalformedTrailingLine(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	path := filepath.Join(t.TempDir(), "replica.jsonl")
	l, err := OpenFileLog(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NoError(t, l.Append(ctx, records(1)[0]))
	appendRaw(t, path, "garbage\n")

	var got []Record
	require.NoError(t, l.Replay(ctx, collect(&got)))
	assert.Len(t, got, 1)
}

func TestFileLogMalformedInterior(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	path := filepath.Join(t.TempDir(), "replica.jsonl")
	l, err := OpenFileLog(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	rs := records(2)
	require.NoError(t, l.Append(ctx, rs[0]))
	appendRaw(t, path, "garbage\n")
	require.NoError(t, l.Append(ctx, rs[1]))

	var got []Record
	err = l.Replay(ctx, collect(&got))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Len(t, got, 1)
}

func TestReplayStopsOnCallbackError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	l := NewMemLog()
	for _, r := range records(3) {
		require.NoError(t, l.Append(ctx, r))
	}

	stop := fmt.Errorf("stop")
	calls := 0
	err := l.Replay(ctx, func(Record) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 3, l.Len())
}

func records(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		fields, _ := json.Marshal(map[string]int{"n": i})
		out[i] = Record{Type: "post", Fields: fields}
	}
	return out
}

func collect(out *[]Record) func(Record) error {
	return func(r Record) error {
		*out = append(*out, r)
		return nil
	}
}

func appendRaw(t *testing.T, path, raw string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(raw)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
