package snapshot

import (
	"compress/gzip"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultEncodeRoundTrips(t *testing.T) {
	e := Entry{Topic: "robot.alpha.battery", Payload: []byte("42"), Timestamp: time.Unix(0, 0).UTC()}
	line, err := DefaultEncode(e)
	require.NoError(t, err)

	var decoded Entry
	require.NoError(t, json.Unmarshal(line, &decoded))
	require.Equal(t, e.Topic, decoded.Topic)
	require.Equal(t, e.Payload, decoded.Payload)
}

func TestDefaultFilenameHasNoTopicSegment(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	name := DefaultFilename(now)
	require.Equal(t, "2026-08-01T12-30-00_snapshot.jsonl.gz", name)
}

func TestWriteThenCloseEmitsGzipBytes(t *testing.T) {
	l := New(nil, "snapshot", WithEncode(DefaultEncode))

	buf := new(countingBuffer)
	gz := gzip.NewWriter(buf)
	l.write(gz, Entry{Topic: "a.b", Payload: []byte("x"), Timestamp: time.Unix(1, 0)})
	require.NoError(t, gz.Close())
	require.Greater(t, buf.n, 0)
}

type countingBuffer struct{ n int }

func (b *countingBuffer) Write(p []byte) (int, error) {
	b.n += len(p)
	return len(p), nil
}
