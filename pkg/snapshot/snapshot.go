// Package snapshot implements the snapshot logger: a subscriber that
// writes the messages on a topic to a gzip-compressed, newline-delimited
// JSON file (see Logger for when entries are dropped).
//
// Grounded on original_source/starling/snapshot_logger.py's
// SnapshotCollector. The injectable encode function defaults to
// json-iterator/go's standard-library-compatible codec rather than
// encoding/json directly, per SPEC_FULL.md §4.6.
package snapshot

import (
	"compress/gzip"
	"fmt"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/starling-mesh/starling/pkg/subscriber"
	"github.com/starling-mesh/starling/pkg/wire"
)

// Entry is one logged record: the topic it arrived on, the raw payload,
// and the wall-clock time it was received.
type Entry struct {
	Topic     string    `json:"topic"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// EncodeFunc renders an Entry to a single line of output, without a
// trailing newline.
type EncodeFunc func(Entry) ([]byte, error)

var defaultJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultEncode marshals an Entry with json-iterator's
// standard-library-compatible codec.
func DefaultEncode(e Entry) ([]byte, error) {
	return defaultJSON.Marshal(e)
}

// DefaultFilename returns the timestamp-based filename
// snapshot_logger.py's SnapshotCollector uses by default: no topic
// segment, just "<timestamp>_snapshot.jsonl.gz".
func DefaultFilename(now time.Time) string {
	return fmt.Sprintf("%s_snapshot.jsonl.gz", now.Format("2006-01-02T15-04-05"))
}

// Logger subscribes to a topic pattern and appends matching messages to a
// gzip-compressed JSON-lines file. Received messages wait for the writer in
// a queue of 4096 entries; when that queue is full, new entries are dropped
// with a warning and are not written.
type Logger struct {
	sub    *subscriber.Subscriber
	topic  string
	encode EncodeFunc
	log    *logrus.Entry

	queue chan Entry
	stop  chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

// Option configures a Logger at construction time.
type Option func(*Logger)

// WithEncode overrides DefaultEncode.
func WithEncode(fn EncodeFunc) Option {
	return func(l *Logger) { l.encode = fn }
}

// New creates a Logger that will subscribe to topicPattern on sub once
// Start is called.
func New(sub *subscriber.Subscriber, topicPattern string, opts ...Option) *Logger {
	l := &Logger{
		sub:    sub,
		topic:  topicPattern,
		encode: DefaultEncode,
		log:    logrus.WithFields(logrus.Fields{"component": "snapshot", "topic": topicPattern}),
		queue:  make(chan Entry, 4096),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start blocks until at least one nexus has been discovered (so the first
// snapshot file isn't opened against an empty mesh), then opens filename
// for gzip-compressed append writes, subscribes to the logger's topic
// pattern, and starts the writer goroutine.
func (l *Logger) Start(filename string) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return fmt.Errorf("snapshot: logger already started")
	}
	l.started = true
	l.mu.Unlock()

	for l.sub.ConnectedCount() == 0 {
		select {
		case <-l.stop:
			return fmt.Errorf("snapshot: stopped before any nexus was discovered")
		case <-time.After(100 * time.Millisecond):
		}
	}

	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("snapshot: open %s: %w", filename, err)
	}
	gz, err := gzip.NewWriterLevel(f, gzip.DefaultCompression)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("snapshot: gzip writer: %w", err)
	}

	if err := l.sub.Subscribe(l.topic, l.enqueue); err != nil {
		_ = gz.Close()
		_ = f.Close()
		return fmt.Errorf("snapshot: subscribe: %w", err)
	}

	l.wg.Add(1)
	go l.writeLoop(f, gz)

	l.log.WithField("file", filename).Info("snapshot logger started")
	return nil
}

func (l *Logger) enqueue(m wire.Message) {
	select {
	case l.queue <- Entry{Topic: m.Topic, Payload: m.Payload, Timestamp: time.Now()}:
	default:
		l.log.Warn("snapshot queue full, dropping entry")
	}
}

func (l *Logger) writeLoop(f *os.File, gz *gzip.Writer) {
	defer l.wg.Done()
	defer func() {
		_ = gz.Close()
		_ = f.Close()
	}()

	for {
		select {
		case <-l.stop:
			l.drain(gz)
			return
		case e := <-l.queue:
			l.write(gz, e)
		}
	}
}

func (l *Logger) drain(gz *gzip.Writer) {
	for {
		select {
		case e := <-l.queue:
			l.write(gz, e)
		default:
			return
		}
	}
}

func (l *Logger) write(gz *gzip.Writer, e Entry) {
	line, err := l.encode(e)
	if err != nil {
		l.log.WithError(err).Warn("failed to encode snapshot entry")
		return
	}
	line = append(line, '\n')
	if _, err := gz.Write(line); err != nil {
		l.log.WithError(err).Warn("failed to write snapshot entry")
	}
}

// Stop unsubscribes from the logger's topic, flushes any queued entries,
// and closes the underlying file.
func (l *Logger) Stop() {
	l.stopOnce.Do(func() {
		_ = l.sub.Unsubscribe(l.topic)
		close(l.stop)
		l.wg.Wait()
	})
}
