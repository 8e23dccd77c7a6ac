// Command snapshot records the messages on a topic pattern to a
// gzip-compressed JSON-lines file until --duration elapses or it is
// interrupted; with --duration 0 (the default) it runs until interrupted.
//
// Grounded on original_source/starling/snapshot_logger.py's
// SnapshotCollector CLI entry point.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starling-mesh/starling/pkg/snapshot"
	"github.com/starling-mesh/starling/pkg/subscriber"
)

func main() {
	topic := flag.String("topic", "snapshot", "topic pattern to record")
	file := flag.String("file", "", "output filename (default: timestamped, in the current directory)")
	duration := flag.Duration("duration", 0, "stop after this long (0 means run until interrupted)")
	flag.Parse()

	sub, err := subscriber.New()
	if err != nil {
		logrus.WithError(err).Fatal("failed to start subscriber")
	}

	logger := snapshot.New(sub, *topic)

	filename := *file
	if filename == "" {
		filename = snapshot.DefaultFilename(time.Now())
	}
	if err := logger.Start(filename); err != nil {
		logrus.WithError(err).Fatal("failed to start snapshot logger")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if *duration > 0 {
		select {
		case <-sigCh:
		case <-time.After(*duration):
		}
	} else {
		<-sigCh
	}

	logger.Stop()
	sub.Stop()
}
