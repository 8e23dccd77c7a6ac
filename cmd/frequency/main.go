// Command frequency reports the rolling arrival rate, in Hz, of messages
// on a topic pattern, computed over the last --window arrivals.
//
// Grounded on original_source/starling/introspection.py's frequency(),
// which keeps a fixed-size deque of arrival timestamps and derives a rate
// from the mean interval between them.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starling-mesh/starling/pkg/subscriber"
	"github.com/starling-mesh/starling/pkg/wire"
)

func main() {
	pattern := flag.String("topic", "#", "topic pattern to measure")
	window := flag.Int("window", 1000, "number of recent arrivals to average over")
	interval := flag.Duration("interval", time.Second, "how often to print the current rate")
	flag.Parse()

	sub, err := subscriber.New()
	if err != nil {
		logrus.WithError(err).Fatal("failed to start subscriber")
	}

	r := newRate(*window)
	if err := sub.Subscribe(*pattern, func(wire.Message) {
		r.mark()
	}); err != nil {
		logrus.WithError(err).Fatal("failed to subscribe")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			sub.Stop()
			return
		case <-ticker.C:
			fmt.Printf("%s\t%.2f Hz\n", *pattern, r.hz())
		}
	}
}

// rate keeps the last n arrival timestamps and derives a frequency from
// the mean gap between the oldest and newest sample.
type rate struct {
	mu        sync.Mutex
	times     []time.Time
	capacity  int
	nextWrite int
	filled    int
}

func newRate(capacity int) *rate {
	if capacity < 2 {
		capacity = 2
	}
	return &rate{times: make([]time.Time, capacity), capacity: capacity}
}

func (r *rate) mark() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times[r.nextWrite] = time.Now()
	r.nextWrite = (r.nextWrite + 1) % r.capacity
	if r.filled < r.capacity {
		r.filled++
	}
}

func (r *rate) hz() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled < 2 {
		return 0
	}
	oldestIdx := r.nextWrite
	if r.filled < r.capacity {
		oldestIdx = 0
	}
	newestIdx := (r.nextWrite - 1 + r.capacity) % r.capacity
	span := r.times[newestIdx].Sub(r.times[oldestIdx]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(r.filled-1) / span
}
