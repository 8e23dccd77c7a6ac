// Command topics subscribes to a pattern (by default every topic) and
// periodically prints a per-concrete-topic message count and arrival
// rate.
//
// Grounded on original_source/starling/introspection.py's topics().
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starling-mesh/starling/pkg/subscriber"
	"github.com/starling-mesh/starling/pkg/wire"
)

type stat struct {
	count uint64
	first time.Time
	last  time.Time
}

func main() {
	pattern := flag.String("pattern", "#", "topic pattern to watch")
	interval := flag.Duration("interval", 2*time.Second, "how often to print the table")
	flag.Parse()

	sub, err := subscriber.New()
	if err != nil {
		logrus.WithError(err).Fatal("failed to start subscriber")
	}

	var mu sync.Mutex
	stats := make(map[string]*stat)

	if err := sub.Subscribe(*pattern, func(m wire.Message) {
		mu.Lock()
		defer mu.Unlock()
		s, ok := stats[m.Topic]
		if !ok {
			s = &stat{first: time.Now()}
			stats[m.Topic] = s
		}
		s.count++
		s.last = time.Now()
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
			printTable(&mu, stats)
		}
	}
}

func printTable(mu *sync.Mutex, stats map[string]*stat) {
	mu.Lock()
	defer mu.Unlock()

	topics := make([]string, 0, len(stats))
	for t := range stats {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	fmt.Println("topic\tcount\trate (Hz)")
	for _, t := range topics {
		s := stats[t]
		span := s.last.Sub(s.first).Seconds()
		rate := 0.0
		if span > 0 && s.count > 1 {
			rate = float64(s.count-1) / span
		}
		fmt.Printf("%s\t%d\t%.2f\n", t, s.count, rate)
	}
}
