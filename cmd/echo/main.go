// Command echo subscribes to a topic pattern and prints every message it
// receives, one line per message.
//
// Grounded on original_source/starling/introspection.py's echo().
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/starling-mesh/starling/pkg/subscriber"
	"github.com/starling-mesh/starling/pkg/wire"
)

func main() {
	pattern := flag.String("topic", "#", "topic pattern to echo")
	flag.Parse()

	sub, err := subscriber.New()
	if err != nil {
		logrus.WithError(err).Fatal("failed to start subscriber")
	}

	if err := sub.Subscribe(*pattern, func(m wire.Message) {
		fmt.Printf("%s\t%s\n", m.Topic, m.Payload)
	}); err != nil {
		logrus.WithError(err).Fatal("failed to subscribe")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sub.Stop()
}
