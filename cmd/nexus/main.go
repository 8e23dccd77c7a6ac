// Command nexus runs a relay node: it binds the subscriber-facing and
// publisher-facing sockets, beacons its presence, and bridges traffic
// between every publisher and subscriber that discovers it.
package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/starling-mesh/starling/pkg/nexus"
)

func main() {
	echo := flag.Bool("echo", false, "tap every forwarded frame to the observer socket and log it")
	heartbeat := flag.Duration("heartbeat", nexus.DefaultHeartbeatInterval, "interval between discovery beacons")
	identifier := flag.String("id", "", "override the generated 8-character identifier")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	opts := []nexus.Option{nexus.WithHeartbeatInterval(*heartbeat)}
	if *echo {
		opts = append(opts, nexus.WithEcho())
	}
	if *identifier != "" {
		opts = append(opts, nexus.WithIdentifier(*identifier))
	}

	n, err := nexus.New(opts...)
	if err != nil {
		logrus.WithError(err).Fatal("failed to start nexus")
	}

	logrus.WithFields(logrus.Fields{
		"identifier": n.Identifier(),
		"pub_port":   nexus.PubPort,
		"sub_port":   nexus.SubPort,
	}).Info("nexus starting")

	if err := n.Run(); err != nil {
		logrus.WithError(err).Error("nexus exited with error")
		os.Exit(1)
	}
}
