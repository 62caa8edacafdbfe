package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sagernet/sing-bridge"
	"github.com/sagernet/sing-bridge/config"
	"github.com/sagernet/sing-bridge/counter"
	"github.com/sagernet/sing-bridge/log"
	"github.com/sagernet/sing-bridge/metrics"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type flags struct {
	ConfigFile string
	Verbose    bool
}

func main() {
	f := new(flags)

	command := &cobra.Command{
		Use:   "sing-bridge",
		Short: "bridge TCP connections onto flow-controlled stream pairs",
		Run: func(cmd *cobra.Command, args []string) {
			run(f)
		},
	}
	command.Flags().StringVarP(&f.ConfigFile, "config", "c", "config.yaml", "Use a configuration file.")
	command.Flags().BoolVarP(&f.Verbose, "verbose", "v", false, "Enable verbose mode.")

	if err := command.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func run(f *flags) {
	if f.Verbose {
		logrus.SetLevel(logrus.TraceLevel)
	}

	c, err := config.Load(f.ConfigFile)
	if err != nil {
		logrus.Fatal(err)
	}

	counters := counter.New()
	service, err := bridge.New(bridge.Options{
		Logger:       log.NewLogger("bridge"),
		Counters:     counters,
		Workers:      c.Workers,
		PoolCapacity: c.PoolCapacity,
		SlotSize:     c.SlotSize,
		WriteSpin:    c.WriteSpin,
	})
	if err != nil {
		logrus.Fatal(err)
	}

	for _, route := range c.Routes {
		if _, err = route.Build(service); err != nil {
			logrus.Fatal(err)
		}
	}

	if err = service.Start(); err != nil {
		logrus.Fatal(err)
	}
	logrus.Info("bridge started with ", len(c.Routes), " routes")

	if c.Metrics != "" {
		handler, hErr := metrics.Handler(counters)
		if hErr != nil {
			logrus.Fatal(hErr)
		}
		go func() {
			logrus.Info("metrics at http://", c.Metrics, "/metrics")
			mux := http.NewServeMux()
			mux.Handle("/metrics", handler)
			if sErr := http.ListenAndServe(c.Metrics, mux); sErr != nil {
				logrus.Error("metrics server: ", sErr)
			}
		}()
	}

	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)
	<-osSignals

	service.Close()
}
