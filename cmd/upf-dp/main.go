// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

// Command upf-dp runs the UPF data plane: it provisions the configured
// sessions, serves PFCP on N4 and replays captures through the packet handler.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nextmn/upf-dataplane/api"
	"github.com/nextmn/upf-dataplane/config"
	"github.com/nextmn/upf-dataplane/engine"
	"github.com/nextmn/upf-dataplane/handler"
	"github.com/nextmn/upf-dataplane/metrics"
	"github.com/nextmn/upf-dataplane/n4"
	"github.com/nextmn/upf-dataplane/nexthop"
	"github.com/nextmn/upf-dataplane/session"
)

func main() {
	configFile := flag.String("config", "/etc/upf-dp/upf-dp.yaml", "configuration file path")
	pcapIn := flag.String("pcap-in", "", "pcap file to replay through the data plane")
	pcapOut := flag.String("pcap-out", "", "pcap file receiving the forwarded frames")
	flag.Parse()

	conf, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "upf-dp: %v\n", err)
		os.Exit(1)
	}
	logger, err := conf.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "upf-dp: %v\n", err)
		os.Exit(1)
	}

	os.Exit(serve(conf, logger, *pcapIn, *pcapOut))
}

// serve runs the data plane until a signal is received and returns the exit code.
func serve(conf *config.Config, logger *logrus.Logger, pcapIn, pcapOut string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	if err := run(ctx, conf, logger, pcapIn, pcapOut); err != nil {
		logger.WithError(err).Error("upf-dp stopped")
		return 1
	}
	return 0
}

func newNextHop(ctx context.Context, conf *config.Config, logger *logrus.Logger) (api.NextHopResolver, error) {
	if conf.NextHop.NeighborCache == nil {
		mac, err := conf.StaticMACBytes()
		if err != nil {
			return nil, err
		}
		return nexthop.Static{MAC: mac}, nil
	}
	cache := nexthop.NewNeighborCache(conf.NextHop.NeighborCache.Interface, conf.NextHop.NeighborCache.Refresh, logger)
	if err := cache.Sync(); err != nil {
		return nil, errors.WithMessage(err, "neighbor cache")
	}
	go cache.Run(ctx)
	return cache, nil
}

func run(ctx context.Context, conf *config.Config, logger *logrus.Logger, pcapIn, pcapOut string) error {
	self, err := conf.SelfAddressBytes()
	if err != nil {
		return err
	}
	localMAC, err := conf.LocalMACBytes()
	if err != nil {
		return err
	}

	table := session.NewTable(conf.MaxPDRPerSession)
	if err := conf.Provision(table, logger); err != nil {
		return err
	}
	table.LogRules(logger)

	nh, err := newNextHop(ctx, conf, logger)
	if err != nil {
		return err
	}

	counters := &metrics.Counters{}
	e, err := engine.New(engine.Config{
		SelfAddress: self,
		LocalMAC:    localMAC,
		Table:       table,
		NextHop:     nh,
		Diagnostics: engine.Tee{engine.NewLogDiagnostics(logger), counters},
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	h := handler.New(e)

	// servers report here; a nil error means a clean stop
	errs := make(chan error, 2)
	servers := 0
	pfcpMessages := metrics.NewPFCPMessages()
	if conf.Metrics != nil {
		registry, err := metrics.NewRegistry(counters, table, pfcpMessages)
		if err != nil {
			return err
		}
		servers++
		go func() {
			errs <- errors.WithMessage(metrics.Serve(ctx, conf.Metrics.Listen, registry, logger), "metrics server")
		}()
	}
	if conf.N4 != nil {
		entity, err := n4.NewEntity(conf.N4.NodeID, table, logger)
		if err != nil {
			return errors.WithMessage(err, "n4")
		}
		entity.SetMessageCounter(pfcpMessages)
		servers++
		go func() {
			errs <- errors.WithMessage(entity.ListenAndServe(ctx, conf.N4.Listen), "n4 server")
		}()
	}

	if pcapIn != "" {
		if err := replayFile(ctx, h, pcapIn, pcapOut, logger); err != nil {
			return err
		}
		if servers == 0 {
			return nil
		}
	}

	logger.WithFields(logrus.Fields{"sessions": table.Len()}).Info("Data plane running")
	for servers > 0 {
		select {
		case err := <-errs:
			servers--
			if err != nil {
				return err
			}
		case <-ctx.Done():
			logger.Info("Data plane stopping")
			return nil
		}
	}
	<-ctx.Done()
	logger.Info("Data plane stopping")
	return nil
}

func replayFile(ctx context.Context, h *handler.Handler, pcapIn, pcapOut string, logger *logrus.Logger) error {
	in, err := os.Open(pcapIn)
	if err != nil {
		return errors.Wrap(err, "pcap input")
	}
	defer in.Close()

	var out io.Writer
	if pcapOut != "" {
		f, err := os.Create(pcapOut)
		if err != nil {
			return errors.Wrap(err, "pcap output")
		}
		defer f.Close()
		out = f
	}

	stats, err := Replay(ctx, h, in, out, logger)
	logger.WithFields(logrus.Fields{
		"input":     pcapIn,
		"output":    pcapOut,
		"frames":    stats.Frames,
		"forwarded": stats.Forwarded,
		"dropped":   stats.Dropped,
	}).Info("Capture replayed")
	return err
}
