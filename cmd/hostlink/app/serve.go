// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hostlink/hostlink/pkg/config"
	"github.com/hostlink/hostlink/pkg/logger"
	"github.com/hostlink/hostlink/pkg/provider"
	"github.com/hostlink/hostlink/pkg/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the discovery and attach-session control plane until interrupted",
		RunE:  serveCmdFunc,
	}
}

func serveCmdFunc(_ *cobra.Command, _ []string) error {
	cfg := config.Load()

	svc := service.Default(cfg.Forward, cfg.DataDir, cfg.Remotes...)

	availCh, availCancel := svc.ProviderAvailable()
	defer availCancel()
	unavailCh, unavailCancel := svc.ProviderUnavailable()
	defer unavailCancel()

	go logProviderEvents(availCh, unavailCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	logger.Info("hostlink service started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	return svc.Stop(ctx)
}

func logProviderEvents(availCh, unavailCh <-chan *provider.Provider) {
	for {
		select {
		case p, ok := <-availCh:
			if !ok {
				return
			}
			logger.Infof("provider available: %s (%s)", p.Name, p.Kind)
		case p, ok := <-unavailCh:
			if !ok {
				return
			}
			logger.Infof("provider unavailable: %s (%s)", p.Name, p.Kind)
		}
	}
}
