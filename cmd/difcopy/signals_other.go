//go:build !unix

package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/larrydiffey/difcopy/pkg/orchestrator"
)

// watchSignals maps interrupts to CancelAll until stop is called
func watchSignals(ctx context.Context, ctrl *orchestrator.Controller, log *logrus.Entry) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	done := make(chan struct{})
	go func() {
		select {
		case <-done:
		case <-ctx.Done():
		case sig := <-sigs:
			log.WithField("signal", sig.String()).Info("Signal received")
			ctrl.CancelAll()
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
