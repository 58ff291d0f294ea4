//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/larrydiffey/difcopy/pkg/orchestrator"
)

// watchSignals maps SIGINT/SIGTERM to CancelAll, SIGUSR1 to Pause and
// SIGUSR2 to Resume until stop is called
func watchSignals(ctx context.Context, ctrl *orchestrator.Controller, log *logrus.Entry) (stop func()) {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case sig := <-sigs:
				log.WithField("signal", sig.String()).Info("Signal received")
				switch sig {
				case syscall.SIGUSR1:
					ctrl.Pause()
				case syscall.SIGUSR2:
					ctrl.Resume()
				default:
					ctrl.CancelAll()
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
