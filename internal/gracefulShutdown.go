// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type GracefulShutdownHandler interface {
	Shutdown()          // Triggers a graceful shutdown programmatically.
	ShuttingDown() bool // Quickly checks if a shutdown is in progress.
	Wait() error        // Blocks until shutdown tasks are complete.
}

type gracefulShutdown struct {
	quit         chan os.Signal
	shuttingDown atomic.Bool
	done         chan struct{}
	err          error
	once         sync.Once
}

// NewGracefulShutdown traps SIGINT/SIGTERM. Once a signal arrives (or Shutdown is called)
// onShutdown runs with a context that expires after timeout.
func NewGracefulShutdown(onShutdown func(ctx context.Context) error, timeout time.Duration) GracefulShutdownHandler {
	gs := &gracefulShutdown{
		quit: make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(gs.quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer close(gs.done)
		sig := <-gs.quit
		signal.Stop(gs.quit)
		gs.shuttingDown.Store(true)
		zap.S().Infow("Received signal, shutting down", "signal", sig.String())

		if onShutdown == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		zap.S().Infow("Waiting for shutdown tasks to complete", "timeout", timeout)
		gs.err = onShutdown(ctx)
		if errors.Is(gs.err, context.DeadlineExceeded) {
			zap.S().Errorw("Shutdown tasks did not complete in time", "timeout", timeout)
		} else if gs.err != nil {
			zap.S().Errorw("Error during shutdown", "error", gs.err)
		} else {
			zap.S().Info("Shutdown tasks completed. Ready to exit.")
		}
	}()

	return gs
}

func (gs *gracefulShutdown) ShuttingDown() bool {
	return gs.shuttingDown.Load()
}

func (gs *gracefulShutdown) Shutdown() {
	gs.once.Do(func() {
		gs.quit <- syscall.SIGTERM
	})
}

func (gs *gracefulShutdown) Wait() error {
	<-gs.done
	return gs.err
}
