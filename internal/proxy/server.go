// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

// Drainer is anything with background work to finish before exit.
type Drainer interface {
	Wait()
}

// Server runs Handler until its context is done.
type Server struct {
	Addr    string
	Handler http.Handler
	// Listener, when set, is used instead of listening on Addr.
	Listener net.Listener
	// Drainer is waited on after the HTTP server has shut down.
	Drainer         Drainer
	ShutdownTimeout time.Duration
}

// Run serves until ctx is done or serving fails, then shuts down gracefully
// and drains pending background work.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if s.Listener != nil {
			log.WithField("addr", s.Listener.Addr().String()).Info("serving")
			err = srv.Serve(s.Listener)
		} else {
			log.WithField("addr", s.Addr).Info("serving")
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()

		timeout := s.ShutdownTimeout
		if timeout <= 0 {
			timeout = DefaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		log.Info("shutting down")
		err := srv.Shutdown(shutdownCtx)
		if s.Drainer != nil {
			s.Drainer.Wait()
		}
		return err
	})

	return g.Wait()
}
