package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// shutdownSignal delivers the first interrupt or terminate signal.
func shutdownSignal() <-chan os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	return quit
}

// Stop closes every websocket connection, stops the HTTP listener and then
// runs the closers in order. It returns every failure joined.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.hub != nil {
		if err := s.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close hub: %w", err))
		}
	}
	if err := s.E.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	for _, c := range s.closers {
		if err := c.Close(ctx); err != nil {
			s.logger.Error("Failed to close resource", "resource", c.Name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.Name, err))
		}
	}
	s.logger.Info("Server stopped")
	return errors.Join(errs...)
}
