// cmd/krakenctl/session.go
package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/bucket"
	"github.com/tamzrod/krakenctl/internal/kraken"
	"github.com/tamzrod/krakenctl/internal/transport"
)

// session is one open cooler.
type session struct {
	dev    *transport.Device
	cooler *kraken.Cooler
	log    *zap.Logger
}

// openCooler claims the device. With init set it also runs the init sequence,
// which the speed and status commands need and the LCD-only ones do not.
func openCooler(ctx context.Context, log *zap.Logger, init bool) (*session, error) {
	uc := cfg.Device.USB()
	uc.Serial = serial

	dev, err := transport.Open(uc, cfg.Device.Transport(), transport.WithLogger(log.Named("transport")))
	if err != nil {
		return nil, fmt.Errorf("open cooler: %w", err)
	}

	c, err := kraken.New(dev, log.Named("kraken"))
	if err != nil {
		_ = dev.Close()
		return nil, err
	}

	s := &session{dev: dev, cooler: c, log: log}
	if init {
		fw, err := c.Initialize(ctx)
		if err != nil {
			_ = dev.Close()
			return nil, fmt.Errorf("initialize: %w", err)
		}
		log.Debug("cooler initialized", zap.Stringer("firmware", fw))
	}
	return s, nil
}

// allocator builds a bucket allocator over the session and loads the mirror.
func (s *session) allocator(ctx context.Context) (*bucket.Allocator, error) {
	a, err := bucket.New(s.dev, s.log.Named("bucket"))
	if err != nil {
		return nil, err
	}
	if _, err := a.List(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *session) Close() error {
	return s.dev.Close()
}
