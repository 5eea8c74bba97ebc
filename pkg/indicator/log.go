// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package indicator

import (
	"errors"

	"go.uber.org/zap"
)

// LogDriver logs indicator transitions instead of driving hardware
type LogDriver struct {
	logger *zap.Logger
}

func NewLogDriver(logger *zap.Logger) *LogDriver {
	return &LogDriver{logger: logger}
}

func (l *LogDriver) Set(ch Channel, on bool) error {
	l.logger.Debug("indicator", zap.Stringer("channel", ch), zap.Bool("on", on))
	return nil
}

// Tee fans every transition out to all drivers
func Tee(drivers ...Driver) Driver {
	return tee(drivers)
}

type tee []Driver

func (t tee) Set(ch Channel, on bool) error {
	var errs []error
	for _, d := range t {
		if err := d.Set(ch, on); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
