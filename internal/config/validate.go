// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structural constraints via struct tags and then applies
// cross-field rules the tags cannot express. All failures are collected so
// an operator sees the full list at once.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s: failed %q validation (value: %v)",
					fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			return fmt.Errorf("config validation: %w", err)
		}
	}

	if c.Breaker.Cooldown <= 0 {
		errs = append(errs, "breaker.cooldown: must be positive")
	}
	if c.Sync.ChunkSize > c.Sync.BatchSize {
		errs = append(errs, "sync.chunk_size: must not exceed sync.batch_size")
	}
	if c.Sync.Enabled && c.Sync.Interval <= 0 {
		errs = append(errs, "sync.interval: must be positive when sync is enabled")
	}
	if c.Portal.RequestsPerSecond < 0 {
		errs = append(errs, "portal.requests_per_second: must not be negative")
	}
	if c.SMTP.Enabled {
		if c.SMTP.Host == "" {
			errs = append(errs, "smtp.host: required when smtp is enabled")
		}
		if c.SMTP.From == "" {
			errs = append(errs, "smtp.from: required when smtp is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
