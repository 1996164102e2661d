// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package modbuilder

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// withRetry runs fn until it succeeds, fails for good, or IORetries extra
// attempts are spent. It returns the number of attempts made.
func (b *Builder) withRetry(ctx context.Context, fn func() error) (int, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(b.opts.RetryDelay), uint64(max(b.opts.IORetries, 0))),
		ctx,
	)

	attempts := 0
	var last error
	err := backoff.RetryNotify(func() error {
		attempts++
		last = fn()
		if last != nil && !isTransient(last) {
			return backoff.Permanent(last)
		}
		return last
	}, policy, func(err error, wait time.Duration) {
		b.opts.Logger.Debug("transient I/O error, retrying",
			slog.Int("attempt", attempts),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	})

	if err != nil && last != nil && ctx.Err() != nil && !errors.Is(last, ctx.Err()) {
		return attempts, errors.Join(last, ctx.Err())
	}

	return attempts, err
}

// isTransient reports an I/O error worth another attempt: busy or
// interrupted syscalls, or any error that says it is temporary.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrExist) {
		return false
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return true
	}

	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EINTR)
}
