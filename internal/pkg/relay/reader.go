// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay reads syscall records from the latency tracker relay channel.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"

	"github.com/latency-tracker/msprofile/internal/pkg/lifecycle"
	"github.com/latency-tracker/msprofile/internal/pkg/telemetry"
)

// ChannelDir is the debugfs directory holding the per-process relay channels.
const ChannelDir = "/sys/kernel/debug/latency/spans/default/channels"

var errEOF = errors.New("relay channel end of file")

// DefaultPollTimeout is the default bound on a single wait for data.
const DefaultPollTimeout = 10 * time.Millisecond

// ChannelPath returns the relay channel of process pid in dir.
func ChannelPath(dir string, pid int) string {
	return filepath.Join(dir, fmt.Sprintf("rchan-%d-0", pid))
}

// Handler processes one decoded record. Returning [lifecycle.ErrStopped]
// ends the read loop.
type Handler func(Record) error

// Reader reads records from a relay channel file descriptor.
type Reader struct {
	logger      logr.Logger
	fd          int
	pollTimeout time.Duration
	metrics     *telemetry.Metrics
	threadInit  func() error
}

// Option configures a [Reader].
type Option func(*Reader)

// WithPollTimeout sets the bound on a single wait for data. Values below one
// millisecond are rounded up.
func WithPollTimeout(d time.Duration) Option {
	return func(r *Reader) { r.pollTimeout = d }
}

// WithMetrics sets the metrics updated by the reader.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Reader) { r.metrics = m }
}

// WithThreadInit sets a function run on the reader's locked OS thread before
// the loop starts. It is used to exclude the thread from monitoring.
func WithThreadInit(fn func() error) Option {
	return func(r *Reader) { r.threadInit = fn }
}

// Open opens the relay channel at path read only.
func Open(logger logr.Logger, path string, opts ...Option) (*Reader, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open relay channel %s: %w", path, err)
	}
	return NewReader(logger, fd, opts...), nil
}

// NewReader returns a [Reader] that takes ownership of fd.
func NewReader(logger logr.Logger, fd int, opts ...Option) *Reader {
	r := &Reader{
		logger:      logger.WithName("Reader"),
		fd:          fd,
		pollTimeout: DefaultPollTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Close releases the file descriptor.
func (r *Reader) Close() error {
	return unix.Close(r.fd)
}

// Run reads records and passes them to handle until stop is stopped, ctx is
// done, the channel hangs up or handle returns [lifecycle.ErrStopped]. A
// nil error is returned for all of these. Malformed records are logged and
// skipped.
func (r *Reader) Run(ctx context.Context, stop *lifecycle.Stopper, handle Handler) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if r.threadInit != nil {
		if err := r.threadInit(); err != nil {
			r.logger.Error(err, "failed to exclude reader thread from monitoring")
		}
	}

	timeout := int(r.pollTimeout / time.Millisecond)
	if timeout < 1 {
		timeout = 1
	}

	header := make([]byte, HeaderSize)
	payload := make([]byte, MaxSyscalls*DescriptorSize)
	fds := []unix.PollFd{{Fd: int32(r.fd), Events: unix.POLLIN}} // nolint: gosec  // fd fits in int32.

	r.logger.V(1).Info("relay reader started")
	defer r.logger.Info("relay reader exiting")

	for !stop.Stopped() && ctx.Err() == nil {
		fds[0].Revents = 0
		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			r.logger.Error(err, "poll failed")
			return fmt.Errorf("poll relay channel: %w", err)
		}
		if n == 0 {
			continue
		}

		ev := fds[0].Revents
		if ev&unix.POLLIN == 0 {
			if ev&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
				r.logger.Info("relay channel closed", "revents", ev)
				return nil
			}
			continue
		}

		rec, ok, err := r.readRecord(header, payload)
		if errors.Is(err, errEOF) {
			return nil
		}
		if !ok {
			continue
		}

		if r.metrics != nil {
			r.metrics.RelayRecords.Inc()
		}
		if err := handle(rec); err != nil {
			if errors.Is(err, lifecycle.ErrStopped) {
				r.logger.V(1).Info("handler requested stop")
				return nil
			}
			r.logger.V(1).Info("record not injected", "error", err)
		}
	}
	return nil
}

// readRecord performs one header read and at most one payload read, except
// for over-capacity records whose payload is discarded in chunks. A false ok
// means the record was dropped or empty and the loop should continue.
func (r *Reader) readRecord(header, payload []byte) (rec Record, ok bool, err error) {
	n, err := unix.Read(r.fd, header)
	switch {
	case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
		return rec, false, nil
	case err != nil:
		r.logger.Error(err, "failed to read relay header")
		r.metrics.Drop(telemetry.DropReadError)
		return rec, false, nil
	case n == 0:
		// POLLIN with no data is end of file.
		r.logger.Info("relay channel reached end of file")
		return rec, false, errEOF
	case n != HeaderSize:
		r.logger.Info("short relay header, skipping", "read", n, "want", HeaderSize)
		r.metrics.Drop(telemetry.DropShortHeader)
		return rec, false, nil
	}

	h, err := DecodeHeader(header)
	if err != nil {
		r.logger.Error(err, "failed to decode relay header")
		r.metrics.Drop(telemetry.DropShortHeader)
		return rec, false, nil
	}
	if h.Count == 0 {
		return rec, false, nil
	}
	if h.Count > MaxSyscalls {
		r.logger.Info("relay record over capacity, skipping", "count", h.Count, "max", MaxSyscalls)
		if err := r.discard(int(h.Count)*DescriptorSize, payload); err != nil {
			r.logger.Error(err, "failed to discard relay payload")
			r.metrics.Drop(telemetry.DropReadError)
			return rec, false, nil
		}
		r.metrics.Drop(telemetry.DropOverCapacity)
		return rec, false, nil
	}
	rec.Header = h

	want := int(h.Count) * DescriptorSize
	n, err = unix.Read(r.fd, payload[:want])
	if err != nil {
		r.logger.Error(err, "failed to read relay payload")
		r.metrics.Drop(telemetry.DropReadError)
		return rec, false, nil
	}
	if n != want {
		r.logger.Info("short relay payload, skipping", "read", n, "want", want)
		r.metrics.Drop(telemetry.DropShortPayload)
		return rec, false, nil
	}

	rec.Syscalls, err = DecodeDescriptors(payload[:n], h.Count)
	if err != nil {
		r.logger.Error(err, "failed to decode relay payload")
		r.metrics.Drop(telemetry.DropShortPayload)
		return rec, false, nil
	}
	return rec, true, nil
}

// discard consumes n payload bytes in buf-sized reads so the next read
// starts on a header.
func (r *Reader) discard(n int, buf []byte) error {
	for n > 0 {
		got, err := unix.Read(r.fd, buf[:min(n, len(buf))])
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return err
		case got == 0:
			return io.ErrUnexpectedEOF
		}
		n -= got
	}
	return nil
}
