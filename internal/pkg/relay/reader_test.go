// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sys/unix"

	"github.com/latency-tracker/msprofile/internal/pkg/lifecycle"
	"github.com/latency-tracker/msprofile/internal/pkg/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// pipe returns a Reader on the read end of a pipe and the write end.
func pipe(t *testing.T, opts ...Option) (*Reader, int) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC))
	r := NewReader(stdr.New(log.New(os.Stderr, "", log.Lshortfile)), p[0], opts...)
	t.Cleanup(func() { _ = r.Close() })
	return r, p[1]
}

func write(t *testing.T, fd int, b []byte) {
	t.Helper()
	n, err := unix.Write(fd, b)
	require.NoError(t, err)
	require.Equal(t, len(b), n)
}

func encode(t *testing.T, rec Record) []byte {
	t.Helper()
	b, err := rec.MarshalBinary()
	require.NoError(t, err)
	return b
}

type collector struct {
	mu   sync.Mutex
	recs []Record
	ch   chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 16)}
}

func (c *collector) handle(rec Record) error {
	c.mu.Lock()
	c.recs = append(c.recs, rec)
	c.mu.Unlock()
	c.ch <- struct{}{}
	return nil
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for record")
	}
}

func (c *collector) records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.recs...)
}

func run(r *Reader, stop *lifecycle.Stopper, h Handler) <-chan error {
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), stop, h) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not exit")
		return nil
	}
}

func TestReaderDeliversRecords(t *testing.T) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	r, w := pipe(t, WithMetrics(m))
	stop := lifecycle.NewStopper()
	c := newCollector()
	done := run(r, stop, c.handle)

	rec := Record{
		Header: Header{SpanID: testSpanID, TraceID: testTraceID},
		Syscalls: []Descriptor{
			{Name: "read", StartSystem: 1000, StartSteady: 10, EndSteady: 60},
			{Name: "write", StartSystem: 1100, StartSteady: 110, EndSteady: 130},
		},
	}
	write(t, w, encode(t, rec))
	c.wait(t)

	stop.Stop()
	require.NoError(t, waitDone(t, done))
	require.NoError(t, unix.Close(w))

	got := c.records()
	require.Len(t, got, 1)
	rec.Header.Count = 2
	assert.Equal(t, rec, got[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayRecords))
}

func TestReaderSkipsMalformed(t *testing.T) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	r, w := pipe(t, WithMetrics(m))
	stop := lifecycle.NewStopper()
	c := newCollector()
	done := run(r, stop, c.handle)
	t.Cleanup(func() {
		stop.Stop()
		assert.NoError(t, waitDone(t, done))
		assert.NoError(t, unix.Close(w))
	})

	valid := Record{
		Header:   Header{SpanID: testSpanID, TraceID: testTraceID},
		Syscalls: []Descriptor{{Name: "openat", StartSystem: 1, StartSteady: 1, EndSteady: 2}},
	}

	// The pipe is a byte stream: wait for each drop before the next write
	// so reads stay aligned on record boundaries.
	dropped := func(reason string) {
		t.Helper()
		require.Eventually(t, func() bool {
			return testutil.ToFloat64(m.RelayRecordsDropped.WithLabelValues(reason)) == 1
		}, 5*time.Second, time.Millisecond)
	}

	write(t, w, []byte{1, 2, 3})
	dropped(telemetry.DropShortHeader)
	write(t, w, encode(t, valid))
	c.wait(t)

	// An over-capacity header is followed by its full payload, which must
	// not be read as headers.
	over, err := Header{Count: MaxSyscalls + 1, SpanID: testSpanID, TraceID: testTraceID}.MarshalBinary()
	require.NoError(t, err)
	desc, err := Descriptor{Name: "read", StartSystem: 1, StartSteady: 1, EndSteady: 2}.MarshalBinary()
	require.NoError(t, err)
	for i := 0; i < MaxSyscalls+1; i++ {
		over = append(over, desc...)
	}
	write(t, w, over)
	dropped(telemetry.DropOverCapacity)
	write(t, w, encode(t, valid))
	c.wait(t)

	// The header announces two descriptors, one follows.
	short := encode(t, valid)
	binary.NativeEndian.PutUint32(short, 2)
	write(t, w, short)
	dropped(telemetry.DropShortPayload)
	write(t, w, encode(t, valid))
	c.wait(t)

	got := c.records()
	require.Len(t, got, 3)
	for _, rec := range got {
		assert.Equal(t, testSpanID, rec.Header.SpanID)
		assert.Equal(t, testTraceID, rec.Header.TraceID)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RelayRecords))
}

func TestReaderSkipsEmptyRecords(t *testing.T) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	r, w := pipe(t, WithMetrics(m))
	stop := lifecycle.NewStopper()
	c := newCollector()
	done := run(r, stop, c.handle)

	empty, err := Header{SpanID: testSpanID, TraceID: testTraceID}.MarshalBinary()
	require.NoError(t, err)
	write(t, w, empty)

	valid := Record{
		Header:   Header{SpanID: testSpanID, TraceID: testTraceID},
		Syscalls: []Descriptor{{Name: "close", StartSystem: 1, StartSteady: 1, EndSteady: 2}},
	}
	write(t, w, encode(t, valid))
	c.wait(t)

	stop.Stop()
	require.NoError(t, waitDone(t, done))
	require.NoError(t, unix.Close(w))

	got := c.records()
	require.Len(t, got, 1)
	assert.Equal(t, uint32(1), got[0].Header.Count)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayRecords))
	assert.Equal(t, 0, testutil.CollectAndCount(m.RelayRecordsDropped))
}

func TestReaderHandlerErrorContinues(t *testing.T) {
	r, w := pipe(t)
	stop := lifecycle.NewStopper()
	calls := make(chan struct{}, 4)
	done := run(r, stop, func(Record) error {
		calls <- struct{}{}
		return errors.New("malformed")
	})

	b := encode(t, Record{Header: Header{SpanID: testSpanID, TraceID: testTraceID}})
	write(t, w, b)
	write(t, w, b)
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatal("handler not called")
		}
	}

	stop.Stop()
	assert.NoError(t, waitDone(t, done))
	assert.NoError(t, unix.Close(w))
}

func TestReaderHandlerStops(t *testing.T) {
	r, w := pipe(t)
	done := run(r, lifecycle.NewStopper(), func(Record) error {
		return lifecycle.ErrStopped
	})

	write(t, w, encode(t, Record{Header: Header{SpanID: testSpanID, TraceID: testTraceID}}))
	assert.NoError(t, waitDone(t, done))
	assert.NoError(t, unix.Close(w))
}

func TestReaderStopWithinPollInterval(t *testing.T) {
	r, w := pipe(t, WithPollTimeout(5*time.Millisecond))
	stop := lifecycle.NewStopper()
	done := run(r, stop, func(Record) error { return nil })

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	stop.Stop()
	assert.NoError(t, waitDone(t, done))
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, unix.Close(w))
}

func TestReaderContextCanceled(t *testing.T) {
	r, w := pipe(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, lifecycle.NewStopper(), func(Record) error { return nil }) }()

	cancel()
	assert.NoError(t, waitDone(t, done))
	assert.NoError(t, unix.Close(w))
}

func TestReaderHangup(t *testing.T) {
	r, w := pipe(t)
	done := run(r, lifecycle.NewStopper(), func(Record) error { return nil })

	require.NoError(t, unix.Close(w))
	assert.NoError(t, waitDone(t, done))
}

func TestReaderThreadInit(t *testing.T) {
	called := make(chan struct{}, 1)
	r, w := pipe(t, WithThreadInit(func() error {
		called <- struct{}{}
		return errors.New("not registered")
	}))
	stop := lifecycle.NewStopper()
	done := run(r, stop, func(Record) error { return nil })

	select {
	case <-called:
	case <-time.After(5 * time.Second):
		t.Fatal("thread init not called")
	}
	stop.Stop()
	assert.NoError(t, waitDone(t, done))
	assert.NoError(t, unix.Close(w))
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(logr.Discard(), filepath.Join(t.TempDir(), "rchan-1-0"))
	assert.ErrorIs(t, err, unix.ENOENT)
}
