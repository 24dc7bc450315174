package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter moves log output off the logging goroutine. One loop owns the
// buffered sinks; it flushes whenever the queue runs empty, so a burst of lines
// reaches the sinks in one write.
type asyncWriter struct {
	queue   chan []byte
	flushes chan chan error
	done    chan struct{}
	out     *bufio.Writer

	mu     sync.RWMutex // closed; held shared while sending on queue
	closed bool

	errMu sync.Mutex
	err   error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, w)
		}
	}
	w := &asyncWriter{
		queue:   make(chan []byte, 256),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
		out:     bufio.NewWriterSize(io.MultiWriter(sinks...), bufSize),
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case data, ok := <-w.queue:
			if !ok {
				w.setErr(w.out.Flush())
				return
			}
			w.write(data)
			if len(w.queue) == 0 {
				w.setErr(w.out.Flush())
			}
		case ack := <-w.flushes:
			for n := len(w.queue); n > 0; n-- {
				w.write(<-w.queue)
			}
			ack <- w.out.Flush()
		}
	}
}

func (w *asyncWriter) write(data []byte) {
	if len(data) == 0 {
		return
	}
	_, err := w.out.Write(data)
	w.setErr(err)
}

// Write queues a copy of p. It blocks while the queue is full rather than drop lines.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.getErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	data := append([]byte(nil), p...)
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- data
	return nil
}

// Flush returns once everything queued before the call has reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return <-ack
	case <-w.done:
		return w.getErr()
	}
}

// Close drains the queue, flushes and reports the first write error.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return w.getErr()
}

func (w *asyncWriter) getErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
