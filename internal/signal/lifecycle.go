package signal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ring_home/native/internal/domain"
)

// KeepAlive extends the idle deadline of the ping loop.
func (s *Session) KeepAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastKeepAlive = time.Now()
}

// Close tears the session down. It is safe to call more than once and
// from several goroutines; the close callback does not run for it.
func (s *Session) Close() error {
	return s.teardown(false, false)
}

func (s *Session) startTasks(conn domain.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.pingCancel = cancel
	s.pingDone = make(chan struct{})
	s.readDone = make(chan struct{})

	go s.pingLoop(ctx, s.pingDone)
	go s.readLoop(conn, s.readDone)
}

func (s *Session) pingLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		stopped := s.stopped
		idle := time.Since(s.lastKeepAlive)
		s.mu.Unlock()

		if stopped {
			return
		}
		if s.cfg.KeepAliveTimeout > 0 && idle > s.cfg.KeepAliveTimeout {
			s.log.WithField("idle", idle.Round(time.Millisecond)).Info("keep-alive expired, stopping pings")
			return
		}
		if err := s.send(methodPing, nil); err != nil {
			// the read loop sees the same transport failure and tears down
			s.log.WithError(err).Warn("ping failed")
			return
		}
	}
}

func (s *Session) readLoop(conn domain.Conn, done chan<- struct{}) {
	defer close(done)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if s.isClosing() {
				return
			}
			s.fail(fmt.Errorf("signalling read: %w", err))
			return
		}

		msg, err := s.decode(data)
		if err == nil {
			err = s.handle(msg)
		}
		if err != nil {
			s.fail(err)
			return
		}
	}
}

// fail records a background error and tears the session down.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.readErr == nil {
		s.readErr = err
	}
	s.mu.Unlock()

	s.log.WithError(err).Error("signalling read loop stopped")
	if cerr := s.teardown(true, true); cerr != nil {
		s.log.WithError(cerr).Debug("teardown after read failure")
	}
}

// teardown releases every resource of the session. remote marks a close
// not requested by the caller, which fires the close callback once the
// session is active; before that Generate reports the failure. inReader
// is set when called from the goroutine that owns the read side, which
// must not wait for itself.
func (s *Session) teardown(remote, inReader bool) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		if !inReader {
			<-s.closed
		}
		return nil
	}
	s.closing = true
	s.stopped = true
	var callback func()
	if remote && s.state.Current() == StateActive {
		callback = s.onClose
	}
	s.onClose = nil
	s.mu.Unlock()

	if err := s.state.Event(context.Background(), "close"); err != nil {
		s.log.WithError(err).Debug("close transition")
	}
	if callback != nil {
		callback()
	}

	s.mu.Lock()
	pingCancel, pingDone := s.pingCancel, s.pingDone
	conn := s.conn
	readDone := s.readDone
	s.pingCancel, s.pingDone, s.conn, s.readDone = nil, nil, nil, nil
	s.mu.Unlock()

	var errs []error
	if pingCancel != nil {
		pingCancel()
		if !waitDone(pingDone, closeWait) {
			errs = append(errs, errors.New("ping loop did not stop"))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	if readDone != nil && !inReader {
		if !waitDone(readDone, closeWait) {
			errs = append(errs, errors.New("read loop did not stop"))
		}
	}

	if err := s.state.Event(context.Background(), "closed"); err != nil {
		s.log.WithError(err).Debug("closed transition")
	}
	close(s.closed)
	s.log.Info("stream session closed")
	return errors.Join(errs...)
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// hasResources reports whether any task or transport reference is held.
func (s *Session) hasResources() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil || s.pingCancel != nil || s.pingDone != nil || s.readDone != nil
}
