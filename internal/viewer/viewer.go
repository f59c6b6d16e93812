package viewer

import (
	"context"
	"fmt"
	"io"
	"time"

	"ring_home/native/internal/domain"

	"github.com/sirupsen/logrus"
)

// StreamerFactory creates a streamer whose remote close runs onClose.
type StreamerFactory func(onClose func()) domain.Streamer

// Viewer coordinates the local peer and the signalling session.
type Viewer struct {
	peer       domain.Peer
	newSession StreamerFactory
	keepAlive  time.Duration
	log        logrus.FieldLogger
}

// New creates a Viewer. keepAlive is how often liveness is signalled to
// the session while Run is active.
func New(peer domain.Peer, newSession StreamerFactory, keepAlive time.Duration) *Viewer {
	return &Viewer{
		peer:       peer,
		newSession: newSession,
		keepAlive:  keepAlive,
		log:        logrus.WithField("module", "viewer"),
	}
}

// Run streams video to out until ctx is cancelled or the camera closes
// the session.
func (v *Viewer) Run(ctx context.Context, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session := v.newSession(func() {
		v.log.Info("camera closed the session")
		cancel()
	})
	defer func() {
		if err := session.Close(); err != nil {
			v.log.WithError(err).Debug("session close")
		}
	}()

	v.peer.SetOnTrack(out)

	offer, err := v.peer.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	answer, err := session.Generate(ctx, offer)
	if err != nil {
		return err
	}

	if err := v.peer.SetRemoteAnswer(answer); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	v.log.Info("streaming")

	if v.keepAlive <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(v.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			session.KeepAlive()
		}
	}
}
