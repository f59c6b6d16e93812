package signal

import "github.com/sirupsen/logrus"

// handle applies one inbound message to the session. It runs on the
// handshake path first and on the read loop afterwards, never on both.
func (s *Session) handle(msg *Message) error {
	switch msg.Method {
	case methodICE:
		return s.handleICE(msg)
	case methodSDP:
		return s.handleSDP(msg)
	case methodSessionCreated:
		return s.handleSessionCreated(msg)
	case methodNotification:
		return s.handleNotification(msg)
	case methodClose:
		reason, err := msg.CloseReason()
		if err != nil {
			s.log.WithError(err).Debug("close without readable reason")
		}
		s.log.WithFields(logrus.Fields{"code": reason.Code, "reason": reason.Text}).Info("signalling closed by server")
		if err := s.teardown(true, true); err != nil {
			s.log.WithError(err).Debug("teardown after remote close")
		}
	case methodPong:
	default:
		s.log.WithField("method", msg.Method).Info("unhandled signalling message")
	}
	return nil
}

func (s *Session) handleICE(msg *Message) error {
	ice, err := msg.ICE()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.collecting || s.strategy == StrategySignal || s.state.Current() != StateNegotiating {
		// dropped: collection already closed
		s.log.WithField("mline", ice.MLineIndex).Debug("dropping late ice candidate")
		s.metrics.lateCandidate()
		return nil
	}
	if s.strategy == StrategyUndecided {
		s.strategy = StrategyCollect
	}
	s.candidates[ice.MLineIndex] = append(s.candidates[ice.MLineIndex], ice.Candidate)
	return nil
}

func (s *Session) handleSDP(msg *Message) error {
	answer, err := msg.SDP()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.answer != "" {
		s.log.Warn("ignoring repeated sdp answer")
		return nil
	}
	s.answer = answer.SDP
	if s.strategy == StrategyUndecided {
		s.strategy = StrategySignal
	}
	close(s.answerReady)
	return nil
}

func (s *Session) handleSessionCreated(msg *Message) error {
	id, err := msg.SessionID()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.sessionID != "" {
		s.mu.Unlock()
		s.log.WithField("session_id", id).Warn("ignoring repeated session_created")
		return nil
	}
	s.sessionID = id
	pending := s.optionsPending
	s.optionsPending = false
	s.mu.Unlock()

	s.log.WithField("session_id", id).Info("signalling session created")
	if pending {
		s.sendCameraOptions()
	}
	return nil
}

func (s *Session) handleNotification(msg *Message) error {
	text, err := msg.NotificationText()
	if err != nil {
		return err
	}
	if text != notificationCameraConnected {
		s.log.WithField("text", text).Info("signalling notification")
		return nil
	}

	s.log.Info("camera connected")
	s.mu.Lock()
	if s.sessionID == "" {
		// sent from handleSessionCreated
		s.optionsPending = true
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	s.sendCameraOptions()
	return nil
}

func (s *Session) sendCameraOptions() {
	if err := s.send(methodCameraOptions, map[string]any{"stealth_mode": false}); err != nil {
		s.log.WithError(err).Warn("failed to send camera options")
	}
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}
