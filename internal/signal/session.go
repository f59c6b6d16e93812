package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"ring_home/native/internal/domain"
	"ring_home/native/internal/sdputil"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSignalURL        = "wss://api.prod.signalling.ring.devices.a2z.com:443/ws"
	DefaultUserAgent        = "android:com.ringapp"
	DefaultICEWait          = time.Second
	DefaultPingInterval     = 5 * time.Second
	DefaultKeepAliveTimeout = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second

	clientTagPrefix = "ring_site"
	closeWait       = 5 * time.Second
)

// Lifecycle states.
const (
	StateNegotiating = "negotiating"
	StateActive      = "active"
	StateClosing     = "closing"
	StateClosed      = "closed"
)

// Strategy selects how the answer is finalized once the handshake
// messages have been read.
type Strategy int

const (
	// StrategyUndecided is the state before the first ice or sdp message.
	StrategyUndecided Strategy = iota
	// StrategyCollect buffers trickled candidates and splices them into the answer.
	StrategyCollect
	// StrategySignal waits for an answer that already embeds its candidates.
	StrategySignal
)

func (s Strategy) String() string {
	switch s {
	case StrategyCollect:
		return "collect"
	case StrategySignal:
		return "signal"
	default:
		return "undecided"
	}
}

// Config tunes a Session. Zero durations fall back to the defaults,
// except KeepAliveTimeout where a negative value disables idle expiry.
type Config struct {
	SignalURL        string
	UserAgent        string
	ICEWait          time.Duration
	PingInterval     time.Duration
	KeepAliveTimeout time.Duration
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SignalURL == "" {
		c.SignalURL = DefaultSignalURL
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.ICEWait <= 0 {
		c.ICEWait = DefaultICEWait
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.KeepAliveTimeout == 0 {
		c.KeepAliveTimeout = DefaultKeepAliveTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return c
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger replaces the package logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics records session activity in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithCloseCallback registers fn to run once when the session is closed
// by anything other than the caller.
func WithCloseCallback(fn func()) Option {
	return func(s *Session) { s.onClose = fn }
}

// Session negotiates and supervises one live-view stream.
type Session struct {
	deviceID int64
	tickets  domain.TicketFetcher
	dialer   domain.Dialer
	cfg      Config
	log      logrus.FieldLogger
	metrics  *Metrics
	state    *fsm.FSM

	mu             sync.Mutex
	started        bool
	closing        bool
	stopped        bool
	dialogID       string
	sessionID      string
	offer          string
	answer         string
	answerReady    chan struct{}
	candidates     map[int][]string
	collecting     bool
	strategy       Strategy
	lastKeepAlive  time.Time
	optionsPending bool
	onClose        func()
	readErr        error

	conn       domain.Conn
	pingCancel context.CancelFunc
	pingDone   chan struct{}
	readDone   chan struct{}
	closed     chan struct{}
}

// NewSession creates a session for deviceID. Nothing is sent until Generate.
func NewSession(deviceID int64, tickets domain.TicketFetcher, dialer domain.Dialer, cfg Config, opts ...Option) *Session {
	s := &Session{
		deviceID: deviceID,
		tickets:  tickets,
		dialer:   dialer,
		cfg:      cfg.withDefaults(),
		log:      logrus.WithField("module", "signal"),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("device_id", deviceID)
	s.state = fsm.NewFSM(
		StateNegotiating,
		fsm.Events{
			{Name: "activate", Src: []string{StateNegotiating}, Dst: StateActive},
			{Name: "close", Src: []string{StateNegotiating, StateActive}, Dst: StateClosing},
			{Name: "closed", Src: []string{StateClosing}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.log.WithFields(logrus.Fields{"from": e.Src, "to": e.Dst}).Debug("session state changed")
				if e.Dst == StateActive {
					s.metrics.activeDelta(1)
				}
				if e.Src == StateActive {
					s.metrics.activeDelta(-1)
				}
			},
		},
	)
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() string {
	return s.state.Current()
}

// SessionID returns the server-assigned session id, empty until known.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// DialogID returns the client-minted dialog id of the handshake.
func (s *Session) DialogID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialogID
}

// Strategy returns the answer strategy chosen during the handshake.
func (s *Session) Strategy() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// Err returns the error that ended the read loop, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Generate exchanges offer for the camera's SDP answer. On any failure the
// session is torn down before the error is returned.
func (s *Session) Generate(ctx context.Context, offer string) (string, error) {
	s.mu.Lock()
	if s.started || s.closing {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: session already used", domain.ErrGenerationFailed)
	}
	s.started = true
	s.offer = offer
	s.dialogID = uuid.NewString()
	s.candidates = make(map[int][]string)
	s.collecting = true
	s.answerReady = make(chan struct{})
	s.lastKeepAlive = time.Now()
	log := s.log.WithField("dialog_id", s.dialogID)
	s.mu.Unlock()

	if id, ok := sdputil.ExtractSessionOriginID(offer); ok {
		log.WithField("origin_id", id).Debug("generating stream for offer")
	}

	answer, err := s.negotiate(ctx, log, offer)
	if err != nil {
		if errors.Is(err, domain.ErrGenerationTimeout) {
			s.metrics.sessionOutcome("timeout")
		} else {
			s.metrics.sessionOutcome("failed")
		}
		log.WithError(err).Warn("stream generation failed, tearing down")
		if cerr := s.teardown(false, false); cerr != nil {
			log.WithError(cerr).Debug("teardown after failed generation")
		}
		return "", err
	}

	s.metrics.sessionOutcome("success")
	return answer, nil
}

func (s *Session) negotiate(ctx context.Context, log logrus.FieldLogger, offer string) (string, error) {
	ticket, err := s.tickets.FetchTicket(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: fetch ticket: %w", domain.ErrGenerationFailed, err)
	}

	endpoint, err := s.endpoint(ticket.Ticket)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	header := http.Header{}
	header.Set("User-Agent", s.cfg.UserAgent)
	conn, err := s.dialer.Dial(ctx, endpoint, header)
	if err != nil {
		return "", fmt.Errorf("%w: connect: %w", domain.ErrGenerationFailed, err)
	}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close()
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, domain.ErrSessionClosed)
	}
	s.conn = conn
	s.mu.Unlock()
	log.Info("signalling connected")

	if err := s.send(methodLiveView, map[string]any{
		"sdp":            offer,
		"stream_options": map[string]any{"audio_enabled": true, "video_enabled": true},
	}); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	if err := s.readHandshake(ctx, conn); err != nil {
		return "", err
	}

	if err := s.send(methodActivateSession, nil); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	if err := s.send(methodStreamOptions, map[string]any{"audio_enabled": true, "video_enabled": true}); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	s.startTasks(conn)

	if err := s.awaitAnswer(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, domain.ErrSessionClosed)
	}
	if s.answer == "" {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: no sdp answer within %s", domain.ErrGenerationTimeout, s.cfg.ICEWait)
	}
	s.answer = sdputil.FixAnswerDirectionality(s.offer, s.answer)
	answer := s.answer
	s.mu.Unlock()

	if err := sdputil.Validate(answer); err != nil {
		log.WithError(err).Warn("answer does not parse as SDP")
	}

	// teardown reads the state under the same lock to decide on the
	// close callback, so activation and closing cannot interleave
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, domain.ErrSessionClosed)
	}
	err = s.state.Event(ctx, "activate")
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("%w: activate: %w", domain.ErrGenerationFailed, err)
	}
	log.WithField("strategy", s.Strategy()).Info("stream session active")
	return answer, nil
}

func (s *Session) endpoint(ticket string) (string, error) {
	u, err := url.Parse(s.cfg.SignalURL)
	if err != nil {
		return "", fmt.Errorf("parse signal url: %w", err)
	}
	q := u.Query()
	q.Set("api_version", "4.0")
	q.Set("auth_type", "ring_solutions")
	q.Set("client_id", clientTagPrefix+"-"+uuid.NewString())
	q.Set("token", ticket)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readHandshake consumes the two messages that follow live_view before
// the read loop exists, so no message is seen by two consumers. Reading
// continues past two until the session id is known.
func (s *Session) readHandshake(ctx context.Context, conn domain.Conn) error {
	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()
	stop := context.AfterFunc(hctx, func() { _ = conn.Close() })
	defer stop()

	for read := 0; read < 2 || s.SessionID() == ""; read++ {
		data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(hctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("%w: handshake: %w", domain.ErrGenerationTimeout, err)
			}
			return fmt.Errorf("%w: handshake read: %w", domain.ErrGenerationFailed, err)
		}
		msg, err := s.decode(data)
		if err == nil {
			err = s.handle(msg)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
		}
		if s.isClosing() {
			return fmt.Errorf("%w: closed during handshake: %w", domain.ErrGenerationFailed, domain.ErrSessionClosed)
		}
	}

	s.mu.Lock()
	if s.strategy == StrategyUndecided {
		s.strategy = StrategySignal
	}
	s.collecting = s.strategy == StrategyCollect
	if !s.collecting {
		s.candidates = nil
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) awaitAnswer(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.ICEWait)
	defer timer.Stop()

	s.mu.Lock()
	strategy := s.strategy
	ready := s.answerReady
	s.mu.Unlock()

	if strategy == StrategyCollect {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", domain.ErrGenerationFailed, ctx.Err())
		case <-s.closed:
			return fmt.Errorf("%w: %w", domain.ErrGenerationFailed, domain.ErrSessionClosed)
		case <-timer.C:
		}
		s.mu.Lock()
		if s.answer != "" {
			s.answer = sdputil.SpliceICECandidates(s.answer, s.candidates)
		}
		s.log.WithField("mlines", len(s.candidates)).Debug("ice collection finished")
		s.collecting = false
		s.candidates = nil
		s.mu.Unlock()
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrGenerationFailed, ctx.Err())
	case <-s.closed:
		return fmt.Errorf("%w: %w", domain.ErrGenerationFailed, domain.ErrSessionClosed)
	case <-ready:
	case <-timer.C:
	}
	return nil
}

// send encodes and writes one message. Every method but live_view needs
// the server session id.
func (s *Session) send(method string, body map[string]any) error {
	s.mu.Lock()
	conn, dialogID, sessionID := s.conn, s.dialogID, s.sessionID
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("send %s: %w", method, domain.ErrSessionClosed)
	}
	if method != methodLiveView && sessionID == "" {
		return fmt.Errorf("send %s: session id not established", method)
	}

	data, err := BuildMessage(method, dialogID, s.deviceID, sessionID, body)
	if err != nil {
		return err
	}
	s.log.WithField("method", method).Debugf(">>> %s", data)
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}
	s.metrics.sent(method)
	return nil
}

func (s *Session) decode(data []byte) (*Message, error) {
	msg, err := ParseMessage(data)
	if err != nil {
		s.log.WithError(err).WithField("payload", string(data)).Error("undecodable signalling message")
		return nil, err
	}
	s.log.WithField("method", msg.Method).Debugf("<<< %s", data)
	s.metrics.received(msg.Method)
	return msg, nil
}
