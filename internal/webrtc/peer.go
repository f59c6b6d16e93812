package webrtc

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// DefaultSTUNServer is used when no ICE servers are configured.
const DefaultSTUNServer = "stun:stun.kinesisvideo.us-east-1.amazonaws.com:443"

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// Peer wraps the Pion PeerConnection that receives the camera stream.
type Peer struct {
	pc  *pion.PeerConnection
	log logrus.FieldLogger
}

// NewPeer creates a PeerConnection with H264 video and PCMU/Opus audio.
func NewPeer(stunServers []string) (*Peer, error) {
	m := &pion.MediaEngine{}

	h264Codec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:    pion.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 102,
	}
	if err := m.RegisterCodec(h264Codec, pion.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register H264: %w", err)
	}

	audioCodecs := []pion.RTPCodecParameters{
		{
			RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			PayloadType:        111,
		},
		{
			RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypePCMU, ClockRate: 8000, Channels: 1},
			PayloadType:        0,
		},
	}
	for _, c := range audioCodecs {
		if err := m.RegisterCodec(c, pion.RTPCodecTypeAudio); err != nil {
			return nil, fmt.Errorf("register %s: %w", c.MimeType, err)
		}
	}

	i := &interceptor.Registry{}
	responderFactory, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	i.Add(responderFactory)

	pliFactory, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create PLI factory: %w", err)
	}
	i.Add(pliFactory)

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
	)

	if len(stunServers) == 0 {
		stunServers = []string{DefaultSTUNServer}
	}
	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:   []pion.ICEServer{{URLs: stunServers}},
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{pc: pc, log: logrus.WithField("module", "webrtc")}

	if err := p.addTransceivers(); err != nil {
		_ = pc.Close()
		return nil, err
	}

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		p.log.WithField("state", state.String()).Info("ICE connection state")
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.log.WithField("state", state.String()).Info("peer connection state")
	})

	return p, nil
}

// addTransceivers adds audio (sendrecv) and video (recvonly) transceivers.
func (p *Peer) addTransceivers() error {
	_, err := p.pc.AddTransceiverFromKind(pion.RTPCodecTypeAudio, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		return fmt.Errorf("add audio transceiver: %w", err)
	}

	_, err = p.pc.AddTransceiverFromKind(pion.RTPCodecTypeVideo, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return fmt.Errorf("add video transceiver: %w", err)
	}
	return nil
}

// SetOnTrack writes received H264 to videoOut as an Annex-B stream; audio is drained.
func (p *Peer) SetOnTrack(videoOut io.Writer) {
	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		codec := track.Codec()
		p.log.WithFields(logrus.Fields{
			"kind":  track.Kind().String(),
			"codec": codec.MimeType,
			"pt":    codec.PayloadType,
		}).Info("got track")

		if track.Kind() == pion.RTPCodecTypeVideo && strings.EqualFold(codec.MimeType, pion.MimeTypeH264) {
			go p.readVideoTrack(track, videoOut)
			return
		}
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})
}

func (p *Peer) readVideoTrack(track *pion.TrackRemote, w io.Writer) {
	depack := NewH264Depacketizer()
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			p.log.WithError(err).Info("video track ended")
			return
		}
		if err := writeAnnexB(w, depack, pkt); err != nil {
			p.log.WithError(err).Warn("video output closed")
			return
		}
	}
}

func writeAnnexB(w io.Writer, depack *H264Depacketizer, pkt *rtp.Packet) error {
	for _, nalu := range depack.Depacketize(pkt.SequenceNumber, pkt.Payload) {
		if len(nalu) == 0 {
			continue
		}
		if _, err := w.Write(annexBStartCode); err != nil {
			return err
		}
		if _, err := w.Write(nalu); err != nil {
			return err
		}
	}
	return nil
}

// CreateOffer sets a local offer and returns it once ICE gathering has
// completed, so the offer carries every local candidate.
func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	gathered := pion.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", fmt.Errorf("ice gathering: %w", ctx.Err())
	}

	p.log.Info("local SDP offer ready")
	return p.pc.LocalDescription().SDP, nil
}

// SetRemoteAnswer applies the camera's SDP answer.
func (p *Peer) SetRemoteAnswer(sdp string) error {
	answer := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	p.log.Info("remote SDP answer set")
	return nil
}

// Close shuts down the PeerConnection.
func (p *Peer) Close() error {
	return p.pc.Close()
}
