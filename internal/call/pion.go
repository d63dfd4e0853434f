package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// ErrUnsupportedSignal is returned for signals that carry no session
// description, such as trickle candidates.
var ErrUnsupportedSignal = errors.New("unsupported signal")

// LocalStream is a set of outbound tracks.
type LocalStream struct {
	id     string
	Tracks []webrtc.TrackLocal
}

func (s *LocalStream) ID() string { return s.id }

// RemoteStream wraps an inbound track.
type RemoteStream struct {
	Track *webrtc.TrackRemote
}

func (s *RemoteStream) ID() string { return s.Track.StreamID() }

// TrackSource produces a VP8 video and an Opus audio track that a capture
// pipeline writes samples into.
type TrackSource struct{}

// Acquire creates the tracks.
func (TrackSource) Acquire(context.Context) (Stream, error) {
	streamID := uuid.NewString()
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	return &LocalStream{id: streamID, Tracks: []webrtc.TrackLocal{video, audio}}, nil
}

// NewPionFactory returns a PeerFactory backed by pion/webrtc. Signals are
// non-trickle: each one is a full session description sent after ICE
// gathering completed.
func NewPionFactory(stunURLs []string, logger *slog.Logger) PeerFactory {
	cfg := webrtc.Configuration{}
	if len(stunURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunURLs}}
	}

	return func(pc PeerConfig) (Peer, error) {
		conn, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}

		p := &pionPeer{pc: conn, cfg: pc, logger: logger}
		if err := p.addMedia(); err != nil {
			conn.Close()
			return nil, err
		}

		conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			if pc.OnStream != nil {
				pc.OnStream(&RemoteStream{Track: track})
			}
		})
		conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
			logger.Debug("peer connection state", "state", s.String())
		})

		if pc.Initiator {
			go p.negotiate(conn.CreateOffer)
		}
		return p, nil
	}
}

type pionPeer struct {
	pc     *webrtc.PeerConnection
	cfg    PeerConfig
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (p *pionPeer) addMedia() error {
	if ls, ok := p.cfg.Stream.(*LocalStream); ok && ls != nil {
		for _, t := range ls.Tracks {
			if _, err := p.pc.AddTrack(t); err != nil {
				return fmt.Errorf("add track: %w", err)
			}
		}
		return nil
	}

	// Without a local stream the peer still receives the remote media.
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	return nil
}

func (p *pionPeer) negotiate(create func(*webrtc.OfferOptions) (webrtc.SessionDescription, error)) {
	desc, err := create(nil)
	if err != nil {
		p.logger.Warn("create session description failed", "error", err)
		return
	}
	p.finish(desc)
}

func (p *pionPeer) answer() {
	desc, err := p.pc.CreateAnswer(nil)
	if err != nil {
		p.logger.Warn("create answer failed", "error", err)
		return
	}
	p.finish(desc)
}

// finish sets the local description and relays it once gathering is done.
func (p *pionPeer) finish(desc webrtc.SessionDescription) {
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		p.logger.Warn("set local description failed", "error", err)
		return
	}
	<-gathered

	local := p.pc.LocalDescription()
	if local == nil {
		return
	}
	data, err := json.Marshal(local)
	if err != nil {
		p.logger.Warn("marshal session description failed", "error", err)
		return
	}
	if p.cfg.OnSignal != nil {
		p.cfg.OnSignal(data)
	}
}

func (p *pionPeer) Signal(remote json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(remote, &desc); err != nil {
		return fmt.Errorf("decode signal: %w", err)
	}
	if desc.SDP == "" {
		return ErrUnsupportedSignal
	}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	if desc.Type == webrtc.SDPTypeOffer {
		go p.answer()
	}
	return nil
}

func (p *pionPeer) Destroy() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}
