package domain

import (
	"context"
	"io"
	"net/http"
)

// TicketFetcher retrieves signalling tickets from the REST API.
type TicketFetcher interface {
	FetchTicket(ctx context.Context) (*Ticket, error)
}

// Conn is a message-oriented signalling transport.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens signalling transports.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// Streamer negotiates one live-view session.
type Streamer interface {
	Generate(ctx context.Context, offer string) (string, error)
	KeepAlive()
	Close() error
}

// Peer manages the local WebRTC peer connection.
type Peer interface {
	SetOnTrack(videoOut io.Writer)
	CreateOffer(ctx context.Context) (string, error)
	SetRemoteAnswer(sdp string) error
	Close() error
}
