package websockets

import (
	"fmt"
	"net/url"
	"strings"
)

// Framing selects how protocol packets map onto websocket messages.
type Framing int

const (
	// FramingRaw sends each packet as its own text message, unchanged.
	FramingRaw Framing = iota
	// FramingEngineIO wraps packets in Engine.IO v4 message packets and
	// answers the server's heartbeat pings.
	FramingEngineIO
)

func (f Framing) String() string {
	switch f {
	case FramingRaw:
		return "raw"
	case FramingEngineIO:
		return "engineio"
	default:
		return fmt.Sprintf("Framing(%d)", int(f))
	}
}

// ParseFraming accepts "raw" and "engineio" (or "engine.io", "eio").
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw":
		return FramingRaw, nil
	case "engineio", "engine.io", "eio":
		return FramingEngineIO, nil
	default:
		return FramingRaw, fmt.Errorf("unknown framing %q", s)
	}
}

// Engine.IO packet types carried as the first byte of a text message.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioUpgrade = '5'
	eioNoop    = '6'
)

// EngineIOURL fills in the Engine.IO handshake path and query on a server
// URL: "ws://host:3000" becomes "ws://host:3000/socket.io/?EIO=4&transport=websocket".
// An explicit path and existing query parameters are kept. http and https
// schemes are mapped to ws and wss.
func EngineIOURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}

	q := u.Query()
	if q.Get("EIO") == "" {
		q.Set("EIO", "4")
	}
	if q.Get("transport") == "" {
		q.Set("transport", "websocket")
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
