// Package parser converts between wire text frames and sioclient.Packet values.
package parser

import (
	"strconv"
	"strings"

	"github.com/tsarna/sioclient/pkg/sioclient"
)

// Parse decodes one text frame of the form
//
//	<type>[<attachments>-][/<namespace>,][<ack id>]<json payload>
//
// Binary packets may also spell the attachment count as "-<attachments>".
// Parse has no side effects; every failure is a *sioclient.ParseError.
func Parse(raw string) (*sioclient.Packet, error) {
	if raw == "" {
		return nil, sioclient.NewParseError(raw, "empty frame", nil)
	}

	c := raw[0]
	if c < '0' || c > '9' {
		return nil, sioclient.NewParseError(raw, "missing packet type", nil)
	}
	pt := sioclient.PacketType(c - '0')
	if !pt.Valid() {
		return nil, sioclient.NewParseError(raw, "invalid packet type "+string(c), nil)
	}

	p := &sioclient.Packet{
		Type:      pt,
		Namespace: sioclient.DefaultNamespace,
	}
	rest := raw[1:]

	if pt.IsBinary() {
		n, remaining, ok := readAttachmentCount(rest)
		if !ok {
			return nil, sioclient.NewParseError(raw, "malformed attachment count", nil)
		}
		p.Attachments = n
		rest = remaining
	}

	if strings.HasPrefix(rest, "/") {
		if i := strings.IndexByte(rest, ','); i >= 0 {
			p.Namespace = rest[:i]
			rest = rest[i+1:]
		} else {
			p.Namespace = rest
			rest = ""
		}
	}

	// Only events and acks carry ids; an error payload may itself be a bare number.
	if digits := leadingDigits(rest); digits > 0 && (pt.IsEvent() || pt.IsAck()) {
		id, err := strconv.ParseInt(rest[:digits], 10, 64)
		if err != nil {
			return nil, sioclient.NewParseError(raw, "invalid ack id", err)
		}
		p.ID = &id
		rest = rest[digits:]
	}

	if err := decodePayload(p, rest); err != nil {
		return nil, sioclient.NewParseError(raw, err.reason, err.err)
	}

	return p, nil
}

// readAttachmentCount accepts "<digits>-" and "-<digits>[-]".
func readAttachmentCount(s string) (int, string, bool) {
	if strings.HasPrefix(s, "-") {
		digits := leadingDigits(s[1:])
		if digits == 0 {
			return 0, s, false
		}
		n, err := strconv.Atoi(s[1 : 1+digits])
		if err != nil {
			return 0, s, false
		}
		remaining := s[1+digits:]
		remaining = strings.TrimPrefix(remaining, "-")
		return n, remaining, true
	}

	digits := leadingDigits(s)
	if digits == 0 || len(s) <= digits || s[digits] != '-' {
		return 0, s, false
	}
	n, err := strconv.Atoi(s[:digits])
	if err != nil {
		return 0, s, false
	}
	return n, s[digits+1:], true
}

func leadingDigits(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}

type payloadError struct {
	reason string
	err    error
}

func decodePayload(p *sioclient.Packet, body string) *payloadError {
	if strings.TrimSpace(body) == "" {
		switch p.Type {
		case sioclient.PacketTypeConnect, sioclient.PacketTypeDisconnect:
			return nil
		case sioclient.PacketTypeError:
			return &payloadError{reason: "error packet without payload"}
		default:
			return &payloadError{reason: "missing payload"}
		}
	}

	decode := sioclient.DecodePlainJSON
	if p.Type.IsBinary() {
		decode = sioclient.DecodeJSON
	}
	value, err := decode([]byte(body))
	if err != nil {
		return &payloadError{reason: "invalid JSON payload", err: err}
	}

	switch p.Type {
	case sioclient.PacketTypeConnect, sioclient.PacketTypeDisconnect, sioclient.PacketTypeError:
		p.Data = []sioclient.Data{value}
		return nil
	}

	arr, ok := value.(sioclient.Array)
	if !ok {
		return &payloadError{reason: "payload is not an array"}
	}
	p.Data = []sioclient.Data(arr)

	if p.Type.IsEvent() {
		if len(p.Data) == 0 {
			return &payloadError{reason: "event without a name"}
		}
		if _, ok := p.Data[0].(sioclient.String); !ok {
			return &payloadError{reason: "event name is not a string"}
		}
	}

	return nil
}
