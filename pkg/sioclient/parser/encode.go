package parser

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tsarna/sioclient/pkg/sioclient"
)

// Encode serializes p into its text frame and the binary attachments that
// must follow it, in placeholder index order. Binary values anywhere in the
// payload are replaced by placeholders; if any are found, Event and Ack
// packets are promoted to their binary variants. p itself is not modified.
func Encode(p *sioclient.Packet) (string, [][]byte, error) {
	if !p.Type.Valid() {
		return "", nil, fmt.Errorf("cannot encode packet of type %s", p.Type)
	}

	var attachments [][]byte
	data := make([]sioclient.Data, len(p.Data))
	for i, d := range p.Data {
		data[i] = deconstruct(d, &attachments)
	}

	pt := p.Type
	if len(attachments) > 0 {
		switch pt {
		case sioclient.PacketTypeEvent:
			pt = sioclient.PacketTypeBinaryEvent
		case sioclient.PacketTypeAck:
			pt = sioclient.PacketTypeBinaryAck
		case sioclient.PacketTypeBinaryEvent, sioclient.PacketTypeBinaryAck:
		default:
			return "", nil, fmt.Errorf("%s packets cannot carry binary data", pt)
		}
	}

	var sb strings.Builder
	sb.WriteByte(byte('0' + pt))

	if pt.IsBinary() {
		sb.WriteString(strconv.Itoa(len(attachments)))
		sb.WriteByte('-')
	}

	if nsp := p.Namespace; nsp != "" && nsp != sioclient.DefaultNamespace {
		sb.WriteString(nsp)
		sb.WriteByte(',')
	}

	if p.ID != nil {
		sb.WriteString(strconv.FormatInt(*p.ID, 10))
	}

	switch {
	case pt == sioclient.PacketTypeError, pt == sioclient.PacketTypeConnect, pt == sioclient.PacketTypeDisconnect:
		if len(data) > 0 {
			raw, err := json.Marshal(data[0])
			if err != nil {
				return "", nil, fmt.Errorf("failed to marshal payload: %w", err)
			}
			sb.Write(raw)
		}
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return "", nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		sb.Write(raw)
	}

	return sb.String(), attachments, nil
}

// deconstruct copies d, swapping every Binary for a Placeholder numbered in
// depth-first order.
func deconstruct(d sioclient.Data, attachments *[][]byte) sioclient.Data {
	switch x := d.(type) {
	case sioclient.Binary:
		*attachments = append(*attachments, []byte(x))
		return sioclient.Placeholder{Num: len(*attachments) - 1}
	case sioclient.Array:
		out := make(sioclient.Array, len(x))
		for i, item := range x {
			out[i] = deconstruct(item, attachments)
		}
		return out
	case sioclient.Object:
		out := make(sioclient.Object, len(x))
		// Sorted keys keep attachment numbering stable.
		for _, k := range sortedKeys(x) {
			out[k] = deconstruct(x[k], attachments)
		}
		return out
	case nil:
		return sioclient.Null{}
	}
	return d
}

func sortedKeys(m sioclient.Object) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
