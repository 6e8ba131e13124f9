package client

import (
	"sync"
	"time"

	"github.com/tsarna/sioclient/pkg/sioclient"
	"github.com/tsarna/sioclient/pkg/sioclient/o11y"
)

// messageType selects what the loop does with a message.
type messageType int

const (
	messageTypeText messageType = iota
	messageTypeBinary
	messageTypeSend
	messageTypeExpire
	messageTypeConnected
	messageTypeTransportClosed
	messageTypeDisconnect
	messageTypeCall
)

// message is one unit of work for the loop goroutine.
type message struct {
	msgType messageType
	text    string
	data    []byte
	out     *outbound
	id      int64
	err     error
	call    func()

	// result, when set, receives the outcome once the loop handled the message.
	result chan error
}

// outbound is an encoded packet waiting to be written.
type outbound struct {
	packetType  sioclient.PacketType
	text        string
	attachments [][]byte
	ack         *pendingAck
	span        o11y.Span
}

type pendingAck struct {
	id       int64
	callback AckCallback
	timeout  time.Duration
}

// mailbox is an unbounded FIFO. push never blocks; the loop waits on signal
// and drains everything queued so far.
type mailbox struct {
	mu     sync.Mutex
	items  []message
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(msg message) {
	m.mu.Lock()
	m.items = append(m.items, msg)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []message {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}
