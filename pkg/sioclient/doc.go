// Package sioclient holds the data model shared by the sioclient protocol engine.
//
// A Socket.IO-style connection carries text packets such as
//
//	2["chat","hello"]
//	31["ok"]
//	51-["upload",{"_placeholder":true,"num":0}]
//
// optionally followed by out-of-band binary frames. The parser package turns
// text frames into Packets, the binary package merges binary frames into the
// placeholders they stand for, and the client package ties everything together
// with ack correlation and event dispatch.
//
// Payload values are represented by the closed Data variant rather than `any`,
// so code that walks a payload (placeholder substitution, encoding, handlers)
// can switch exhaustively over the possible shapes.
package sioclient
