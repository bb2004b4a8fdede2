// Package protocol implements the wire packet format of spec.md §6:
// a one-byte flag followed by a body, hex-encoded and newline-framed
// for transport over a plain net.Conn. Grounded on the Java original's
// transport package (Encoder.java/Package.java): flag 0 carries a
// successful result's body, flag 1 carries an error message.
package protocol

import (
	"errors"

	"github.com/jyafoo/godb/internal/dberr"
)

const (
	flagOK    byte = 0
	flagError byte = 1
)

// Packet is one request or response unit exchanged between client and
// server: either a body (success) or an error message, never both.
type Packet struct {
	Body []byte
	Err  error
}

// OK wraps a successful body.
func OK(body []byte) *Packet {
	return &Packet{Body: body}
}

// OKString wraps a successful body given as a string.
func OKString(body string) *Packet {
	return &Packet{Body: []byte(body)}
}

// ErrPacket wraps an error to be reported to the peer.
func ErrPacket(err error) *Packet {
	return &Packet{Err: err}
}

// Encode turns a Packet into its wire form: [flag:1][body].
func Encode(pkg *Packet) []byte {
	if pkg.Err != nil {
		msg := pkg.Err.Error()
		if msg == "" {
			msg = "internal server error"
		}
		return append([]byte{flagError}, []byte(msg)...)
	}
	return append([]byte{flagOK}, pkg.Body...)
}

// Decode parses the wire form of a Packet.
func Decode(data []byte) (*Packet, error) {
	if len(data) < 1 {
		return nil, dberr.New(dberr.KindInvalidPkgData, "packet shorter than flag byte")
	}
	switch data[0] {
	case flagOK:
		return &Packet{Body: data[1:]}, nil
	case flagError:
		return &Packet{Err: errors.New(string(data[1:]))}, nil
	default:
		return nil, dberr.New(dberr.KindInvalidPkgData, "unrecognized packet flag")
	}
}
