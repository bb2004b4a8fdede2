package client_test

import (
	"bytes"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jyafoo/godb/internal/client"
	"github.com/jyafoo/godb/internal/protocol"
)

// echoServer accepts one connection and answers every statement with
// either a canned success or error body, enough to exercise Client
// without pulling in the full engine stack.
func echoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		transport := protocol.NewTransport(conn)
		for {
			pkg, err := transport.Receive()
			if err != nil {
				return
			}
			stat := string(pkg.Body)
			var resp *protocol.Packet
			if strings.Contains(stat, "bad") {
				resp = protocol.ErrPacket(bogusErr{})
			} else {
				resp = protocol.OKString("ok: " + stat)
			}
			if err := transport.Send(resp); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

type bogusErr struct{}

func (bogusErr) Error() string { return "invalid command" }

func TestClientSendRoundTrips(t *testing.T) {
	addr := echoServer(t)
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	out, err := c.Send("select * from t")
	require.NoError(t, err)
	require.Equal(t, "ok: select * from t", out)

	_, err = c.Send("bad statement")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid command")
}

func TestInteractPrintsPromptAndResults(t *testing.T) {
	addr := echoServer(t)
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	in := strings.NewReader("select 1\nbad one\n")
	var out bytes.Buffer

	err = client.Interact(c, in, &out)
	require.NoError(t, err)

	text := out.String()
	require.Contains(t, text, "ok: select 1")
	require.Contains(t, text, "invalid command")
	require.Contains(t, text, "godb>")
}
