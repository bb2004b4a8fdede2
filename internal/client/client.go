// Package client implements the interactive CLI's REPL loop, grounded
// on leftmike-maho.v1's repl package shape (Interact/ReplSQL prompting
// a line, running it, printing the result or the error) but using
// bufio.Scanner over stdin in place of github.com/peterh/liner, whose
// raw-terminal history editing needs syscalls unavailable here.
package client

import (
	"bufio"
	"fmt"
	"io"
	"net"

	"github.com/jyafoo/godb/internal/protocol"
)

const prompt = "godb> "

// Client owns one connection's Transport and drives the REPL against
// it.
type Client struct {
	transport *protocol.Transport
	conn      net.Conn
}

// Dial connects to a godb-server listening at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{transport: protocol.NewTransport(conn), conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send submits one statement and returns its response body, or the
// error reported by the server.
func (c *Client) Send(stat string) (string, error) {
	if err := c.transport.Send(protocol.OKString(stat)); err != nil {
		return "", err
	}
	pkg, err := c.transport.Receive()
	if err != nil {
		return "", err
	}
	if pkg.Err != nil {
		return "", pkg.Err
	}
	return string(pkg.Body), nil
}

// Interact runs the read-eval-print loop: read one line from in,
// send it, print the result or error to out, until in is exhausted.
func Interact(c *Client, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		result, err := c.Send(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		fmt.Fprint(out, result)
		if len(result) == 0 || result[len(result)-1] != '\n' {
			fmt.Fprintln(out)
		}
	}
}
