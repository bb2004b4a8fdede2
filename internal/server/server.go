// Package server implements the TCP listener and connection handler
// of spec.md §6, grounded on the Java original's Server/HandleSocket
// pair: a bounded pool of workers, each pulling one accepted
// connection through its own Executor (here, engine.Engine) until the
// client disconnects.
package server

import (
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jyafoo/godb/internal/engine"
	"github.com/jyafoo/godb/internal/protocol"
)

// Server listens on one TCP address and serves connections against a
// shared Store, capping concurrently handled connections at
// workerLimit the way the Java original's ThreadPoolExecutor bounds
// its worker count.
type Server struct {
	store *Store
	log   *logrus.Entry

	listener net.Listener
	sem      chan struct{}

	wg     sync.WaitGroup
	quit   chan struct{}
	closed bool
	mu     sync.Mutex
}

// New builds a Server bound to store, admitting at most workerLimit
// concurrent connections.
func New(store *Store, workerLimit int, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if workerLimit <= 0 {
		workerLimit = 1
	}
	return &Server{
		store: store,
		log:   log.WithField("component", "server"),
		sem:   make(chan struct{}, workerLimit),
		quit:  make(chan struct{}),
	}
}

// ListenAndServe binds addr and accepts connections until Close is
// called. It blocks for the lifetime of the listener.
func (s *Server) ListenAndServe(addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

// Listen binds addr, making Addr available immediately. Split from
// Serve so callers (and tests) can learn the bound address before the
// accept loop starts, useful for addr ":0".
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.WithField("addr", ln.Addr().String()).Info("listening")
	return nil
}

// Addr returns the bound listener address. Only valid after Listen.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs the accept loop against an already-bound listener.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				return err
			}
		}

		s.sem <- struct{}{}
		s.wg.Add(1)
		go func() {
			defer func() { <-s.sem; s.wg.Done() }()
			s.handle(conn)
		}()
	}
}

// Close stops accepting new connections and waits for in-flight ones
// to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.quit)
	s.mu.Unlock()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) handle(conn net.Conn) {
	sessionID := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{"session": sessionID, "remote": conn.RemoteAddr()})
	log.Info("connection established")
	defer func() {
		conn.Close()
		log.Info("connection closed")
	}()

	transport := protocol.NewTransport(conn)
	exec := engine.New(s.store.Catalog, s.store.VM, log)

	for {
		pkg, err := transport.Receive()
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Warn("receive failed")
			}
			return
		}
		if pkg.Err != nil {
			log.WithError(pkg.Err).Warn("received error packet from client")
			continue
		}

		out, execErr := exec.Execute(string(pkg.Body))

		var resp *protocol.Packet
		if execErr != nil {
			log.WithError(execErr).Warn("statement failed")
			resp = protocol.ErrPacket(execErr)
		} else {
			resp = protocol.OKString(out)
		}
		if err := transport.Send(resp); err != nil {
			log.WithError(err).Warn("send failed")
			return
		}
	}
}
