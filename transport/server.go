package transport

import (
	"net"

	"github.com/gompi/gompi/log"
	"github.com/gompi/gompi/plan"
)

// Handler consumes the message stream of one inbound connection.
type Handler interface {
	Handle(conn *Conn) (int, error)
}

// Server accepts connections for one peer and dispatches them by
// connection type: pings are answered in place, data streams go to the
// configured handler.
type Server struct {
	self     plan.PeerID
	listener net.Listener
	handler  Handler
}

func NewServer(self plan.PeerID, handler Handler) *Server {
	return &Server{
		self:    self,
		handler: handler,
	}
}

// Listen binds the server. When self has port 0, the actual bound port
// is reflected into the returned peer ID.
func (s *Server) Listen() (plan.PeerID, error) {
	listener, err := net.Listen("tcp", s.self.ListenAddr().String())
	if err != nil {
		return s.self, err
	}
	s.listener = listener
	if s.self.Port == 0 {
		s.self.Port = uint16(listener.Addr().(*net.TCPAddr).Port)
	}
	log.Debugf("listening: %s", s.self)
	return s.self, nil
}

func (s *Server) Self() plan.PeerID {
	return s.self
}

func (s *Server) accept() (*Conn, error) {
	tcpConn, err := s.listener.Accept()
	if err != nil {
		return nil, err
	}
	return UpgradeFrom(tcpConn, s.self)
}

func (s *Server) Serve() {
	for {
		conn, err := s.accept()
		if err != nil {
			if isNetClosingErr(err) {
				break
			}
			log.Infof("accept failed: %v", err)
			continue
		}
		go s.handle(conn)
	}
}

// Close closes the listener.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) handle(conn *Conn) {
	defer conn.Close()
	if conn.Type() == ConnPing {
		if err := echo(conn); err != nil {
			log.Debugf("ping conn err: %v", err)
		}
		return
	}
	if n, err := s.handler.Handle(conn); err != nil {
		log.Warnf("handle conn err: %v after handled %d messages", err, n)
	}
}

// echo answers each inbound message with itself.
func echo(conn *Conn) error {
	for {
		var mh MessageHeader
		if err := mh.ReadFrom(conn.conn); err != nil {
			return ignoreEOF(err)
		}
		var m Message
		if err := m.ReadFrom(conn.conn); err != nil {
			return err
		}
		if err := mh.WriteTo(conn.conn); err != nil {
			return err
		}
		if err := m.WriteTo(conn.conn); err != nil {
			return err
		}
	}
}

// check if error is internal/poll.ErrNetClosing
func isNetClosingErr(err error) bool {
	const msg = `use of closed network connection`
	if e, ok := err.(*net.OpError); ok {
		return msg == e.Err.Error()
	}
	return false
}
