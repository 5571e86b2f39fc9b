// Package session implements the proxy's per-connection state
// machine (C7): handshake, auth, and the read-query/send-query/
// read-result/send-result loop, orchestrating the backend registry
// (C4), connection pool (C5), and injection queue (C6), and invoking
// script-host callbacks (internal/scripthost) at each phase. Grounded
// on JeelKantaria-db-bouncer/internal/proxy/mysql.go's handshake shape
// and internal/proxy/handler.go's connection-handler dispatch,
// generalized from a raw byte relay into a packet-granular machine.
package session

import (
	"errors"
	"net"

	"github.com/bigwindlee/mysqlproxy/internal/backend"
	"github.com/bigwindlee/mysqlproxy/internal/connpool"
	"github.com/bigwindlee/mysqlproxy/internal/inject"
	"github.com/bigwindlee/mysqlproxy/internal/logrecord"
	"github.com/bigwindlee/mysqlproxy/internal/netbuf"
	"github.com/bigwindlee/mysqlproxy/internal/reactor"
	"github.com/bigwindlee/mysqlproxy/internal/scripthost"
)

// State is one node of the session state machine.
type State int

const (
	Accept State = iota
	SendHandshake
	ReadAuth
	SendAuthResult
	ReadQuery
	SendQuery
	ReadQueryResult
	SendQueryResult
	CloseClient
	ErrorState
)

// Picker selects an upstream backend for a routing preference (read
// vs read-write), among registry entries whose state is Up or Unknown.
type Picker func(reg *backend.Registry, preferReadOnly bool) (*backend.Descriptor, bool)

// DefaultPicker returns the first eligible backend in registry order.
func DefaultPicker(reg *backend.Registry, preferReadOnly bool) (*backend.Descriptor, bool) {
	n := reg.Count()
	for i := 0; i < n; i++ {
		d, ok := reg.Get(i)
		if !ok {
			continue
		}
		if d.State != backend.Up && d.State != backend.Unknown {
			continue
		}
		if preferReadOnly && d.Role != backend.ReadOnly {
			continue
		}
		return d, true
	}
	return nil, false
}

// Dialer opens a freshly authenticated upstream socket to addr for
// username. The proxy's own pooled sockets satisfy connpool.Socket.
type Dialer func(addr backend.Address, username string) (connpool.Socket, error)

// Session drives one client connection through the state machine.
type Session struct {
	ID       uint64
	Client   net.Conn
	Registry *backend.Registry
	Pool     *connpool.Pool
	Dial     Dialer
	Pick     Picker
	Hooks    scripthost.Hooks
	Logger   logrecord.Logger
	Reactor  reactor.Reactor

	injections   *inject.Queue
	buf          *netbuf.Buffer
	username     string
	database     string
	upstream     connpool.Socket
	clientSeq        byte
	pendingQuery     []byte
	currentInjection *inject.Injection
	lastResult       queryResult
	lastErr          error
}

// New returns a Session ready to Run.
func New(id uint64, client net.Conn, reg *backend.Registry, pool *connpool.Pool, dial Dialer, hooks scripthost.Hooks, logger logrecord.Logger, rx reactor.Reactor) *Session {
	if hooks == nil {
		hooks = scripthost.NoOpHooks{}
	}
	pick := DefaultPicker
	return &Session{
		ID: id, Client: client, Registry: reg, Pool: pool, Dial: dial, Pick: pick,
		Hooks: hooks, Logger: logger, Reactor: rx,
		injections: inject.NewQueue(),
		buf:        netbuf.New(),
	}
}

func (s *Session) log(level logrecord.Level, msg string) {
	if s.Logger != nil {
		s.Logger.Log(logrecord.Record{Logger: "session", Level: level, Message: msg})
	}
}

func (s *Session) scriptSession() *scripthost.Session {
	return &scripthost.Session{ID: s.ID, Username: s.username, Database: s.database, Injections: s.injections}
}

// Run drives the state machine to completion: client disconnect,
// protocol error, or script-host rejection.
func (s *Session) Run() error {
	state := Accept
	for {
		var err error
		switch state {
		case Accept:
			if s.Hooks.OnConnect(s.scriptSession()) == scripthost.Reject {
				state = CloseClient
				continue
			}
			state = SendHandshake
		case SendHandshake:
			err = s.sendHandshake()
			state = ReadAuth
		case ReadAuth:
			err = s.readAuth()
			state = SendAuthResult
		case SendAuthResult:
			err = s.sendAuthResult()
			state = ReadQuery
		case ReadQuery:
			var query []byte
			query, err = s.readQuery()
			if err == nil {
				state = SendQuery
				s.pendingQuery = query
			}
		case SendQuery:
			err = s.sendQuery()
			state = ReadQueryResult
		case ReadQueryResult:
			err = s.readQueryResult()
			state = SendQueryResult
		case SendQueryResult:
			err = s.sendQueryResult()
			if err == nil {
				if s.currentInjection != nil {
					// an injected query's result is never forwarded to
					// the client; recheck the queue for more injections
					// before finally running the client's own query.
					state = SendQuery
				} else {
					state = ReadQuery
				}
			}
		case CloseClient:
			s.cleanup()
			return nil
		case ErrorState:
			s.cleanup()
			return s.lastErr
		}
		if err != nil {
			s.lastErr = err
			if isSessionFatal(err) {
				state = CloseClient
			} else {
				state = ErrorState
			}
		}
	}
}

func isSessionFatal(err error) bool {
	return errors.Is(err, errClientClosed)
}

var errClientClosed = errors.New("session: client closed connection")

func (s *Session) cleanup() {
	if s.upstream != nil {
		s.upstream.Close()
		s.upstream = nil
	}
	s.injections.Reset()
	s.Hooks.OnDisconnect(s.scriptSession())
}
