// Package scripthost defines the callback interface C7 invokes, and a
// pass-through default implementation. The embedded interpreter that
// would back a real script host (e.g. Lua, per spec's design note) is
// explicitly out of scope; this package defines only the callbacks
// and the data handed across them.
package scripthost

import "github.com/bigwindlee/mysqlproxy/internal/inject"

// Decision is the verdict a callback returns.
type Decision int

const (
	Accept Decision = iota
	Reject
	Fallthrough
	Forward
	Inject
	ShortCircuit
	Swallow
)

// Session is the minimal view of session state a script host may
// inspect or act on.
type Session struct {
	ID         uint64
	Username   string
	Database   string
	Injections *inject.Queue
}

// ResultSet is the minimal view of a result a script host may inspect.
type ResultSet struct {
	Columns int
	Rows    [][]byte
}

// Hooks is the set of callbacks C7 invokes at each phase. The core
// treats the host as a pure transformer: every side effect is
// mediated through the injection queue and the returned Decision.
type Hooks interface {
	OnConnect(s *Session) Decision
	OnAuth(s *Session, identity string) Decision
	OnReadQuery(s *Session, query []byte) Decision
	OnReadQueryResult(s *Session, rs *ResultSet) Decision
	OnDisconnect(s *Session)
}

// NoOpHooks accepts every connection/auth and forwards every query and
// result untouched — the always-available default when no scripting
// host is wired.
type NoOpHooks struct{}

func (NoOpHooks) OnConnect(*Session) Decision                    { return Accept }
func (NoOpHooks) OnAuth(*Session, string) Decision                { return Accept }
func (NoOpHooks) OnReadQuery(*Session, []byte) Decision           { return Forward }
func (NoOpHooks) OnReadQueryResult(*Session, *ResultSet) Decision { return Forward }
func (NoOpHooks) OnDisconnect(*Session)                           {}
