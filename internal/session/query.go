package session

import (
	"fmt"

	"github.com/bigwindlee/mysqlproxy/internal/inject"
	"github.com/bigwindlee/mysqlproxy/internal/scripthost"
	"github.com/bigwindlee/mysqlproxy/internal/wire"
)

// readQuery reads the client's COM_QUERY packet and invokes the
// on_read_query callback, which may enqueue injections against
// s.injections before this method returns.
func (s *Session) readQuery() ([]byte, error) {
	payload, seq, err := s.readPacket()
	if err != nil {
		return nil, err
	}
	s.clientSeq = seq
	query, err := wire.DecodeComQuery(payload)
	if err != nil {
		return nil, err
	}
	s.Hooks.OnReadQuery(s.scriptSession(), []byte(query))
	return []byte(query), nil
}

// sendQuery consults the injection queue first (§4.6): if non-empty,
// it dequeues the head and forwards that query to the upstream
// instead of the client's own, tracking it in s.currentInjection so
// SendQueryResult knows not to forward the response to the client.
func (s *Session) sendQuery() error {
	if s.injections.Len() > 0 {
		injected, _ := s.injections.Dequeue()
		s.currentInjection = injected
		return s.forwardQuery(injected.Query)
	}
	s.currentInjection = nil
	return s.forwardQuery(s.pendingQuery)
}

func (s *Session) forwardQuery(query []byte) error {
	if s.upstream == nil {
		return fmt.Errorf("io.closed: no upstream socket acquired")
	}
	payload := wire.EncodeComQuery(string(query))
	out := wire.EncodeHeader(uint32(len(payload)), 0)
	out = append(out, payload...)
	if _, err := s.upstream.Write(out); err != nil {
		return fmt.Errorf("io.write: %w", err)
	}
	return nil
}

// queryResult is the outcome of one READ_QUERY_RESULT phase: either a
// single OK/ERR packet, or a buffered result set.
type queryResult struct {
	single    []byte   // OK or ERR payload, when resultSet is nil
	columns   [][]byte // raw column-definition packets, forwarded verbatim
	resultSet *inject.ResultSetView
	fatal     bool // upstream reported a fatal protocol error
}

func (s *Session) readQueryResult() error {
	first, err := s.readUpstreamPacket()
	if err != nil {
		return fmt.Errorf("io.read: %w", err)
	}
	if len(first) == 0 {
		return fmt.Errorf("wire.invalid: empty upstream response")
	}
	switch first[0] {
	case 0x00:
		s.lastResult = queryResult{single: first}
		return nil
	case 0xff:
		s.lastResult = queryResult{single: first, fatal: true}
		return nil
	}

	numCols, _, ok := wire.LenEncInt(first, 0)
	if !ok {
		return fmt.Errorf("wire.invalid: malformed column-count packet")
	}
	columns := make([][]byte, 0, numCols)
	for i := uint64(0); i < numCols; i++ {
		col, err := s.readUpstreamPacket()
		if err != nil {
			return fmt.Errorf("io.read: %w", err)
		}
		s.observeColumnType(col)
		columns = append(columns, col)
	}
	if _, err := s.readUpstreamPacket(); err != nil { // EOF after column defs
		return fmt.Errorf("io.read: %w", err)
	}
	var rows [][]byte
	for {
		row, err := s.readUpstreamPacket()
		if err != nil {
			return fmt.Errorf("io.read: %w", err)
		}
		if wire.IsEOFHeader(row) {
			break
		}
		rows = append(rows, row)
	}
	s.lastResult = queryResult{columns: columns, resultSet: &inject.ResultSetView{Rows: rows}}
	return nil
}

// observeColumnType decodes a column-definition packet for logging
// purposes only: the decoded struct is never re-encoded, the packet
// already forwarded to the client is the raw upstream bytes. Decode
// failures are swallowed since a malformed column def here does not
// block forwarding; ColumnTypeName's own UNKNOWN-plus-warning path is
// the only observable effect of this call.
func (s *Session) observeColumnType(col []byte) {
	def, err := wire.DecodeColumnDef(col)
	if err != nil {
		return
	}
	wire.ColumnTypeName(def.Type, s.Logger)
}

// readUpstreamPacket reads one framed packet from the upstream
// socket, not threading it through the client-facing C1 buffer (each
// direction has its own buffer; this one is sized per-read since
// upstream responses during a query are consumed synchronously).
func (s *Session) readUpstreamPacket() ([]byte, error) {
	hdrBuf := make([]byte, 4)
	if _, err := readFull(s.upstream, hdrBuf); err != nil {
		return nil, err
	}
	hdr, err := wire.DecodeHeader(hdrBuf)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, hdr.Length)
	if hdr.Length > 0 {
		if _, err := readFull(s.upstream, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func readFull(r interface {
	Read([]byte) (int, error)
}, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// sendQueryResult forwards the buffered upstream result to the client
// only when the query just completed was the client's own, not an
// injection (scenario 7: "client sees results of SELECT 1 only").
// On a fatal upstream error (any ERR packet) the upstream socket is
// closed, not pooled; the backend it came from is not marked down.
// Otherwise the socket is returned to the pool after the client's own
// query, and kept for the next query after an injected one.
func (s *Session) sendQueryResult() error {
	r := s.lastResult
	isClientQuery := s.currentInjection == nil

	if isClientQuery {
		if err := s.forwardResultToClient(r); err != nil {
			return err
		}
	} else if s.currentInjection.ResultSetIsNeeded && r.resultSet != nil {
		s.Hooks.OnReadQueryResult(s.scriptSession(), &scripthost.ResultSet{Rows: r.resultSet.Rows})
	}

	if r.fatal {
		s.returnOrDropUpstream(true)
	} else if isClientQuery {
		s.returnOrDropUpstream(false)
	}
	return nil
}

func (s *Session) forwardResultToClient(r queryResult) error {
	seq := s.clientSeq + 1
	if r.single != nil {
		return s.writePacket(r.single, seq)
	}
	// Column definitions are forwarded verbatim; the proxy does not
	// rewrite them, only re-frames the sequence numbers for its own
	// side of the connection.
	colCount := wire.EncodeLenEncInt(nil, uint64(len(r.columns)))
	if err := s.writePacket(colCount, seq); err != nil {
		return err
	}
	seq++
	for _, col := range r.columns {
		if err := s.writePacket(col, seq); err != nil {
			return err
		}
		seq++
	}
	if err := s.writePacket(wire.EncodeEOF(wire.EOFPacket{}), seq); err != nil {
		return err
	}
	seq++
	for {
		row, ok := r.resultSet.NextRow()
		if !ok {
			break
		}
		if err := s.writePacket(row, seq); err != nil {
			return err
		}
		seq++
	}
	return s.writePacket(wire.EncodeEOF(wire.EOFPacket{}), seq)
}

// returnOrDropUpstream is the scoped-acquisition guard (§5): every
// socket leaves this method either pooled or closed, on every path.
func (s *Session) returnOrDropUpstream(fatal bool) {
	if s.upstream == nil {
		return
	}
	if fatal {
		s.upstream.Close()
		s.upstream = nil
		return
	}
	s.Pool.Add(s.upstream)
	s.upstream = nil
}
