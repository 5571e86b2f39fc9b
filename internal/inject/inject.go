// Package inject implements the per-session queue of synthesized
// queries the proxy interposes on a live session. Grounded on
// network-injection.c.
package inject

// Injection is a query synthesized by the proxy, issued on a session
// in place of or before the client's own query.
type Injection struct {
	ID                uint32
	Query             []byte
	ResultSetIsNeeded bool
	TSReadQuery       int64 // microseconds, captured at construction
}

// New constructs an Injection, capturing tsReadQuery (microseconds
// since an arbitrary epoch, supplied by the caller) at construction
// time — matching injection_new's ts_read_query semantics, used later
// to compute end-to-end injection latency.
func New(id uint32, query []byte, resultSetIsNeeded bool, tsReadQuery int64) *Injection {
	return &Injection{
		ID:                id,
		Query:             query,
		ResultSetIsNeeded: resultSetIsNeeded,
		TSReadQuery:       tsReadQuery,
	}
}

// Queue is a per-session FIFO of injections.
type Queue struct {
	items []*Injection
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Append pushes an injection to the tail.
func (q *Queue) Append(i *Injection) {
	q.items = append(q.items, i)
}

// Prepend pushes an injection to the head, for immediate dequeue.
func (q *Queue) Prepend(i *Injection) {
	q.items = append([]*Injection{i}, q.items...)
}

// Dequeue pops and returns the head injection, or false if empty.
func (q *Queue) Dequeue() (*Injection, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	i := q.items[0]
	q.items = q.items[1:]
	return i, true
}

// Reset drops every pending injection.
func (q *Queue) Reset() {
	q.items = nil
}

// Len returns the number of pending injections.
func (q *Queue) Len() int {
	return len(q.items)
}

// ColumnDescriptor is a minimal stand-in referenced by ResultSetView;
// the concrete shape lives in internal/wire.ColumnDef, kept as `any`
// here so that inject does not import wire.
type ColumnDescriptor any

// ResultSetView buffers a result set for inspection by the script host
// when an injection's ResultSetIsNeeded is true.
type ResultSetView struct {
	Fields []ColumnDescriptor
	Rows   [][]byte // raw row packets, consumed lazily by NextRow
	cursor int
}

// NextRow returns the next raw row packet, or false when exhausted —
// the "lazy sequence over raw row packets" the data model calls for.
func (v *ResultSetView) NextRow() ([]byte, bool) {
	if v.cursor >= len(v.Rows) {
		return nil, false
	}
	row := v.Rows[v.cursor]
	v.cursor++
	return row, true
}
