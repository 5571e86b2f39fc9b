package connpool

import (
	"net"
	"testing"
	"time"
)

type fakeSocket struct {
	net.Conn
	user   string
	closed bool
}

func (f *fakeSocket) AuthenticatedAs() string { return f.user }
func (f *fakeSocket) Close() error            { f.closed = true; return nil }

func newFake(user string) *fakeSocket { return &fakeSocket{user: user} }

func TestPoolReuseUnderPressure(t *testing.T) {
	p := New(1) // min_idle_connections = 1

	a, b, c := newFake("alice"), newFake("alice"), newFake("alice")
	p.Add(a)
	p.Add(b)
	p.Add(c)

	got, ok := p.Get("bob")
	if !ok {
		t.Fatal("expected reassignment to succeed")
	}
	if got != Socket(a) {
		t.Fatalf("expected reassignment to hand out the oldest (head) socket a, got %v", got)
	}

	remaining := p.Stats()["alice"]
	if remaining != 2 {
		t.Fatalf("expected 2 entries left in alice's queue, got %d", remaining)
	}

	// confirm order is preserved: b then c
	next, ok := p.Get("alice")
	if !ok || next != Socket(b) {
		t.Fatalf("expected b next in alice's queue, got %v, ok=%v", next, ok)
	}
}

func TestPoolKeyIntegrity(t *testing.T) {
	p := New(0)
	p.Add(newFake("alice"))
	p.Add(newFake("bob"))

	s, ok := p.Get("alice")
	if !ok || s.AuthenticatedAs() != "alice" {
		t.Fatalf("expected alice's own socket back, got %v", s)
	}
}

func TestPoolEmptyQueueRemoved(t *testing.T) {
	p := New(5)
	p.Add(newFake("alice"))
	p.Get("alice")
	if _, ok := p.queues["alice"]; ok {
		t.Fatal("empty queue must be removed from the mapping")
	}
}

func TestRemoveClosesSocket(t *testing.T) {
	p := New(0)
	sock := newFake("alice")
	entry := p.Add(sock)
	p.Remove(entry)
	if !sock.closed {
		t.Fatal("Remove must close the socket")
	}
	if _, ok := p.Get("alice"); ok {
		t.Fatal("removed entry must not be returned by Get")
	}
}

func TestFreeClosesEverySocket(t *testing.T) {
	p := New(0)
	a, b := newFake("alice"), newFake("bob")
	p.Add(a)
	p.Add(b)
	p.Free()
	if !a.closed || !b.closed {
		t.Fatal("Free must close every pooled socket")
	}
	if len(p.Stats()) != 0 {
		t.Fatal("Free must drop every queue")
	}
}

func TestAddedAtRecorded(t *testing.T) {
	p := New(0)
	start := time.Now()
	entry := p.Add(newFake("alice"))
	if entry.AddedAt.Before(start) {
		t.Fatal("AddedAt should be set at insertion time")
	}
}
