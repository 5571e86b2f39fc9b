package session

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/bigwindlee/mysqlproxy/internal/auth"
	"github.com/bigwindlee/mysqlproxy/internal/connpool"
	"github.com/bigwindlee/mysqlproxy/internal/scripthost"
	"github.com/bigwindlee/mysqlproxy/internal/wire"
)

const readChunkSize = 4096

// readPacket pulls bytes from the client connection into the C1
// packet buffer until one full framed packet is available, then pops
// it. This is the data-flow path §2 describes: inbound client bytes
// into the buffer, the codec decodes one packet off it.
func (s *Session) readPacket() ([]byte, byte, error) {
	for {
		if s.buf.Len() >= 4 {
			hdrBytes, _ := s.buf.Peek(4)
			hdr, err := wire.DecodeHeader(hdrBytes)
			if err == nil && s.buf.Len() >= 4+int(hdr.Length) {
				s.buf.Pop(4)
				payload, _ := s.buf.Pop(int(hdr.Length))
				return payload, hdr.Seq, nil
			}
		}
		chunk := make([]byte, readChunkSize)
		n, err := s.Client.Read(chunk)
		if n > 0 {
			s.buf.Append(chunk[:n])
			continue
		}
		if err != nil {
			if err == io.EOF {
				return nil, 0, errClientClosed
			}
			return nil, 0, fmt.Errorf("session: read client packet: %w", err)
		}
	}
}

func (s *Session) writePacket(payload []byte, seq byte) error {
	out := wire.EncodeHeader(uint32(len(payload)), seq)
	out = append(out, payload...)
	_, err := s.Client.Write(out)
	if err != nil {
		return fmt.Errorf("session: write client packet: %w", err)
	}
	return nil
}

func (s *Session) sendHandshake() error {
	authData := make([]byte, 20)
	if _, err := rand.Read(authData); err != nil {
		return fmt.Errorf("session: generate auth data: %w", err)
	}
	for i, b := range authData {
		if b == 0 { // a zero byte would be read as a NUL terminator
			authData[i] = 0x01
		}
	}
	hs := wire.HandshakeV10{
		ProtocolVersion: 10,
		ServerVersion:   "8.0.0-proxy",
		ConnectionID:    uint32(s.ID),
		AuthPluginData:  authData,
		CharacterSet:    0x21, // utf8_general_ci
		AuthPluginName:  "mysql_native_password",
	}
	return s.writePacket(wire.EncodeHandshakeV10(hs), 0)
}

func (s *Session) readAuth() error {
	payload, seq, err := s.readPacket()
	if err != nil {
		return err
	}
	s.clientSeq = seq
	resp, err := wire.DecodeAuthResponse(payload)
	if err != nil {
		return err
	}
	s.username = resp.Username
	s.database = resp.Database

	if resp.AuthPlugin == "authentication_windows_client" {
		if err := auth.ValidateSPNEGO(resp.AuthResponse); err != nil {
			errPkt := wire.EncodeErr(wire.ErrPacket{Code: 1045, Message: "Access denied"})
			s.writePacket(errPkt, s.clientSeq+1)
			return fmt.Errorf("auth.denied: %w", err)
		}
	}
	return nil
}

func (s *Session) sendAuthResult() error {
	decision := s.Hooks.OnAuth(s.scriptSession(), s.username)
	if decision == scripthost.Reject {
		errPkt := wire.EncodeErr(wire.ErrPacket{Code: 1045, Message: "Access denied"})
		s.writePacket(errPkt, s.clientSeq+1)
		return fmt.Errorf("auth.denied: script host rejected identity %q", s.username)
	}

	sock, err := s.acquireUpstream()
	if err != nil {
		errPkt := wire.EncodeErr(wire.ErrPacket{Code: 2003, Message: "Can't connect to MySQL backend"})
		s.writePacket(errPkt, s.clientSeq+1)
		return fmt.Errorf("backend.down: %w", err)
	}
	s.upstream = sock

	ok := wire.EncodeOK(wire.OKPacket{})
	return s.writePacket(ok, s.clientSeq+1)
}

// acquireUpstream gets a pooled socket for s.username, or dials a
// fresh one against a backend chosen by routing policy when none is
// idle. returnOrDropUpstream adds sockets to the pool without any
// reactor readiness registration, so there is none to remove here;
// a peer close while a socket idles in the pool is not observed.
func (s *Session) acquireUpstream() (connpool.Socket, error) {
	if sock, ok := s.Pool.Get(s.username); ok {
		return sock, nil
	}
	d, ok := s.Pick(s.Registry, false)
	if !ok {
		return nil, fmt.Errorf("backend.down: no healthy backend available")
	}
	sock, err := s.Dial(d.Address, s.username)
	if err != nil {
		s.Registry.MarkDown(d)
		return nil, err
	}
	return sock, nil
}
