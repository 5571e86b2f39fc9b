package wire

const (
	capLongPassword        = 0x00000001
	capProtocol41          = 0x00000200
	capSecureConnection    = 0x00008000
	capPluginAuth          = 0x00080000
	capPluginAuthLenEncData = 0x00200000
	capConnectWithDB       = 0x00000008
)

// HandshakeV10 is the server greeting sent before authentication.
type HandshakeV10 struct {
	ProtocolVersion byte
	ServerVersion   string
	ConnectionID    uint32
	AuthPluginData  []byte // combined 8+12-byte (or more) challenge
	Capabilities    uint32
	CharacterSet    byte
	StatusFlags     uint16
	AuthPluginName  string
}

// DecodeHandshakeV10 parses a Handshake v10 payload.
func DecodeHandshakeV10(payload []byte) (HandshakeV10, error) {
	r := &reader{b: payload}
	var h HandshakeV10
	var err error
	if h.ProtocolVersion, err = r.byte(); err != nil {
		return h, err
	}
	if h.ServerVersion, err = r.nulString(); err != nil {
		return h, err
	}
	if h.ConnectionID, err = r.uint32(); err != nil {
		return h, err
	}
	authPart1, err := r.bytes(8)
	if err != nil {
		return h, err
	}
	if _, err = r.byte(); err != nil { // filler
		return h, err
	}
	capLow, err := r.uint16()
	if err != nil {
		return h, err
	}
	h.Capabilities = uint32(capLow)
	if r.remaining() > 0 {
		if h.CharacterSet, err = r.byte(); err != nil {
			return h, err
		}
		if h.StatusFlags, err = r.uint16(); err != nil {
			return h, err
		}
		capHigh, err := r.uint16()
		if err != nil {
			return h, err
		}
		h.Capabilities |= uint32(capHigh) << 16
		authLen, err := r.byte()
		if err != nil {
			return h, err
		}
		if _, err = r.bytes(10); err != nil { // reserved
			return h, err
		}
		part2Len := int(authLen) - 8
		if part2Len < 13 {
			part2Len = 13
		}
		authPart2, err := r.bytes(part2Len)
		if err != nil {
			return h, err
		}
		h.AuthPluginData = append(append([]byte{}, authPart1...), trimTrailingNul(authPart2)...)
		if h.Capabilities&capPluginAuth != 0 {
			h.AuthPluginName, err = r.nulString()
			if err != nil {
				return h, err
			}
		}
	} else {
		h.AuthPluginData = authPart1
	}
	return h, nil
}

func trimTrailingNul(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

// EncodeHandshakeV10 builds a Handshake v10 payload.
func EncodeHandshakeV10(h HandshakeV10) []byte {
	out := make([]byte, 0, 64+len(h.ServerVersion)+len(h.AuthPluginName))
	out = append(out, h.ProtocolVersion)
	out = append(out, h.ServerVersion...)
	out = append(out, 0)
	cid := make([]byte, 4)
	cid[0] = byte(h.ConnectionID)
	cid[1] = byte(h.ConnectionID >> 8)
	cid[2] = byte(h.ConnectionID >> 16)
	cid[3] = byte(h.ConnectionID >> 24)
	out = append(out, cid...)

	authData := h.AuthPluginData
	if len(authData) < 20 {
		padded := make([]byte, 20)
		copy(padded, authData)
		authData = padded
	}
	out = append(out, authData[:8]...)
	out = append(out, 0) // filler
	caps := h.Capabilities | capProtocol41 | capSecureConnection | capPluginAuth
	out = append(out, byte(caps), byte(caps>>8))
	out = append(out, h.CharacterSet)
	out = append(out, byte(h.StatusFlags), byte(h.StatusFlags>>8))
	out = append(out, byte(caps>>16), byte(caps>>24))
	out = append(out, byte(len(authData)+1))
	out = append(out, make([]byte, 10)...) // reserved
	out = append(out, authData[8:]...)
	out = append(out, 0)
	out = append(out, h.AuthPluginName...)
	out = append(out, 0)
	return out
}

// HandshakeResponse41 is the client's reply to a Handshake v10.
type HandshakeResponse41 struct {
	Capabilities uint32
	MaxPacket    uint32
	CharacterSet byte
	Username     string
	AuthResponse []byte
	Database     string
	AuthPlugin   string
}

// DecodeAuthResponse parses a HandshakeResponse41 payload.
func DecodeAuthResponse(payload []byte) (HandshakeResponse41, error) {
	r := &reader{b: payload}
	var resp HandshakeResponse41
	var err error
	if resp.Capabilities, err = r.uint32(); err != nil {
		return resp, err
	}
	if resp.MaxPacket, err = r.uint32(); err != nil {
		return resp, err
	}
	if resp.CharacterSet, err = r.byte(); err != nil {
		return resp, err
	}
	if _, err = r.bytes(23); err != nil { // reserved
		return resp, err
	}
	if resp.Username, err = r.nulString(); err != nil {
		return resp, err
	}
	switch {
	case resp.Capabilities&capPluginAuthLenEncData != 0:
		n, consumed, ok := LenEncInt(r.b, r.pos)
		if !ok {
			return resp, errf(EOF, "wire: truncated auth-response length")
		}
		r.pos += consumed
		data, err := r.bytes(int(n))
		if err != nil {
			return resp, err
		}
		resp.AuthResponse = data
	case resp.Capabilities&capSecureConnection != 0:
		n, err := r.byte()
		if err != nil {
			return resp, err
		}
		data, err := r.bytes(int(n))
		if err != nil {
			return resp, err
		}
		resp.AuthResponse = data
	default:
		s, err := r.nulString()
		if err != nil {
			return resp, err
		}
		resp.AuthResponse = []byte(s)
	}
	if resp.Capabilities&capConnectWithDB != 0 {
		if resp.Database, err = r.nulString(); err != nil {
			return resp, err
		}
	}
	if resp.Capabilities&capPluginAuth != 0 && r.remaining() > 0 {
		if resp.AuthPlugin, err = r.nulString(); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// EncodeAuthResponse builds a HandshakeResponse41 payload.
func EncodeAuthResponse(resp HandshakeResponse41) []byte {
	out := make([]byte, 0, 32+len(resp.Username)+len(resp.AuthResponse)+len(resp.Database))
	caps := resp.Capabilities | capProtocol41 | capSecureConnection | capLongPassword
	cb := make([]byte, 4)
	cb[0], cb[1], cb[2], cb[3] = byte(caps), byte(caps>>8), byte(caps>>16), byte(caps>>24)
	out = append(out, cb...)
	mp := make([]byte, 4)
	mp[0], mp[1], mp[2], mp[3] = byte(resp.MaxPacket), byte(resp.MaxPacket>>8), byte(resp.MaxPacket>>16), byte(resp.MaxPacket>>24)
	out = append(out, mp...)
	out = append(out, resp.CharacterSet)
	out = append(out, make([]byte, 23)...)
	out = append(out, resp.Username...)
	out = append(out, 0)
	out = append(out, byte(len(resp.AuthResponse)))
	out = append(out, resp.AuthResponse...)
	if resp.Database != "" {
		out = append(out, resp.Database...)
		out = append(out, 0)
	}
	if resp.AuthPlugin != "" {
		out = append(out, resp.AuthPlugin...)
		out = append(out, 0)
	}
	return out
}
