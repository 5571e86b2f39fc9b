// Package auth implements the SPNEGO-wrapped NTLM response computation
// used by the Windows-authentication path some MySQL deployments
// negotiate via authentication_windows_client: the client's
// HandshakeResponse41 auth-response field carries a SPNEGO/GSSAPI
// token (ASN.1 DER) whose payload is an NTLMSSP message. This package
// validates the DER shell via internal/asn1der and, when a type-2
// challenge is presented, computes the classic NTLMv1 response with
// golang.org/x/crypto/md4 — the teacher's x/crypto dependency,
// repointed here from PostgreSQL SCRAM (not applicable to a MySQL-only
// backend) to MySQL's own SSPI/NTLM negotiation.
package auth

import (
	"bytes"
	"crypto/des"
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"golang.org/x/crypto/md4"

	"github.com/bigwindlee/mysqlproxy/internal/asn1der"
)

// ErrMalformedToken is returned when a SPNEGO token fails DER
// validation or does not contain a recognizable NTLMSSP message.
var ErrMalformedToken = fmt.Errorf("auth: malformed SPNEGO/NTLMSSP token")

const ntlmSignature = "NTLMSSP\x00"

// ValidateSPNEGO runs the token through asn1der.Validate, converting
// any decode error into ErrMalformedToken. A failed validation must
// become a protocol-level auth error at the session layer, per the
// session state machine's auth contract — the upstream socket must
// never be pooled in that case.
func ValidateSPNEGO(token []byte) error {
	p := asn1der.NewPacket(token)
	if err := asn1der.Validate(p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return nil
}

// ExtractNTLMSSP finds an embedded NTLMSSP message inside a validated
// SPNEGO token by scanning for the NTLMSSP signature — SPNEGO's
// negTokenInit/negTokenResp mechanism-list framing varies by GSS
// implementation, and the session layer only needs the NTLMSSP
// payload location, not full mechanism negotiation.
func ExtractNTLMSSP(token []byte) ([]byte, bool) {
	idx := bytes.Index(token, []byte(ntlmSignature))
	if idx < 0 {
		return nil, false
	}
	return token[idx:], true
}

// NTLMMessageType reports the 4-byte little-endian message type field
// following the NTLMSSP signature (1 = negotiate, 2 = challenge,
// 3 = authenticate).
func NTLMMessageType(msg []byte) (uint32, error) {
	if len(msg) < 12 || !bytes.HasPrefix(msg, []byte(ntlmSignature)) {
		return 0, ErrMalformedToken
	}
	return binary.LittleEndian.Uint32(msg[8:12]), nil
}

// ServerChallenge extracts the 8-byte challenge from a type-2 NTLMSSP
// challenge message (fixed offset 24).
func ServerChallenge(msg []byte) ([8]byte, error) {
	var out [8]byte
	if len(msg) < 32 {
		return out, ErrMalformedToken
	}
	copy(out[:], msg[24:32])
	return out, nil
}

// NTHash computes the NT hash: MD4 of the password in UTF-16LE.
func NTHash(password string) [16]byte {
	u16 := utf16.Encode([]rune(password))
	buf := make([]byte, len(u16)*2)
	for i, c := range u16 {
		binary.LittleEndian.PutUint16(buf[i*2:], c)
	}
	h := md4.New()
	h.Write(buf)
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// NTLMv1Response computes the classic 24-byte NTLMv1 response: the NT
// hash, zero-padded to 21 bytes, split into three 7-byte DES keys,
// each used to DES-encrypt the 8-byte server challenge.
func NTLMv1Response(ntHash [16]byte, challenge [8]byte) ([24]byte, error) {
	var padded [21]byte
	copy(padded[:], ntHash[:])

	var resp [24]byte
	for i := 0; i < 3; i++ {
		key := desKeyFromBytes(padded[i*7 : i*7+7])
		block, err := des.NewCipher(key[:])
		if err != nil {
			return resp, fmt.Errorf("auth: des key setup: %w", err)
		}
		var out [8]byte
		block.Encrypt(out[:], challenge[:])
		copy(resp[i*8:], out[:])
	}
	return resp, nil
}

// desKeyFromBytes expands 7 bytes into an 8-byte DES key by inserting
// an odd-parity bit every 7 bits, the standard NTLM key-schedule step.
func desKeyFromBytes(b []byte) [8]byte {
	var key [8]byte
	key[0] = b[0] >> 1
	key[1] = (b[0]<<6 | b[1]>>2) & 0xff
	key[2] = (b[1]<<5 | b[2]>>3) & 0xff
	key[3] = (b[2]<<4 | b[3]>>4) & 0xff
	key[4] = (b[3]<<3 | b[4]>>5) & 0xff
	key[5] = (b[4]<<2 | b[5]>>6) & 0xff
	key[6] = (b[5]<<1 | b[6]>>7) & 0xff
	key[7] = b[6] & 0x7f
	for i, k := range key {
		key[i] = (k << 1) | parityBit(k)
	}
	return key
}

func parityBit(b byte) byte {
	b7 := b & 0x7f
	parity := byte(0)
	for i := 0; i < 7; i++ {
		parity ^= (b7 >> uint(i)) & 1
	}
	return parity ^ 1
}
