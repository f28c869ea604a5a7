package auth

import (
	"bytes"
	"crypto/des"
	"encoding/base64"
	"encoding/binary"

	"golang.org/x/crypto/md4"
)

// NTLM binds a two-round challenge-response to one connection: Type1
// Negotiate, Type2 Challenge (server), Type3 Authenticate. Once the
// handshake completes, the caller marks the pool record authorized so
// later requests on the same connection omit Authorization (spec §4.7,
// §4.9). Only NTLMv1 is implemented, matching the scope of the hash
// primitive available in the pack (x/crypto/md4; there is no full NTLM-SSP
// library in the retrieval pack, so the message framing below is
// hand-rolled against the public NTLM message format).
const (
	ntlmSignature        = "NTLMSSP\x00"
	ntlmNegotiate uint32  = 1
	ntlmChallenge uint32  = 2
	ntlmAuthenticate uint32 = 3

	flagNegotiateUnicode    = 0x00000001
	flagNegotiateNTLM       = 0x00000200
	flagNegotiateAlwaysSign = 0x00008000
)

// Type1 builds the initial "NTLM " Authorization header value.
func Type1() string {
	buf := new(bytes.Buffer)
	buf.WriteString(ntlmSignature)
	writeUint32(buf, ntlmNegotiate)
	writeUint32(buf, flagNegotiateUnicode|flagNegotiateNTLM|flagNegotiateAlwaysSign)
	// Domain and workstation fields, both empty: len=0, offset=32.
	writeUint16(buf, 0)
	writeUint16(buf, 0)
	writeUint32(buf, 32)
	writeUint16(buf, 0)
	writeUint16(buf, 0)
	writeUint32(buf, 32)
	return "NTLM " + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// Challenge2 is the decoded server Type2 message.
type Challenge2 struct {
	ServerChallenge [8]byte
}

// ParseType2 decodes the server's "NTLM <base64>" challenge header.
func ParseType2(headerValue string) (Challenge2, bool) {
	const prefix = "NTLM "
	if len(headerValue) <= len(prefix) {
		return Challenge2{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(headerValue[len(prefix):])
	if err != nil || len(raw) < 32 {
		return Challenge2{}, false
	}
	if string(raw[:8]) != ntlmSignature {
		return Challenge2{}, false
	}
	var c Challenge2
	copy(c.ServerChallenge[:], raw[24:32])
	return c, true
}

// Type3 computes the final Authorize header using NTLMv1 response
// (DES-encrypted, MD4-keyed) against the server challenge.
func Type3(user, password, domain string, challenge Challenge2) string {
	hash := ntlmHash(password)
	response := ntlmResponse(hash, challenge.ServerChallenge)

	buf := new(bytes.Buffer)

	domainB := []byte(domain)
	userB := []byte(user)
	hostB := []byte("WORKSTATION")

	// Fixed header is 64 bytes before the variable-length fields; lay out
	// field offsets up front since they must match declaration order.
	lmLen := uint16(0)
	ntLen := uint16(len(response))
	domLen := uint16(len(domainB))
	userLen := uint16(len(userB))
	hostLen := uint16(len(hostB))

	lmOffset := uint32(64)
	ntOffset := lmOffset + uint32(lmLen)
	domOffset := ntOffset + uint32(ntLen)
	userOffset := domOffset + uint32(domLen)
	hostOffset := userOffset + uint32(userLen)
	sessOffset := hostOffset + uint32(hostLen)

	buf.WriteString(ntlmSignature)
	writeUint32(buf, ntlmAuthenticate)

	writeUint16(buf, lmLen)
	writeUint16(buf, lmLen)
	writeUint32(buf, lmOffset)

	writeUint16(buf, ntLen)
	writeUint16(buf, ntLen)
	writeUint32(buf, ntOffset)

	writeUint16(buf, domLen)
	writeUint16(buf, domLen)
	writeUint32(buf, domOffset)

	writeUint16(buf, userLen)
	writeUint16(buf, userLen)
	writeUint32(buf, userOffset)

	writeUint16(buf, hostLen)
	writeUint16(buf, hostLen)
	writeUint32(buf, hostOffset)

	writeUint16(buf, 0) // session key len
	writeUint16(buf, 0)
	writeUint32(buf, sessOffset)

	writeUint32(buf, flagNegotiateUnicode|flagNegotiateNTLM)

	buf.Write(response) // NT response
	buf.Write(domainB)
	buf.Write(userB)
	buf.Write(hostB)

	return "NTLM " + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// ntlmHash is the MD4 digest of the UTF-16LE password, the NTLMv1 key.
func ntlmHash(password string) [16]byte {
	h := md4.New()
	h.Write(utf16le(password))
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ntlmResponse DES-encrypts the server challenge three times with keys
// derived from the 16-byte NT hash padded to 21 bytes, per NTLMv1.
func ntlmResponse(hash [16]byte, challenge [8]byte) []byte {
	var padded [21]byte
	copy(padded[:], hash[:])

	out := make([]byte, 24)
	copy(out[0:8], desEncrypt(padded[0:7], challenge))
	copy(out[8:16], desEncrypt(padded[7:14], challenge))
	copy(out[16:24], desEncrypt(padded[14:21], challenge))
	return out
}

func desEncrypt(key7 []byte, data [8]byte) []byte {
	key := expandDESKey(key7)
	block, err := des.NewCipher(key)
	if err != nil {
		return make([]byte, 8)
	}
	out := make([]byte, 8)
	block.Encrypt(out, data[:])
	return out
}

// expandDESKey expands a 7-byte key into the 8-byte form DES expects,
// spreading the 56 key bits over the high seven bits of each byte and
// leaving the low (parity) bit zero; crypto/des ignores parity bits and
// validates the key length only.
func expandDESKey(k7 []byte) []byte {
	var out [8]byte
	out[0] = k7[0]
	out[1] = (k7[0] << 7) | (k7[1] >> 1)
	out[2] = (k7[1] << 6) | (k7[2] >> 2)
	out[3] = (k7[2] << 5) | (k7[3] >> 3)
	out[4] = (k7[3] << 4) | (k7[4] >> 4)
	out[5] = (k7[4] << 3) | (k7[5] >> 5)
	out[6] = (k7[5] << 2) | (k7[6] >> 6)
	out[7] = k7[6] << 1
	return out[:]
}

func utf16le(s string) []byte {
	buf := new(bytes.Buffer)
	for _, r := range s {
		if r > 0xFFFF {
			r = '?'
		}
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(r))
		buf.Write(b[:])
	}
	return buf.Bytes()
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

