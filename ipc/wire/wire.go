// File: ipc/wire/wire.go
// Package wire implements the on-the-wire message framing from
// spec.md §6.1: little-endian, naturally aligned, 16-byte common
// headers, plus the setup handshake's request/response bodies.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package wire

import (
	"encoding/binary"

	"github.com/loopmesh/qbipc/api"
)

// Reserved message ids (spec.md §6.1).
const (
	MsgAuthenticate uint32 = 1
	MsgNewMessage   uint32 = 2
	MsgDisconnect   uint32 = 3
	MsgUserStart    uint32 = 1000
)

// HeaderSize is the common request/response header's wire size.
const HeaderSize = 16

// Header is the common 16-byte request/response header: size, id,
// error, reserved, all u32 little-endian.
type Header struct {
	Size     uint32
	ID       uint32
	Error    uint32
	Reserved uint32
}

// Encode writes h into the first HeaderSize bytes of buf.
func (h Header) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Size)
	binary.LittleEndian.PutUint32(buf[4:8], h.ID)
	binary.LittleEndian.PutUint32(buf[8:12], h.Error)
	binary.LittleEndian.PutUint32(buf[12:16], h.Reserved)
}

// DecodeHeader parses a Header from buf's first HeaderSize bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, api.ErrBadMessage
	}
	return Header{
		Size:     binary.LittleEndian.Uint32(buf[0:4]),
		ID:       binary.LittleEndian.Uint32(buf[4:8]),
		Error:    binary.LittleEndian.Uint32(buf[8:12]),
		Reserved: binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// SetupRequestSize is the fixed size of the one-shot setup request
// (spec.md §6.1: "hdr{id=QB_IPC_MSG_AUTHENTICATE, size=24},
// max_msg_size (u32)").
const SetupRequestSize = HeaderSize + 4 + 4 // header + max_msg_size + pad to 24

// SetupRequest is the client's single setup-socket message.
type SetupRequest struct {
	MaxMsgSize uint32
}

// Encode writes the setup request into a SetupRequestSize buffer.
func (r SetupRequest) Encode() []byte {
	buf := make([]byte, SetupRequestSize)
	Header{Size: 24, ID: MsgAuthenticate}.Encode(buf)
	binary.LittleEndian.PutUint32(buf[HeaderSize:], r.MaxMsgSize)
	return buf
}

// DecodeSetupRequest parses a client setup request.
func DecodeSetupRequest(buf []byte) (SetupRequest, error) {
	if len(buf) < SetupRequestSize {
		return SetupRequest{}, api.ErrBadMessage
	}
	hdr, err := DecodeHeader(buf)
	if err != nil {
		return SetupRequest{}, err
	}
	if hdr.ID != MsgAuthenticate {
		return SetupRequest{}, api.ErrBadMessage
	}
	return SetupRequest{MaxMsgSize: binary.LittleEndian.Uint32(buf[HeaderSize:])}, nil
}

// TransportType selects the wire variant reported in a setup response.
type TransportType uint32

const (
	TransportShm TransportType = iota
	TransportSocket
)

// SetupResponse is the server's single setup-socket reply (spec.md
// §6.1): connection_cookie (u64), transport_type (u32), max_msg_size
// (u32), followed by transport-specific names (encoded separately by
// the transport variant, since their shape differs SHM vs US).
type SetupResponse struct {
	Error         uint32
	ConnectionCookie uint64
	Transport     TransportType
	MaxMsgSize    uint32
}

const setupResponseFixedSize = HeaderSize + 8 + 4 + 4

// Encode writes the fixed portion of the response; callers append
// transport-specific names after this prefix.
func (r SetupResponse) Encode() []byte {
	buf := make([]byte, setupResponseFixedSize)
	Header{Size: uint32(setupResponseFixedSize), ID: MsgAuthenticate, Error: r.Error}.Encode(buf)
	binary.LittleEndian.PutUint64(buf[HeaderSize:], r.ConnectionCookie)
	binary.LittleEndian.PutUint32(buf[HeaderSize+8:], uint32(r.Transport))
	binary.LittleEndian.PutUint32(buf[HeaderSize+12:], r.MaxMsgSize)
	return buf
}

// DecodeSetupResponse parses the fixed prefix of a setup response,
// returning the bytes remaining for transport-specific names.
func DecodeSetupResponse(buf []byte) (SetupResponse, []byte, error) {
	if len(buf) < setupResponseFixedSize {
		return SetupResponse{}, nil, api.ErrBadMessage
	}
	hdr, err := DecodeHeader(buf)
	if err != nil {
		return SetupResponse{}, nil, err
	}
	r := SetupResponse{
		Error:            hdr.Error,
		ConnectionCookie: binary.LittleEndian.Uint64(buf[HeaderSize:]),
		Transport:        TransportType(binary.LittleEndian.Uint32(buf[HeaderSize+8:])),
		MaxMsgSize:       binary.LittleEndian.Uint32(buf[HeaderSize+12:]),
	}
	return r, buf[setupResponseFixedSize:], nil
}

// EncodeNames appends length-prefixed transport-specific names after a
// setup response's fixed prefix (spec.md §6.1 "followed by
// transport-specific names"). A length-prefixed string stands in for
// the original's fixed NAME_MAX field, since Go has no natural
// fixed-char-array equivalent worth fabricating.
func EncodeNames(names ...string) []byte {
	var buf []byte
	for _, n := range names {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(n)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, n...)
	}
	return buf
}

// DecodeNames parses count length-prefixed names from buf.
func DecodeNames(buf []byte, count int) ([]string, error) {
	names := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if len(buf) < 4 {
			return nil, api.ErrBadMessage
		}
		n := binary.LittleEndian.Uint32(buf[:4])
		buf = buf[4:]
		if len(buf) < int(n) {
			return nil, api.ErrBadMessage
		}
		names = append(names, string(buf[:n]))
		buf = buf[n:]
	}
	return names, nil
}
