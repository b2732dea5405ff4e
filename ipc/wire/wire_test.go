package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize)
	Header{Size: 42, ID: MsgNewMessage, Error: 0, Reserved: 7}.Encode(buf)

	h, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(42), h.Size)
	require.Equal(t, MsgNewMessage, h.ID)
	require.Equal(t, uint32(7), h.Reserved)
}

func TestDecodeHeaderTooShort(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 4))
	require.Error(t, err)
}

func TestSetupRequestRoundTrip(t *testing.T) {
	buf := SetupRequest{MaxMsgSize: 65536}.Encode()
	require.Len(t, buf, SetupRequestSize)

	req, err := DecodeSetupRequest(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(65536), req.MaxMsgSize)
}

func TestDecodeSetupRequestWrongID(t *testing.T) {
	buf := make([]byte, SetupRequestSize)
	Header{Size: 24, ID: MsgDisconnect}.Encode(buf)
	_, err := DecodeSetupRequest(buf)
	require.Error(t, err)
}

func TestSetupResponseRoundTrip(t *testing.T) {
	resp := SetupResponse{ConnectionCookie: 0xdeadbeef, Transport: TransportShm, MaxMsgSize: 4096}
	buf := resp.Encode()
	buf = append(buf, []byte("request\x00response\x00event\x00")...)

	got, rest, err := DecodeSetupResponse(buf)
	require.NoError(t, err)
	require.Equal(t, resp.ConnectionCookie, got.ConnectionCookie)
	require.Equal(t, TransportShm, got.Transport)
	require.Equal(t, uint32(4096), got.MaxMsgSize)
	require.Equal(t, "request\x00response\x00event\x00", string(rest))
}

func TestNamesRoundTrip(t *testing.T) {
	buf := EncodeNames("request", "response", "event")
	names, err := DecodeNames(buf, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"request", "response", "event"}, names)
}

func TestDecodeNamesTooShort(t *testing.T) {
	_, err := DecodeNames([]byte{1, 0, 0}, 1)
	require.Error(t, err)
}
