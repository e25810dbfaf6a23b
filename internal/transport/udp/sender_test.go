// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fractalwave/internal/transport"
)

func TestSenderDeliversPacket(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	sender, err := NewUDPSender(listener.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	sent := transport.Frame{Seq: 42, Timestamp: time.Now().UnixNano(), Bands: []float32{0, 0.5, 1, 123.25}}
	require.NoError(t, sender.Send(sent))

	buf := make([]byte, 1500)
	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+4*len(sent.Bands), n)

	got, err := ParsePacket(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}

func TestSenderClosed(t *testing.T) {
	sender, err := NewUDPSender("127.0.0.1:9")
	require.NoError(t, err)
	require.NoError(t, sender.Close())
	require.NoError(t, sender.Close())
	assert.ErrorIs(t, sender.Send(transport.Frame{}), transport.ErrClosed)
}

func TestNewSenderBadAddress(t *testing.T) {
	_, err := NewUDPSender("not an address")
	assert.Error(t, err)
}

func TestPacketLayout(t *testing.T) {
	packet, err := AppendPacket(nil, transport.Frame{Seq: 1, Timestamp: 2, Bands: []float32{1}})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0, 0, 0, 1, // seq
		0, 0, 0, 0, 0, 0, 0, 2, // timestamp
		0, 1, // count
		0x3f, 0x80, 0, 0, // 1.0
	}, packet)
}

func TestParsePacketShort(t *testing.T) {
	_, err := ParsePacket([]byte{1, 2, 3})
	assert.True(t, errors.Is(err, ErrShortPacket))

	packet, _ := AppendPacket(nil, transport.Frame{Bands: []float32{1, 2}})
	_, err = ParsePacket(packet[:len(packet)-1])
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestAppendPacketTooManyBands(t *testing.T) {
	_, err := AppendPacket(nil, transport.Frame{Bands: make([]float32, MaxBands+1)})
	assert.Error(t, err)
}
