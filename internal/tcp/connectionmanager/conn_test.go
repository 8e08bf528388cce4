package connectionmanager

import (
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/proxygrid.net/internal/tcp/defs"
)

func TestFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	body, err := json.Marshal(defs.WorkerRegistrationData{
		WorkerID: "worker-test-1",
		Capacity: 20,
		Hostname: "host-a",
		Version:  "1.0.0",
	})
	require.NoError(t, err)

	go func() {
		_ = SendMessage(client, defs.MsgWorkerRegister, body)
	}()

	msgType, payload, err := ReadMessage(server)
	require.NoError(t, err)
	assert.Equal(t, byte(defs.MsgWorkerRegister), msgType)

	var got defs.WorkerRegistrationData
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "worker-test-1", got.WorkerID)
	assert.Equal(t, 20, got.Capacity)
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_ = SendMessage(client, defs.MsgNoJob, nil)
	}()

	msgType, payload, err := ReadMessage(server)
	require.NoError(t, err)
	assert.Equal(t, byte(defs.MsgNoJob), msgType)
	assert.Empty(t, payload)
}

func TestReadMessageRejectsBadMagic(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	header := make([]byte, 8)
	binary.BigEndian.PutUint16(header[0:2], 0xDEAD)
	header[2] = defs.MsgAck
	header[3] = defs.ProtocolVersion

	go func() {
		_, _ = client.Write(header)
	}()

	_, _, err := ReadMessage(server)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid magic number")
}

func TestReadMessageRejectsWrongVersion(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	header := make([]byte, 8)
	binary.BigEndian.PutUint16(header[0:2], defs.MagicNumber)
	header[2] = defs.MsgAck
	header[3] = defs.ProtocolVersion + 1

	go func() {
		_, _ = client.Write(header)
	}()

	_, _, err := ReadMessage(server)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported protocol version")
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	header := make([]byte, 8)
	binary.BigEndian.PutUint16(header[0:2], defs.MagicNumber)
	header[2] = defs.MsgJobResult
	header[3] = defs.ProtocolVersion
	binary.BigEndian.PutUint32(header[4:8], defs.MaxPayloadBytes+1)

	go func() {
		_, _ = client.Write(header)
	}()

	_, _, err := ReadMessage(server)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload too large")
}
