package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startUDPListener binds an ephemeral UDP port and returns received lines.
func startUDPListener(t *testing.T) (string, <-chan string) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	lines := make(chan string, 16)
	go func() {
		buf := make([]byte, 1024)
		for {
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			lines <- string(buf[:n])
		}
	}()
	return conn.LocalAddr().String(), lines
}

func recvLine(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line := <-lines:
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a statsd line")
		return ""
	}
}

func TestClientCount(t *testing.T) {
	addr, lines := startUDPListener(t)
	client, err := NewClient(Config{Enabled: true, Address: addr, Prefix: "gatehouse."})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	client.Count("intake.accepted", 2, map[string]string{"action": "send_summary"})
	assert.Equal(t, "gatehouse.intake.accepted:2|c|#action:send_summary", recvLine(t, lines))
}

func TestClientTiming(t *testing.T) {
	addr, lines := startUDPListener(t)
	client, err := NewClient(Config{Enabled: true, Address: addr})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	client.Timing("sequencer.job_duration", 1500*time.Millisecond, nil)
	assert.Equal(t, "sequencer.job_duration:1500|ms", recvLine(t, lines))
}

func TestClientTagsSorted(t *testing.T) {
	addr, lines := startUDPListener(t)
	client, err := NewClient(Config{Enabled: true, Address: addr})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	client.Count("m", 1, map[string]string{"b": "2", "a": "1", "c": "3"})
	assert.Equal(t, "m:1|c|#a:1,b:2,c:3", recvLine(t, lines))
}

func TestClientDisabledIsNoop(t *testing.T) {
	client := Disabled()
	client.Count("m", 1, nil)
	client.Timing("m", time.Second, nil)
	assert.NoError(t, client.Close())

	var nilClient *Client
	nilClient.Count("m", 1, nil)
	assert.NoError(t, nilClient.Close())
}

func TestClientEmptyAddressDisables(t *testing.T) {
	client, err := NewClient(Config{Enabled: true, Address: "  "})
	require.NoError(t, err)
	client.Count("m", 1, nil)
	assert.NoError(t, client.Close())
}

func TestMetricNameTrimming(t *testing.T) {
	c := &Client{prefix: "gatehouse"}
	assert.Equal(t, "gatehouse.intake.accepted", c.metricName(".intake.accepted."))
	assert.Equal(t, "", c.metricName(" . "))

	bare := &Client{}
	assert.Equal(t, "intake.accepted", bare.metricName("intake.accepted"))
}
