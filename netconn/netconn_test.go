package netconn

import (
	"bytes"
	"testing"
	"time"

	"github.com/vortigont/FTPClientServer/ftp"
)

// waitFor polls a non-blocking probe until it reports true or the deadline
// passes.
func waitFor(t *testing.T, what string, probe func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if probe() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func listenAndDial(t *testing.T) (server, client ftp.Conn) {
	t.Helper()
	network := &Network{}

	listener, err := network.Listen(0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	client, err = network.Dial("127.0.0.1", listener.Addr().Port())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	waitFor(t, "inbound connection", listener.HasClient)
	server, err = listener.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

func TestHasClientWithoutConnection(t *testing.T) {
	network := &Network{}
	listener, err := network.Listen(0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	// must return immediately, not block on accept
	began := time.Now()
	if listener.HasClient() {
		t.Error("HasClient true on empty backlog")
	}
	if elapsed := time.Since(began); elapsed > time.Second {
		t.Errorf("HasClient took %v", elapsed)
	}
}

func TestDialRefused(t *testing.T) {
	network := &Network{DialTimeout: time.Second}
	// bind and immediately close to get a known-dead port
	listener, err := network.Listen(0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := listener.Addr().Port()
	listener.Close()

	if _, err := network.Dial("127.0.0.1", port); err == nil {
		t.Error("Dial to a closed port succeeded")
	}
}

func TestReadNeverBlocks(t *testing.T) {
	server, client := listenAndDial(t)

	if n := server.Available(); n != 0 {
		t.Errorf("Available = %d on idle connection", n)
	}
	var buf [16]byte
	began := time.Now()
	n, err := server.Read(buf[:])
	if n != 0 || err != nil {
		t.Errorf("idle Read = %d, %v", n, err)
	}
	if elapsed := time.Since(began); elapsed > time.Second {
		t.Errorf("idle Read took %v", elapsed)
	}

	payload := []byte("ping")
	if _, err := client.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitFor(t, "bytes to arrive", func() bool { return server.Available() > 0 })
	n, err = server.Read(buf[:])
	if err != nil || !bytes.Equal(buf[:n], payload) {
		t.Errorf("Read = %q, %v", buf[:n], err)
	}
}

func TestConnectedLatchesAfterPeerClose(t *testing.T) {
	server, client := listenAndDial(t)

	if !server.Connected() || !client.Connected() {
		t.Fatal("fresh connection not connected")
	}

	// bytes sent just before the close must still be readable
	client.Write([]byte("bye"))
	client.Close()

	waitFor(t, "close to propagate", func() bool { return server.Available() > 0 })
	var buf [16]byte
	n, _ := server.Read(buf[:])
	if string(buf[:n]) != "bye" {
		t.Errorf("final bytes %q", buf[:n])
	}
	waitFor(t, "disconnect detection", func() bool { return !server.Connected() })
	if server.Connected() {
		t.Error("Connected did not latch false")
	}
}

func TestLargeTransfer(t *testing.T) {
	server, client := listenAndDial(t)

	payload := bytes.Repeat([]byte("0123456789abcdef"), 4096) // 64 KiB
	go func() {
		client.Write(payload)
		client.Close()
	}()

	var got bytes.Buffer
	var buf [1460]byte
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if server.Available() > 0 {
			n, _ := server.Read(buf[:])
			got.Write(buf[:n])
			continue
		}
		if !server.Connected() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !bytes.Equal(got.Bytes(), payload) {
		t.Errorf("received %d bytes, want %d", got.Len(), len(payload))
	}
}
