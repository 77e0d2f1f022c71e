package transport

import (
	"net"
	"testing"

	"github.com/clockwork-org/clockd/pkg/security"
)

func genCert(t *testing.T, identity string) *security.Cert {
	t.Helper()
	cert, err := security.GenerateEncryption(identity)
	if err != nil {
		t.Fatalf("generate encryption cert: %v", err)
	}
	return cert
}

func TestHandshakeAndMessageRoundTrip(t *testing.T) {
	serverRaw, clientRaw := net.Pipe()
	defer serverRaw.Close()
	defer clientRaw.Close()

	serverCert := genCert(t, "clockd")
	clientCert := genCert(t, "web01")

	type result struct {
		conn *Conn
		err  error
	}
	serverCh := make(chan result, 1)
	go func() {
		c, err := Handshake(serverRaw, true, serverCert)
		serverCh <- result{c, err}
	}()

	clientConn, err := Handshake(clientRaw, false, clientCert)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	srvRes := <-serverCh
	if srvRes.err != nil {
		t.Fatalf("server handshake: %v", srvRes.err)
	}
	serverConn := srvRes.conn

	if serverConn.PeerIdentity() != "web01" {
		t.Fatalf("expected server to see client identity web01, got %q", serverConn.PeerIdentity())
	}
	if clientConn.PeerIdentity() != "clockd" {
		t.Fatalf("expected client to see server identity clockd, got %q", clientConn.PeerIdentity())
	}

	done := make(chan error, 1)
	go func() {
		done <- clientConn.WriteMessage([]byte("HELLO\x00web01"))
	}()
	msg, err := serverConn.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("client write: %v", err)
	}
	if string(msg) != "HELLO\x00web01" {
		t.Fatalf("got %q", msg)
	}

	done2 := make(chan error, 1)
	go func() {
		done2 <- serverConn.WriteMessage([]byte("OK"))
	}()
	reply, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if err := <-done2; err != nil {
		t.Fatalf("server write: %v", err)
	}
	if string(reply) != "OK" {
		t.Fatalf("got %q", reply)
	}
}

func TestMultipleMessagesUseDistinctNonces(t *testing.T) {
	serverRaw, clientRaw := net.Pipe()
	defer serverRaw.Close()
	defer clientRaw.Close()

	serverCert := genCert(t, "clockd")
	clientCert := genCert(t, "web01")

	serverCh := make(chan *Conn, 1)
	go func() {
		c, err := Handshake(serverRaw, true, serverCert)
		if err != nil {
			t.Errorf("server handshake: %v", err)
			serverCh <- nil
			return
		}
		serverCh <- c
	}()
	clientConn, err := Handshake(clientRaw, false, clientCert)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	serverConn := <-serverCh
	if serverConn == nil {
		t.Fatal("server handshake failed")
	}

	for i := 0; i < 3; i++ {
		done := make(chan error, 1)
		go func() { done <- clientConn.WriteMessage([]byte("PING")) }()
		msg, err := serverConn.ReadMessage()
		if err != nil {
			t.Fatalf("round %d: server read: %v", i, err)
		}
		if err := <-done; err != nil {
			t.Fatalf("round %d: client write: %v", i, err)
		}
		if string(msg) != "PING" {
			t.Fatalf("round %d: got %q", i, msg)
		}
	}
}

func TestPeerPublicKeyMatchesCertPub(t *testing.T) {
	serverRaw, clientRaw := net.Pipe()
	defer serverRaw.Close()
	defer clientRaw.Close()

	serverCert := genCert(t, "clockd")
	clientCert := genCert(t, "web01")

	serverCh := make(chan *Conn, 1)
	go func() {
		c, _ := Handshake(serverRaw, true, serverCert)
		serverCh <- c
	}()
	clientConn, err := Handshake(clientRaw, false, clientCert)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	serverConn := <-serverCh

	if string(serverConn.PeerPublicKey()) != string(clientCert.Pub) {
		t.Fatal("expected server-observed peer public key to match the client cert's public key")
	}
}
