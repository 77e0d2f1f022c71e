// Package transport implements the encrypted, mutually authenticated
// connection spec.md §6 requires: a net.Conn wrapped in NaCl box sealing,
// keyed by each side's long-term Curve25519 encryption certificate instead
// of a fresh per-connection keypair, with a precomputed shared key used for
// every subsequent frame.
//
// Grounded on original_source/src/clockd.c's transport setup: the server
// sets ZMQ_CURVE_SECRETKEY to its own certificate's permanent secret key
// (`zmq_setsockopt(s->listener, ZMQ_CURVE_SECRETKEY, cert_secret(s->cert),
// 32)`) rather than generating an ephemeral one, and a ZAP handler
// (`zap_startup(s->zmq, s->tdb)`) authenticates the peer's permanent public
// key against the trust database as part of the same handshake. Re-based
// from CurveZMQ onto golang.org/x/crypto/nacl/box: each side exchanges its
// certificate's identity and public key, the shared key is precomputed from
// the local secret key and peer public key exactly as CURVE does, and the
// caller (pkg/server) consults pkg/security.TrustDB with the exchanged
// identity/pubkey before accepting any frame — the Go equivalent of ZAP
// running inline with the handshake rather than as a separate broker.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"golang.org/x/crypto/nacl/box"

	"github.com/clockwork-org/clockd/pkg/security"
)

// MaxFrameSize bounds a single encrypted frame's ciphertext length,
// guarding against a peer sending an unbounded length prefix.
const MaxFrameSize = 16 << 20

// maxIdentityLen bounds a handshake identity string, guarding against a
// corrupt or hostile length prefix forcing an unbounded allocation.
const maxIdentityLen = 4096

// role distinguishes which side of the connection a Conn is, so the two
// directions never reuse a nonce value under the same precomputed key.
type role byte

const (
	roleClient role = 0
	roleServer role = 1
)

// Conn is an encrypted connection wrapping a net.Conn, keyed from the local
// and peer certificates exchanged during Handshake. All reads and writes
// operate on whole messages, not byte streams. Conn carries the peer's
// claimed identity and public key but does not itself consult any trust
// database — Handshake performs the key exchange; the caller decides
// whether to trust what came back.
type Conn struct {
	raw    net.Conn
	shared [32]byte
	role   role
	sendCt uint64
	recvCt uint64

	peerIdentity string
	peerPub      [32]byte
}

// PeerIdentity is the identity string the remote side presented during the
// handshake, unverified until the caller checks it against a TrustDB.
func (c *Conn) PeerIdentity() string { return c.peerIdentity }

// PeerPublicKey is the 32-byte Curve25519 public key the remote side
// presented during the handshake.
func (c *Conn) PeerPublicKey() []byte {
	return append([]byte(nil), c.peerPub[:]...)
}

// Handshake exchanges identity and public key with the peer over raw using
// local's long-term encryption keypair, and precomputes a shared key from
// local's secret key and the peer's public key. isServer selects which side
// of the exchange this call plays; both sides must agree. Handshake itself
// does not authenticate the peer — the caller must check the returned
// Conn's PeerIdentity/PeerPublicKey against a security.TrustDB before
// trusting anything read from it.
func Handshake(raw net.Conn, isServer bool, local *security.Cert) (*Conn, error) {
	if len(local.Pub) != 32 || len(local.Sec) != 32 {
		return nil, fmt.Errorf("local certificate is not a valid encryption keypair")
	}
	var localSec [32]byte
	copy(localSec[:], local.Sec)

	var (
		peerIdentity string
		peerPub      *[32]byte
		err          error
	)
	if isServer {
		peerIdentity, peerPub, err = recvIdentity(raw)
		if err != nil {
			return nil, err
		}
		if err := sendIdentity(raw, local); err != nil {
			return nil, err
		}
	} else {
		if err := sendIdentity(raw, local); err != nil {
			return nil, err
		}
		peerIdentity, peerPub, err = recvIdentity(raw)
		if err != nil {
			return nil, err
		}
	}

	c := &Conn{raw: raw, role: roleClient, peerIdentity: peerIdentity, peerPub: *peerPub}
	if isServer {
		c.role = roleServer
	}
	box.Precompute(&c.shared, peerPub, &localSec)
	return c, nil
}

// sendIdentity writes cert's identity (length-prefixed) followed by its
// 32-byte public key.
func sendIdentity(w io.Writer, cert *security.Cert) error {
	idBytes := []byte(cert.Identity)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(idBytes)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("writing handshake identity length: %w", err)
	}
	if _, err := w.Write(idBytes); err != nil {
		return fmt.Errorf("writing handshake identity: %w", err)
	}
	if _, err := w.Write(cert.Pub); err != nil {
		return fmt.Errorf("writing handshake public key: %w", err)
	}
	return nil
}

// recvIdentity reads an identity and public key written by sendIdentity.
func recvIdentity(r io.Reader) (string, *[32]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", nil, fmt.Errorf("reading handshake identity length: %w", err)
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	if int(n) > maxIdentityLen {
		return "", nil, fmt.Errorf("handshake identity too long (%d bytes)", n)
	}
	idBytes := make([]byte, n)
	if _, err := io.ReadFull(r, idBytes); err != nil {
		return "", nil, fmt.Errorf("reading handshake identity: %w", err)
	}
	var pub [32]byte
	if _, err := io.ReadFull(r, pub[:]); err != nil {
		return "", nil, fmt.Errorf("reading handshake public key: %w", err)
	}
	return string(idBytes), &pub, nil
}

// nonce builds a 24-byte NaCl nonce from a monotonic counter and this
// Conn's role, so the two directions never collide under the shared key.
func nonce(counter uint64, r role) [24]byte {
	var n [24]byte
	binary.BigEndian.PutUint64(n[:8], counter)
	n[23] = byte(r)
	return n
}

// WriteMessage seals plaintext and writes it as a length-prefixed frame.
func (c *Conn) WriteMessage(plaintext []byte) error {
	n := nonce(c.sendCt, c.role)
	c.sendCt++

	sealed := box.SealAfterPrecomputation(nil, plaintext, &n, &c.shared)
	if len(sealed) > MaxFrameSize {
		return fmt.Errorf("outgoing frame too large (%d bytes)", len(sealed))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sealed)))
	if _, err := c.raw.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := c.raw.Write(sealed); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

// peerRole is the role the other side of this Conn uses for its nonces.
func (c *Conn) peerRole() role {
	if c.role == roleClient {
		return roleServer
	}
	return roleClient
}

// ReadMessage reads one length-prefixed frame and opens it.
func (c *Conn) ReadMessage() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.raw, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("reading frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("incoming frame too large (%d bytes)", n)
	}
	sealed := make([]byte, n)
	if _, err := io.ReadFull(c.raw, sealed); err != nil {
		return nil, fmt.Errorf("reading frame body: %w", err)
	}

	nonceVal := nonce(c.recvCt, c.peerRole())
	c.recvCt++
	plaintext, ok := box.OpenAfterPrecomputation(nil, sealed, &nonceVal, &c.shared)
	if !ok {
		return nil, fmt.Errorf("frame authentication failed")
	}
	return plaintext, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.raw.Close() }

// RemoteAddr delegates to the underlying connection.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }
