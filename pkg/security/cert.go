// Package security implements spec.md §4.8's Certificate & Trust subsystem:
// Ed25519 signing certs, Curve25519 encryption certs, a flat-file trust
// database, and NaCl-based sealing/verification.
//
// Grounded on the teacher's pkg/security/certs.go (file layout and
// permission conventions: 0600/0400/0444, directory-per-identity) and
// secrets.go (AEAD envelope shape), re-keyed from RSA/x509 and AES-GCM to
// Ed25519/Curve25519 since spec.md §4.8 specifies those algorithms
// explicitly.
package security

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/curve25519"
)

// Kind distinguishes the two certificate flavors spec.md §4.8 describes.
type Kind string

const (
	KindSigning    Kind = "signing"
	KindEncryption Kind = "encryption"
)

func (k Kind) tag() string {
	switch k {
	case KindSigning:
		return "%signing v1"
	case KindEncryption:
		return "%encryption v1"
	default:
		return ""
	}
}

// Cert is one signing or encryption certificate: an identity string plus a
// public key and (optionally) a secret key, both kept in binary form. Hex
// is only a file-encoding detail, reconciled on read/write rather than
// cached on the struct (spec.md §2: "any programmatic edit to a hex field
// is reconciled by a rescan step" — here there's no separate hex field to
// go stale, so the rescan step collapses to "there is nothing to desync").
type Cert struct {
	Kind     Kind
	Identity string
	Pub      []byte
	Sec      []byte // nil for a public-only cert
}

// GenerateSigning creates a new Ed25519 signing cert for identity.
func GenerateSigning(identity string) (*Cert, error) {
	pub, sec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating signing keypair: %w", err)
	}
	return &Cert{Kind: KindSigning, Identity: identity, Pub: pub, Sec: sec}, nil
}

// GenerateEncryption creates a new Curve25519 encryption cert for identity.
func GenerateEncryption(identity string) (*Cert, error) {
	var sec [32]byte
	if _, err := rand.Read(sec[:]); err != nil {
		return nil, fmt.Errorf("generating encryption secret: %w", err)
	}
	pub, err := curve25519.X25519(sec[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("deriving encryption public key: %w", err)
	}
	return &Cert{Kind: KindEncryption, Identity: identity, Pub: pub, Sec: sec[:]}, nil
}

// Public returns a copy of c with its secret key dropped, suitable for
// distribution.
func (c *Cert) Public() *Cert {
	return &Cert{Kind: c.Kind, Identity: c.Identity, Pub: append([]byte(nil), c.Pub...)}
}

// WriteFile writes c to path in the keyed-value text format spec.md §4.8
// describes. A "full" write (c.Sec != nil) uses 0400 permissions; a
// public-only write uses 0444.
func (c *Cert) WriteFile(path string) error {
	var sb strings.Builder
	sb.WriteString(c.Kind.tag())
	sb.WriteByte('\n')
	sb.WriteString("id " + c.Identity + "\n")
	sb.WriteString("pub " + hex.EncodeToString(c.Pub) + "\n")
	perm := os.FileMode(0444)
	if c.Sec != nil {
		sb.WriteString("sec " + hex.EncodeToString(c.Sec) + "\n")
		perm = 0400
	}
	if err := os.WriteFile(path, []byte(sb.String()), perm); err != nil {
		return fmt.Errorf("writing cert %s: %w", path, err)
	}
	return nil
}

// ReadCertFile parses a certificate file written by WriteFile. Reading is
// lenient to trailing whitespace on each line (spec.md §4.8).
func ReadCertFile(path string) (*Cert, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cert %s: %w", path, err)
	}
	defer f.Close()

	c := &Cert{}
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r\n")
		if line == "" {
			continue
		}
		if first {
			switch line {
			case KindSigning.tag():
				c.Kind = KindSigning
			case KindEncryption.tag():
				c.Kind = KindEncryption
			default:
				return nil, fmt.Errorf("cert %s: unrecognized type tag %q", path, line)
			}
			first = false
			continue
		}
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("cert %s: malformed line %q", path, line)
		}
		switch key {
		case "id":
			c.Identity = val
		case "pub":
			b, err := hex.DecodeString(val)
			if err != nil {
				return nil, fmt.Errorf("cert %s: bad pub hex: %w", path, err)
			}
			c.Pub = b
		case "sec":
			b, err := hex.DecodeString(val)
			if err != nil {
				return nil, fmt.Errorf("cert %s: bad sec hex: %w", path, err)
			}
			c.Sec = b
		default:
			return nil, fmt.Errorf("cert %s: unrecognized field %q", path, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading cert %s: %w", path, err)
	}
	if first {
		return nil, fmt.Errorf("cert %s: empty file", path)
	}
	return c, nil
}
