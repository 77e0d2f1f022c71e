// Package protocol implements spec.md §4.6's per-session request/response
// state machine: event dispatch, reply generation, and the wire frame
// encoding carried over pkg/transport.
//
// Grounded on original_source/src/policyd.c's dispatch-by-opcode loop (one
// function per PDU type, session state checked before acting) and the
// teacher's handler-table style, rewired around this module's own
// evaluator/codegen/content packages instead of the original's direct
// manager calls.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Frame is one decoded wire message: a type tag plus a list of string
// arguments. spec.md §6 describes the field separator as NUL, but a BLOCK
// reply's argument is raw file content, which may itself contain a NUL
// byte — a NUL-delimited encoding can't tell a content byte from a field
// separator apart and silently truncates binary files. Each field (type,
// then every arg) is instead carried as a 4-byte big-endian length
// followed by that many raw bytes, so arbitrary binary content round
// trips exactly regardless of what bytes it contains.
type Frame struct {
	Type string
	Args []string
}

// maxFieldSize bounds a single field's declared length, guarding against a
// corrupt or hostile length prefix forcing an unbounded allocation.
const maxFieldSize = 64 << 20

// Frame/reply type tags.
const (
	TypePing     = "PING"
	TypeHello    = "HELLO"
	TypeCopydown = "COPYDOWN"
	TypePolicy   = "POLICY"
	TypeFile     = "FILE"
	TypeData     = "DATA"
	TypeReport   = "REPORT"
	TypeBye      = "BYE"
	TypeOK       = "OK"
	TypePong     = "PONG"
	TypeSHA1     = "SHA1"
	TypeSHA1Fail = "SHA1.FAIL"
	TypeBlock    = "BLOCK"
	TypeEOF      = "EOF"
	TypeError    = "ERROR"
)

// Encode serializes f as a sequence of length-prefixed fields: the type,
// then each argument, every one preceded by its length as a 4-byte
// big-endian integer.
func (f Frame) Encode() []byte {
	size := 0
	fields := make([][]byte, 0, len(f.Args)+1)
	fields = append(fields, []byte(f.Type))
	for _, a := range f.Args {
		fields = append(fields, []byte(a))
	}
	for _, field := range fields {
		size += 4 + len(field)
	}

	buf := make([]byte, 0, size)
	for _, field := range fields {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, field...)
	}
	return buf
}

// DecodeFrame parses a raw message produced by Encode.
func DecodeFrame(data []byte) (Frame, error) {
	var fields []string
	for len(data) > 0 {
		if len(data) < 4 {
			return Frame{}, fmt.Errorf("malformed frame: truncated length prefix")
		}
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if n > maxFieldSize {
			return Frame{}, fmt.Errorf("malformed frame: field length %d exceeds maximum", n)
		}
		if uint64(n) > uint64(len(data)) {
			return Frame{}, fmt.Errorf("malformed frame: field length %d exceeds remaining data", n)
		}
		fields = append(fields, string(data[:n]))
		data = data[n:]
	}
	if len(fields) == 0 {
		return Frame{}, fmt.Errorf("malformed frame: empty")
	}
	return Frame{Type: fields[0], Args: fields[1:]}, nil
}

// Reply constructors: small helpers so call sites read like the table in
// spec.md §4.6 rather than hand-building Frame literals everywhere.

func replyOK() Frame               { return Frame{Type: TypeOK} }
func replyPong(version string) Frame { return Frame{Type: TypePong, Args: []string{version}} }
func replyPolicy(bytecode []byte) Frame {
	return Frame{Type: TypePolicy, Args: []string{string(bytecode)}}
}
func replySHA1(hexDigest string) Frame { return Frame{Type: TypeSHA1, Args: []string{hexDigest}} }
func replySHA1Fail(errno string) Frame {
	return Frame{Type: TypeSHA1Fail, Args: []string{errno}}
}
func replyBlock(b []byte) Frame { return Frame{Type: TypeBlock, Args: []string{string(b)}} }
func replyEOF() Frame           { return Frame{Type: TypeEOF} }
func replyError(msg string) Frame { return Frame{Type: TypeError, Args: []string{msg}} }
func replyBye() Frame             { return Frame{Type: TypeBye} }
