package codegen

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Magic identifies a clockd bytecode image.
var Magic = [4]byte{'C', 'L', 'K', 'B'}

const formatVersion uint16 = 1

// Flag bits in an Image header.
const (
	FlagDebugSymbols uint16 = 1 << 0
)

// Image is the assembled, wire-ready form of a resource policy: a fixed
// header, a deduplicated string table, a code segment, and an optional
// debug symbol table (stripped by default for network transfer, per
// spec.md §4.3).
type Image struct {
	Version uint16
	Flags   uint16
	Strings []string
	Code    []byte
	// Debug maps a label name to its byte offset within Code. Populated
	// only when assembled with IncludeDebug.
	Debug map[string]uint32
}

// opcode byte values used in the encoded Code segment.
const (
	byteLabel    byte = 1
	byteResource byte = 2
	byteAttr     byte = 3
	byteEnd      byte = 4
)

func instrByteOp(op InstrOp) (byte, error) {
	switch op {
	case OpLabel:
		return byteLabel, nil
	case OpResource:
		return byteResource, nil
	case OpAttr:
		return byteAttr, nil
	case OpEnd:
		return byteEnd, nil
	default:
		return 0, fmt.Errorf("unknown opcode during emit: %s", op)
	}
}

// Assemble consumes instrs and produces a binary Image. When includeDebug is
// true, the label->offset table is retained; otherwise Debug is nil and the
// FlagDebugSymbols bit is clear.
func Assemble(instrs []Instruction, includeDebug bool) (*Image, error) {
	strIndex := make(map[string]uint32)
	var strs []string
	intern := func(s string) uint32 {
		if idx, ok := strIndex[s]; ok {
			return idx
		}
		idx := uint32(len(strs))
		strIndex[s] = idx
		strs = append(strs, s)
		return idx
	}

	definedLabels := make(map[string]bool)
	for _, in := range instrs {
		if in.Op == OpLabel {
			definedLabels[in.Args[0]] = true
		}
	}

	var code bytes.Buffer
	debug := make(map[string]uint32)
	for _, in := range instrs {
		opByte, err := instrByteOp(in.Op)
		if err != nil {
			return nil, err
		}
		if in.Op == OpLabel {
			debug[in.Args[0]] = uint32(code.Len())
		}
		code.WriteByte(opByte)
		code.WriteByte(byte(len(in.Args)))
		for _, a := range in.Args {
			idx := intern(a)
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], idx)
			code.Write(buf[:])
		}
	}

	// Every label a resource's RESOURCE instruction might reference (today,
	// codegen only ever emits a label immediately before its own resource,
	// but a dangling cross-reference would be an assembler bug) must
	// resolve within this image.
	for _, in := range instrs {
		if in.Op == OpResource && len(in.Args) > 1 && !definedLabels[in.Args[1]] {
			return nil, fmt.Errorf("assembler: reference to undefined label %q", in.Args[1])
		}
	}

	img := &Image{
		Version: formatVersion,
		Strings: strs,
		Code:    code.Bytes(),
	}
	if includeDebug {
		img.Flags |= FlagDebugSymbols
		img.Debug = debug
	}
	return img, nil
}

// Write serializes img in its wire format: magic, version, flags, string
// table, code segment, optional debug symbols.
func (img *Image) Write(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, Magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, img.Version); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, img.Flags); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(img.Strings))); err != nil {
		return err
	}
	for _, s := range img.Strings {
		if len(s) > 0xFFFF {
			return fmt.Errorf("string table entry too long (%d bytes)", len(s))
		}
		if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(img.Code))); err != nil {
		return err
	}
	if _, err := w.Write(img.Code); err != nil {
		return err
	}

	if img.Flags&FlagDebugSymbols == 0 {
		return nil
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(img.Debug))); err != nil {
		return err
	}
	for label, offset := range img.Debug {
		if len(label) > 0xFFFF {
			return fmt.Errorf("debug label too long (%d bytes)", len(label))
		}
		if err := binary.Write(w, binary.BigEndian, uint16(len(label))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, label); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, offset); err != nil {
			return err
		}
	}
	return nil
}

// ReadImage deserializes an Image previously produced by Write.
func ReadImage(r io.Reader) (*Image, error) {
	var magic [4]byte
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, fmt.Errorf("bad image magic %q", magic)
	}
	img := &Image{}
	if err := binary.Read(r, binary.BigEndian, &img.Version); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &img.Flags); err != nil {
		return nil, err
	}

	var strCount uint32
	if err := binary.Read(r, binary.BigEndian, &strCount); err != nil {
		return nil, err
	}
	img.Strings = make([]string, strCount)
	for i := range img.Strings {
		var slen uint16
		if err := binary.Read(r, binary.BigEndian, &slen); err != nil {
			return nil, err
		}
		buf := make([]byte, slen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		img.Strings[i] = string(buf)
	}

	var codeLen uint32
	if err := binary.Read(r, binary.BigEndian, &codeLen); err != nil {
		return nil, err
	}
	img.Code = make([]byte, codeLen)
	if _, err := io.ReadFull(r, img.Code); err != nil {
		return nil, err
	}

	if img.Flags&FlagDebugSymbols == 0 {
		return img, nil
	}
	var debugCount uint32
	if err := binary.Read(r, binary.BigEndian, &debugCount); err != nil {
		return nil, err
	}
	img.Debug = make(map[string]uint32, debugCount)
	for i := uint32(0); i < debugCount; i++ {
		var llen uint16
		if err := binary.Read(r, binary.BigEndian, &llen); err != nil {
			return nil, err
		}
		buf := make([]byte, llen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		var offset uint32
		if err := binary.Read(r, binary.BigEndian, &offset); err != nil {
			return nil, err
		}
		img.Debug[string(buf)] = offset
	}
	return img, nil
}
