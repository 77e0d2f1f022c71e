// Package template implements spec.md §4.4's fact-substituting renderer:
// strictly string substitution, no loops or conditionals, failing only on
// I/O errors reading the template source.
//
// Token syntax (`${fact.name}`) is a fresh design choice — original_source/
// never defines a literal interpolation token, it only describes the
// manager/config-file machinery that consumes rendered output (see
// original_source/src/policyd.c, managers/package.c) — chosen for
// familiarity with shell-style parameter expansion.
package template

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/clockwork-org/clockd/pkg/fact"
)

// Render reads a template from r, substituting every `${name}` token with
// its value from facts (or the empty string, with name appended to warnings,
// if the fact is absent). Render only fails on a read error from r.
func Render(r io.Reader, facts *fact.Bundle) ([]byte, []string, error) {
	br := bufio.NewReader(r)
	var out bytes.Buffer
	var warnings []string

	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, warnings, fmt.Errorf("reading template: %w", err)
		}
		if b != '$' {
			out.WriteByte(b)
			continue
		}
		peek, err := br.Peek(1)
		if err != nil || len(peek) == 0 || peek[0] != '{' {
			out.WriteByte(b)
			continue
		}
		br.ReadByte() // consume '{'

		name, closed, err := readToken(br)
		if err != nil {
			return nil, warnings, fmt.Errorf("reading template: %w", err)
		}
		if !closed {
			// Unterminated token: emit literally, matching the input rather
			// than guessing at intent.
			out.WriteString("${" + name)
			continue
		}
		val, present := facts.Get(name)
		if !present {
			warnings = append(warnings, name)
		}
		out.WriteString(val)
	}
	return out.Bytes(), warnings, nil
}

// readToken consumes bytes up to and including a closing '}', or EOF.
// closed is false if the stream ended before a '}' was seen.
func readToken(br *bufio.Reader) (name string, closed bool, err error) {
	var buf bytes.Buffer
	for {
		b, rerr := br.ReadByte()
		if rerr == io.EOF {
			return buf.String(), false, nil
		}
		if rerr != nil {
			return "", false, rerr
		}
		if b == '}' {
			return buf.String(), true, nil
		}
		buf.WriteByte(b)
	}
}

// RenderFile renders the template file at path against facts.
func RenderFile(path string, facts *fact.Bundle) ([]byte, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening template %s: %w", path, err)
	}
	defer f.Close()
	return Render(f, facts)
}
