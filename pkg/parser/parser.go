// Package parser builds a Manifest (pkg/ast) from manifest source text,
// following the grammar in spec.md §6: hosts, policies, resources,
// conditionals, maps and dependency edges, with file includes (glob-expanded,
// cycle-safe by device+inode) and a deferred policy-include resolution pass.
//
// Grounded on original_source/spec/grammar.c's recursive-descent shape and
// opal-lang-opal's pkgs/parser structure.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sys/unix"

	"github.com/clockwork-org/clockd/pkg/ast"
	"github.com/clockwork-org/clockd/pkg/lexer"
)

// Diagnostic is one parse-time error or warning, tagged with source location.
type Diagnostic struct {
	File    string
	Line    int
	Msg     string
	Warning bool
}

func (d Diagnostic) String() string {
	kind := "error"
	if d.Warning {
		kind = "warning"
	}
	return fmt.Sprintf("%s:%d: %s: %s", d.File, d.Line, kind, d.Msg)
}

type devIno struct {
	dev, ino uint64
}

// Parser holds the shared state of one manifest compilation: the arena being
// built, accumulated diagnostics, and the set of files currently open on the
// include stack (for cycle detection).
type Parser struct {
	Manifest *ast.Manifest

	diags     []Diagnostic
	errCount  int
	warnCount int
	openFiles map[devIno]string

	// resKind tracks the kind of the innermost enclosing resource while
	// parsing its body, so `depends on`/`affects` without an explicit LHS
	// resource_id can reference the current resource implicitly.
	resKind, resName string
	inResource       bool
}

// New returns an empty Parser.
func New() *Parser {
	return &Parser{
		Manifest:  ast.NewManifest(),
		openFiles: make(map[devIno]string),
	}
}

func (p *Parser) errorf(file string, line int, format string, args ...interface{}) {
	p.errCount++
	p.diags = append(p.diags, Diagnostic{File: file, Line: line, Msg: fmt.Sprintf(format, args...)})
}

func (p *Parser) warnf(file string, line int, format string, args ...interface{}) {
	p.warnCount++
	p.diags = append(p.diags, Diagnostic{File: file, Line: line, Msg: fmt.Sprintf(format, args...), Warning: true})
}

// Diagnostics returns every error/warning accumulated so far.
func (p *Parser) Diagnostics() []Diagnostic { return p.diags }

// ErrorCount and WarningCount report accumulated diagnostic counts.
func (p *Parser) ErrorCount() int   { return p.errCount }
func (p *Parser) WarningCount() int { return p.warnCount }

// ParseFile parses path (and transitively everything it includes) into a
// fresh Manifest. Returns an error if the parse accumulated any errors.
func ParseFile(path string) (*ast.Manifest, *Parser, error) {
	p := New()
	if err := p.parseTopLevelFile(path); err != nil {
		return nil, p, err
	}
	p.resolvePolicyIncludes()
	if p.errCount > 0 {
		return p.Manifest, p, fmt.Errorf("manifest parse failed with %d error(s)", p.errCount)
	}
	return p.Manifest, p, nil
}

func statDevIno(path string) (devIno, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return devIno{}, err
	}
	return devIno{dev: uint64(st.Dev), ino: st.Ino}, nil
}

// parseTopLevelFile opens path, registers its (dev, inode), and parses its
// top-level host/policy/include declarations into p.Manifest.
func (p *Parser) parseTopLevelFile(path string) error {
	di, err := statDevIno(path)
	if err != nil {
		p.errorf(path, 0, "cannot stat include file: %v", err)
		return err
	}
	if prev, already := p.openFiles[di]; already {
		p.warnf(path, 0, "include cycle detected (already open via %s), skipping", prev)
		return nil
	}
	p.openFiles[di] = path

	src, err := os.ReadFile(path)
	if err != nil {
		p.errorf(path, 0, "cannot read file: %v", err)
		delete(p.openFiles, di)
		return err
	}

	l := lexer.New(path, string(src))
	p.parseTopLevelItems(l, filepath.Dir(path))

	delete(p.openFiles, di)
	return nil
}

// parseTopLevelItems parses a sequence of host/policy/include declarations
// until EOF, appending hosts and policies directly into p.Manifest.
func (p *Parser) parseTopLevelItems(l *lexer.Lexer, dir string) {
	for {
		tok := l.Peek()
		switch tok.Type {
		case lexer.EOF:
			return
		case lexer.KW_HOST:
			p.parseHost(l)
		case lexer.KW_POLICY:
			p.parsePolicy(l)
		case lexer.KW_FALLBACK:
			p.parseFallback(l)
		case lexer.KW_INCLUDE:
			p.parseTopLevelInclude(l, dir)
		default:
			p.errorf(tok.File, tok.Line, "unexpected token %s at top level", tok.Type)
			l.Next()
		}
	}
}

// parseTopLevelInclude handles `include "PATH"` at top level: resolves
// relative to dir, glob-expands, and recursively parses every match's
// top-level items into the same Manifest.
func (p *Parser) parseTopLevelInclude(l *lexer.Lexer, dir string) {
	l.Next() // KW_INCLUDE
	pathTok := expect(l, lexer.STRING, p)
	p.includeFiles(dir, pathTok.Literal, func(resolved string) {
		p.parseTopLevelFile(resolved)
	})
}

// includeFiles resolves a (possibly relative, possibly glob) include path
// against dir and invokes onMatch for each resulting file. Each match is
// parsed as soon as onMatch is called, so matches are processed in sorted
// order and the overall effect reads alphabetically.
func (p *Parser) includeFiles(dir, rawPath string, onMatch func(string)) {
	resolved := rawPath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(dir, resolved)
	}

	matches, err := doublestar.FilepathGlob(resolved)
	if err != nil || len(matches) == 0 {
		// Zero matches: use the literal path, and let it fail later if it
		// doesn't exist (spec.md §4.1).
		onMatch(resolved)
		return
	}

	sort.Strings(matches)
	for _, m := range matches {
		onMatch(m)
	}
}

// parseHost parses `host STRING { (enforce|include)* }`.
func (p *Parser) parseHost(l *lexer.Lexer) {
	kw := l.Next() // KW_HOST
	nameTok := expect(l, lexer.STRING, p)
	root := p.Manifest.New(ast.HOST, nameTok.Literal, "")
	expect(l, lexer.LBRACE, p)

	for {
		tok := l.Peek()
		switch tok.Type {
		case lexer.RBRACE:
			l.Next()
			if !p.Manifest.DefineHost(nameTok.Literal, root) {
				p.errorf(nameTok.File, nameTok.Line, "duplicate host %q", nameTok.Literal)
			}
			return
		case lexer.KW_ENFORCE:
			l.Next()
			polTok := expect(l, lexer.STRING, p)
			enforce := p.Manifest.New(ast.ENFORCE, polTok.Literal, "")
			p.Manifest.AddChild(root, enforce)
		case lexer.KW_INCLUDE:
			l.Next()
			pathTok := expect(l, lexer.STRING, p)
			dir := filepath.Dir(kw.File)
			p.includeFiles(dir, pathTok.Literal, func(resolved string) {
				p.parseHostIncludeFile(resolved, root)
			})
		case lexer.EOF:
			p.errorf(tok.File, tok.Line, "unexpected EOF inside host %q", nameTok.Literal)
			return
		default:
			p.errorf(tok.File, tok.Line, "unexpected token %s in host body", tok.Type)
			l.Next()
		}
	}
}

// parseFallback parses `fallback { (enforce|include)* }`: the policy set
// applied to a peer whose id matches no declared host (spec.md §4.6 "find
// host in manifest (or fallback)"). Body syntax mirrors parseHost's, minus
// the host name, since evaluation treats the fallback root exactly like a
// host root.
func (p *Parser) parseFallback(l *lexer.Lexer) {
	kw := l.Next() // KW_FALLBACK
	root := p.Manifest.New(ast.HOST, "<fallback>", "")
	expect(l, lexer.LBRACE, p)

	for {
		tok := l.Peek()
		switch tok.Type {
		case lexer.RBRACE:
			l.Next()
			if !p.Manifest.DefineFallback(root) {
				p.errorf(kw.File, kw.Line, "duplicate fallback block")
			}
			return
		case lexer.KW_ENFORCE:
			l.Next()
			polTok := expect(l, lexer.STRING, p)
			enforce := p.Manifest.New(ast.ENFORCE, polTok.Literal, "")
			p.Manifest.AddChild(root, enforce)
		case lexer.KW_INCLUDE:
			l.Next()
			pathTok := expect(l, lexer.STRING, p)
			dir := filepath.Dir(kw.File)
			p.includeFiles(dir, pathTok.Literal, func(resolved string) {
				p.parseHostIncludeFile(resolved, root)
			})
		case lexer.EOF:
			p.errorf(tok.File, tok.Line, "unexpected EOF inside fallback block")
			return
		default:
			p.errorf(tok.File, tok.Line, "unexpected token %s in fallback body", tok.Type)
			l.Next()
		}
	}
}

// parseHostIncludeFile parses an included file's content as a sequence of
// enforce/include statements only, appended directly to the enclosing
// host's children (the file-include form splices enforce lines in place).
func (p *Parser) parseHostIncludeFile(path string, hostRoot ast.NodeRef) {
	di, err := statDevIno(path)
	if err != nil {
		p.errorf(path, 0, "cannot stat include file: %v", err)
		return
	}
	if prev, already := p.openFiles[di]; already {
		p.warnf(path, 0, "include cycle detected (already open via %s), skipping", prev)
		return
	}
	p.openFiles[di] = path
	defer delete(p.openFiles, di)

	src, err := os.ReadFile(path)
	if err != nil {
		p.errorf(path, 0, "cannot read file: %v", err)
		return
	}
	l := lexer.New(path, string(src))
	dir := filepath.Dir(path)
	for {
		tok := l.Peek()
		switch tok.Type {
		case lexer.EOF:
			return
		case lexer.KW_ENFORCE:
			l.Next()
			polTok := expect(l, lexer.STRING, p)
			enforce := p.Manifest.New(ast.ENFORCE, polTok.Literal, "")
			p.Manifest.AddChild(hostRoot, enforce)
		case lexer.KW_INCLUDE:
			l.Next()
			pathTok := expect(l, lexer.STRING, p)
			p.includeFiles(dir, pathTok.Literal, func(resolved string) {
				p.parseHostIncludeFile(resolved, hostRoot)
			})
		default:
			p.errorf(tok.File, tok.Line, "unexpected token %s in included host body", tok.Type)
			l.Next()
		}
	}
}

// parsePolicy parses `policy STRING { block* }`.
func (p *Parser) parsePolicy(l *lexer.Lexer) {
	l.Next() // KW_POLICY
	nameTok := expect(l, lexer.STRING, p)
	root := p.Manifest.New(ast.POLICY, nameTok.Literal, "")
	expect(l, lexer.LBRACE, p)

	for {
		tok := l.Peek()
		if tok.Type == lexer.RBRACE {
			l.Next()
			if !p.Manifest.DefinePolicy(nameTok.Literal, root) {
				p.errorf(nameTok.File, nameTok.Line, "duplicate policy %q", nameTok.Literal)
			}
			return
		}
		if tok.Type == lexer.EOF {
			p.errorf(tok.File, tok.Line, "unexpected EOF inside policy %q", nameTok.Literal)
			return
		}
		if child := p.parseBlock(l); child != ast.NoRef {
			p.Manifest.AddChild(root, child)
		}
	}
}

// parseBlock parses one `block` per spec.md §6's grammar: resource, if/unless,
// map, a dependency statement, or include. Returns ast.NoRef if no node was
// produced (e.g. a malformed line already reported).
func (p *Parser) parseBlock(l *lexer.Lexer) ast.NodeRef {
	tok := l.Peek()
	switch tok.Type {
	case lexer.KW_IF, lexer.KW_UNLESS:
		return p.parseIf(l)
	case lexer.KW_INCLUDE:
		l.Next()
		nameTok := expect(l, lexer.STRING, p)
		return p.Manifest.New(ast.INCLUDE, nameTok.Literal, "")
	case lexer.KW_DEPENDS, lexer.KW_AFFECTS:
		return p.parseDependencyImplicitLHS(l)
	case lexer.IDENT:
		return p.parseIdentLedBlock(l)
	default:
		p.errorf(tok.File, tok.Line, "unexpected token %s in policy body", tok.Type)
		l.Next()
		return ast.NoRef
	}
}

// parseIdentLedBlock disambiguates resource definitions, map attribute
// bindings, and dependency statements, all of which start with an
// identifier.
func (p *Parser) parseIdentLedBlock(l *lexer.Lexer) ast.NodeRef {
	ident := l.Next() // IDENT
	next := l.Peek()

	switch next.Type {
	case lexer.STRING:
		// IDENT STRING: either "kind name { ... }" (resource) or
		// "kind name depends on|affects kind2 name2" (dependency).
		nameTok := l.Next()
		after := l.Peek()
		if after.Type == lexer.KW_DEPENDS || after.Type == lexer.KW_AFFECTS {
			return p.parseDependencyExplicitLHS(l, ident, nameTok)
		}
		return p.parseResource(l, ident, nameTok)
	case lexer.ARROW, lexer.COLON:
		// IDENT ("=>"|":") ... : either a plain attr (only valid inside a
		// resource body) reached via a bare top-level map block, or a map.
		l.Next() // consume => or :
		if l.Peek().Type == lexer.KW_MAP {
			return p.parseMapTail(l, ident)
		}
		return p.parseAttrValue(l, ident)
	default:
		p.errorf(next.File, next.Line, "unexpected token %s after identifier %q", next.Type, ident.Literal)
		return ast.NoRef
	}
}

// parseResource parses the `{ attr|if|map }*` body of a resource definition,
// after `kind "name"` has already been consumed.
func (p *Parser) parseResource(l *lexer.Lexer, kindTok, nameTok lexer.Token) ast.NodeRef {
	root := p.Manifest.New(ast.RESOURCE, kindTok.Literal, nameTok.Literal)
	expect(l, lexer.LBRACE, p)

	savedKind, savedName, savedIn := p.resKind, p.resName, p.inResource
	p.resKind, p.resName, p.inResource = kindTok.Literal, nameTok.Literal, true

	for {
		tok := l.Peek()
		if tok.Type == lexer.RBRACE {
			l.Next()
			break
		}
		if tok.Type == lexer.EOF {
			p.errorf(tok.File, tok.Line, "unexpected EOF inside resource %q %q", kindTok.Literal, nameTok.Literal)
			break
		}
		if child := p.parseResourceBodyItem(l); child != ast.NoRef {
			p.Manifest.AddChild(root, child)
		}
	}

	p.resKind, p.resName, p.inResource = savedKind, savedName, savedIn
	return root
}

func (p *Parser) parseResourceBodyItem(l *lexer.Lexer) ast.NodeRef {
	tok := l.Peek()
	switch tok.Type {
	case lexer.KW_IF, lexer.KW_UNLESS:
		return p.parseIf(l)
	case lexer.KW_DEPENDS, lexer.KW_AFFECTS:
		return p.parseDependencyImplicitLHS(l)
	case lexer.IDENT:
		ident := l.Next()
		sep := l.Next()
		if sep.Type != lexer.ARROW && sep.Type != lexer.COLON {
			p.errorf(sep.File, sep.Line, "expected => or :, got %s %q", sep.Type, sep.Literal)
		}
		if l.Peek().Type == lexer.KW_MAP {
			return p.parseMapTail(l, ident)
		}
		return p.parseAttrValue(l, ident)
	default:
		p.errorf(tok.File, tok.Line, "unexpected token %s in resource body", tok.Type)
		l.Next()
		return ast.NoRef
	}
}

func (p *Parser) parseAttrValue(l *lexer.Lexer, nameTok lexer.Token) ast.NodeRef {
	valTok := l.Next()
	switch valTok.Type {
	case lexer.STRING, lexer.NUMBER, lexer.IDENT:
		return p.Manifest.New(ast.ATTR, nameTok.Literal, valTok.Literal)
	default:
		p.errorf(valTok.File, valTok.Line, "expected attribute value, got %s", valTok.Type)
		return ast.NoRef
	}
}

// parseIf parses `("if"|"unless") IDENT "is" ["not"] (STRING | "(" list ")")
// "{" block* "}" ["else" (if | "{" block* "}")]`, expanding the Branch
// intermediate (spec.md §3) directly into a right-leaning IF chain.
func (p *Parser) parseIf(l *lexer.Lexer) ast.NodeRef {
	kw := l.Next() // KW_IF or KW_UNLESS
	unless := kw.Type == lexer.KW_UNLESS

	factTok := expect(l, lexer.IDENT, p)
	expect(l, lexer.KW_IS, p)

	negate := unless
	if l.Peek().Type == lexer.KW_NOT {
		l.Next()
		negate = !negate
	}
	if l.Peek().Type == lexer.KW_IN {
		l.Next()
	}

	var values []string
	if l.Peek().Type == lexer.LPAREN {
		l.Next()
		for {
			v := l.Next()
			values = append(values, v.Literal)
			if l.Peek().Type == lexer.COMMA {
				l.Next()
				continue
			}
			break
		}
		expect(l, lexer.RPAREN, p)
	} else {
		v := l.Next()
		values = append(values, v.Literal)
	}

	expect(l, lexer.LBRACE, p)
	thenChildren := p.parseBlockListUntilRBrace(l)

	var elseChildren []ast.NodeRef
	if l.Peek().Type == lexer.KW_ELSE {
		l.Next()
		if l.Peek().Type == lexer.KW_IF {
			elseChildren = []ast.NodeRef{p.parseIf(l)}
		} else {
			expect(l, lexer.LBRACE, p)
			elseChildren = p.parseBlockListUntilRBrace(l)
		}
	}

	thenRoot := p.Manifest.New(ast.PROG, "", "")
	for _, c := range thenChildren {
		p.Manifest.AddChild(thenRoot, c)
	}
	elseRoot := p.Manifest.New(ast.PROG, "", "")
	for _, c := range elseChildren {
		p.Manifest.AddChild(elseRoot, c)
	}

	return buildIfChain(p.Manifest, factTok.Literal, values, negate, thenRoot, elseRoot)
}

// buildIfChain builds the right-leaning IF chain for a Branch: if negate is
// false, the then-body runs when the fact matches any of values; if negate
// is true, the then-body runs only when it matches none of them. Every IF
// node uses the equality opcode only, per spec.md §4.1's note that
// not-equal and unless are both represented as swapped then/else over EQ.
func buildIfChain(m *ast.Manifest, fact string, values []string, negate bool, thenRoot, elseRoot ast.NodeRef) ast.NodeRef {
	// Build from the innermost (last value) outward.
	tail := elseRoot
	if negate {
		tail = thenRoot
	}
	for i := len(values) - 1; i >= 0; i-- {
		node := m.New(ast.IF, fact, values[i])
		var a, b ast.NodeRef
		if negate {
			// matched -> elseRoot (forward), unmatched at the last level -> thenRoot
			a, b = elseRoot, tail
		} else {
			a, b = thenRoot, tail
		}
		m.AddChild(node, a)
		m.AddChild(node, b)
		tail = node
	}
	if len(values) == 0 {
		return elseRoot
	}
	return tail
}

// parseBlockListUntilRBrace parses zero or more blocks up to (and
// consuming) the closing brace.
func (p *Parser) parseBlockListUntilRBrace(l *lexer.Lexer) []ast.NodeRef {
	var out []ast.NodeRef
	for {
		tok := l.Peek()
		if tok.Type == lexer.RBRACE {
			l.Next()
			return out
		}
		if tok.Type == lexer.EOF {
			p.errorf(tok.File, tok.Line, "unexpected EOF in block")
			return out
		}
		var child ast.NodeRef
		if p.inResource {
			child = p.parseResourceBodyItem(l)
		} else {
			child = p.parseBlock(l)
		}
		if child != ast.NoRef {
			out = append(out, child)
		}
	}
}

// parseMapTail parses `"map(" IDENT ")" "{" case* ["else" "=>" STRING] "}"`
// after `ATTR ("=>"|":")` has already been consumed, expanding the Map
// intermediate (spec.md §3) into a linear IF chain that binds attrName.
func (p *Parser) parseMapTail(l *lexer.Lexer, attrTok lexer.Token) ast.NodeRef {
	expect(l, lexer.KW_MAP, p)
	expect(l, lexer.LPAREN, p)
	factTok := expect(l, lexer.IDENT, p)
	expect(l, lexer.RPAREN, p)
	expect(l, lexer.LBRACE, p)

	var factValues, attrValues []string
	defaultValue := ""
	hasDefault := false

	for {
		tok := l.Peek()
		if tok.Type == lexer.RBRACE {
			l.Next()
			break
		}
		if tok.Type == lexer.KW_ELSE {
			l.Next()
			expect(l, lexer.ARROW, p)
			v := l.Next()
			defaultValue = v.Literal
			hasDefault = true
			continue
		}
		expect(l, lexer.KW_IS, p)
		caseVal := l.Next()
		expect(l, lexer.ARROW, p)
		attrVal := l.Next()
		factValues = append(factValues, caseVal.Literal)
		attrValues = append(attrValues, attrVal.Literal)
	}

	var defaultNode ast.NodeRef
	if hasDefault {
		defaultNode = p.Manifest.New(ast.ATTR, attrTok.Literal, defaultValue)
	} else {
		defaultNode = p.Manifest.New(ast.NOOP, "", "")
	}

	tail := defaultNode
	for i := len(factValues) - 1; i >= 0; i-- {
		ifNode := p.Manifest.New(ast.IF, factTok.Literal, factValues[i])
		attrNode := p.Manifest.New(ast.ATTR, attrTok.Literal, attrValues[i])
		p.Manifest.AddChild(ifNode, attrNode)
		p.Manifest.AddChild(ifNode, tail)
		tail = ifNode
	}
	return tail
}

// parseDependencyExplicitLHS parses the remainder of a dependency statement
// after `kind "name"` (the LHS resource_id) has already been consumed.
func (p *Parser) parseDependencyExplicitLHS(l *lexer.Lexer, lhsKind, lhsName lexer.Token) ast.NodeRef {
	lhs := p.Manifest.New(ast.RESOURCE_ID, lhsKind.Literal, lhsName.Literal)
	return p.parseDependencyOpAndRHS(l, lhs)
}

// parseDependencyImplicitLHS handles `depends on|affects kind "name"`
// appearing inside a resource body with no explicit LHS: the enclosing
// resource is the implicit LHS.
func (p *Parser) parseDependencyImplicitLHS(l *lexer.Lexer) ast.NodeRef {
	if !p.inResource {
		tok := l.Peek()
		p.errorf(tok.File, tok.Line, "depends/affects with no left-hand resource outside a resource body")
	}
	lhs := p.Manifest.New(ast.RESOURCE_ID, p.resKind, p.resName)
	return p.parseDependencyOpAndRHS(l, lhs)
}

func (p *Parser) parseDependencyOpAndRHS(l *lexer.Lexer, lhs ast.NodeRef) ast.NodeRef {
	op := l.Next() // KW_DEPENDS or KW_AFFECTS
	if op.Type == lexer.KW_DEPENDS {
		expect(l, lexer.KW_ON, p)
	}
	rhsKind := expect(l, lexer.IDENT, p)
	rhsName := expect(l, lexer.STRING, p)
	rhs := p.Manifest.New(ast.RESOURCE_ID, rhsKind.Literal, rhsName.Literal)

	dep := p.Manifest.New(ast.DEPENDENCY, "", "")
	if op.Type == lexer.KW_DEPENDS {
		// lhs depends on rhs: rhs must be reconciled before lhs.
		p.Manifest.AddChild(dep, rhs)
		p.Manifest.AddChild(dep, lhs)
	} else {
		// lhs affects rhs: lhs must be reconciled before rhs.
		p.Manifest.AddChild(dep, lhs)
		p.Manifest.AddChild(dep, rhs)
	}
	return dep
}

// resolvePolicyIncludes implements spec.md §4.1's post-pass: every INCLUDE
// node found inside a policy's subtree, whose data1 names a known policy,
// gets that policy's root appended as its child. An unresolved include is a
// fatal manifest error.
func (p *Parser) resolvePolicyIncludes() {
	seen := make(map[ast.NodeRef]bool)
	for _, root := range p.Manifest.Policies {
		p.resolveIncludesIn(root, seen)
	}
}

func (p *Parser) resolveIncludesIn(ref ast.NodeRef, seen map[ast.NodeRef]bool) {
	if ref == ast.NoRef || seen[ref] {
		return
	}
	seen[ref] = true
	node := p.Manifest.Node(ref)
	if node.Op == ast.INCLUDE {
		target, ok := p.Manifest.Policies[node.Data1]
		if !ok {
			p.errorf("", 0, "unresolved policy include %q", node.Data1)
			return
		}
		node.Children = append(node.Children, target)
	}
	for _, c := range node.Children {
		p.resolveIncludesIn(c, seen)
	}
}

// expect consumes and returns the next token if it matches tt, else records
// a parse error and returns the (wrong) token anyway so parsing can
// continue with best-effort recovery.
func expect(l *lexer.Lexer, tt lexer.TokenType, p *Parser) lexer.Token {
	tok := l.Next()
	if tok.Type != tt {
		p.errorf(tok.File, tok.Line, "expected %s, got %s %q", tt, tok.Type, tok.Literal)
	}
	return tok
}
