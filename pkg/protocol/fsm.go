package protocol

import (
	"bytes"
	"fmt"

	"github.com/clockwork-org/clockd/pkg/ast"
	"github.com/clockwork-org/clockd/pkg/clockerr"
	"github.com/clockwork-org/clockd/pkg/codegen"
	"github.com/clockwork-org/clockd/pkg/content"
	"github.com/clockwork-org/clockd/pkg/evaluator"
	"github.com/clockwork-org/clockd/pkg/fact"
	"github.com/clockwork-org/clockd/pkg/session"
)

// ProtocolVersion is advertised in PONG replies.
const ProtocolVersion = "1"

// ReportSink accepts a REPORT frame's body. The default implementation
// discards it without logging (spec.md §9 Open Question: "REPORT payload
// persistence" — out of scope, modeled as an injected collaborator).
type ReportSink interface {
	Accept(peerID string, body []string)
}

// DiscardReportSink implements ReportSink by dropping every report.
type DiscardReportSink struct{}

func (DiscardReportSink) Accept(string, []string) {}

// validFrom maps each event to the set of states it may be processed from.
// HELLO, PING, and BYE are valid from any state and are handled specially
// below rather than listed here.
var validFrom = map[string]map[session.State]bool{
	TypeCopydown: {session.StateIdentified: true},
	TypePolicy: {
		session.StateIdentified: true,
		session.StatePolicy:     true,
		session.StateFile:       true,
		session.StateCopydown:   true,
		session.StateReport:     true,
	},
	TypeFile: {
		session.StatePolicy: true,
		session.StateFile:   true,
	},
	TypeData: {
		session.StateCopydown: true,
		session.StateFile:     true,
	},
	TypeReport: {
		session.StatePolicy:   true,
		session.StateFile:     true,
		session.StateCopydown: true,
		session.StateReport:   true,
	},
}

// FSM dispatches frames against a Manifest, producing replies and mutating
// session state per spec.md §4.6's table.
type FSM struct {
	Manifest *ast.Manifest
	Content  *content.Resolver
	Reports  ReportSink
	Archive  func(sess *session.Session) (ContentReader, error)
}

// ContentReader is the subset of *content.Content the FSM needs: block
// reads and a digest. Kept as an interface so tests can substitute fakes
// without opening real files.
type ContentReader interface {
	Digest() string
	ReadBlock(i int64) ([]byte, bool, error)
	Close() error
}

// Handle processes one frame against sess, returning the reply frame. It
// has no Go error return: protocol-level problems become ERROR frames per
// spec.md §4.6.
func (m *FSM) Handle(sess *session.Session, f Frame) Frame {
	switch f.Type {
	case TypePing:
		return replyPong(ProtocolVersion)
	case TypeHello:
		return m.handleHello(sess, f)
	case TypeBye:
		return m.handleBye(sess)
	}

	states, known := validFrom[f.Type]
	if !known {
		return replyError("Protocol Violation")
	}
	if !states[sess.State] {
		return replyError("Protocol Violation")
	}

	switch f.Type {
	case TypeCopydown:
		return m.handleCopydown(sess, f)
	case TypePolicy:
		return m.handlePolicy(sess, f)
	case TypeFile:
		return m.handleFile(sess, f)
	case TypeData:
		return m.handleData(sess, f)
	case TypeReport:
		return m.handleReport(sess, f)
	default:
		return replyError("Protocol Violation")
	}
}

func (m *FSM) handleHello(sess *session.Session, f Frame) Frame {
	sess.Reset()
	if len(f.Args) > 0 {
		sess.PeerID = f.Args[0]
	}
	sess.State = session.StateIdentified
	return replyOK()
}

func (m *FSM) handleBye(sess *session.Session) Frame {
	sess.Reset()
	return replyBye()
}

func (m *FSM) handleCopydown(sess *session.Session, f Frame) Frame {
	if m.Archive == nil {
		return replyError("copydown unavailable")
	}
	reader, err := m.Archive(sess)
	if err != nil {
		return replyError(err.Error())
	}
	sess.Content = reader
	sess.ContentSHA1 = reader.Digest()
	sess.SetOffset(0)
	sess.State = session.StateCopydown
	return replyOK()
}

func (m *FSM) handlePolicy(sess *session.Session, f Frame) Frame {
	facts := fact.New()
	for _, kv := range f.Args {
		key, val, ok := splitKV(kv)
		if ok {
			facts.Set(key, val)
		}
	}
	sess.Facts = facts

	root, ok := m.Manifest.Hosts[sess.PeerID]
	if !ok {
		root = m.Manifest.Fallback
	}
	if root == ast.NoRef {
		return replyError(fmt.Sprintf("no policy for host %q", sess.PeerID))
	}

	policy, err := evaluator.Evaluate(m.Manifest, root, facts)
	if err != nil {
		return replyError(err.Error())
	}
	instrs, err := codegen.Emit(policy)
	if err != nil {
		return replyError(err.Error())
	}
	img, err := codegen.Assemble(instrs, false)
	if err != nil {
		return replyError(err.Error())
	}
	var buf bytes.Buffer
	if err := img.Write(&buf); err != nil {
		return replyError(err.Error())
	}

	sess.Policy = policy
	sess.State = session.StatePolicy
	return replyPolicy(buf.Bytes())
}

func (m *FSM) handleFile(sess *session.Session, f Frame) Frame {
	if len(f.Args) == 0 {
		return replyError("FILE requires a resource key")
	}
	key := f.Args[0]
	if sess.Policy == nil {
		return replySHA1Fail("no policy")
	}
	r, ok := sess.Policy.ByKey(key)
	if !ok {
		return replySHA1Fail((&clockerr.ResourceNotFound{Key: key}).Error())
	}
	c, err := m.Content.Open(r, sess.Facts)
	if err != nil {
		return replySHA1Fail(err.Error())
	}
	if sess.Content != nil {
		sess.Content.Close()
	}
	sess.Content = c
	sess.ContentSHA1 = c.Digest()
	sess.SetOffset(0)
	sess.State = session.StateFile
	return replySHA1(c.Digest())
}

func (m *FSM) handleData(sess *session.Session, f Frame) Frame {
	if sess.Content == nil {
		return replyError("no open content stream")
	}
	reader, ok := sess.Content.(ContentReader)
	if !ok {
		return replyError("internal: content handle has no block reader")
	}
	block, eof, err := reader.ReadBlock(sess.Offset())
	if err != nil {
		return Frame{Type: TypeError, Args: []string{err.Error()}}
	}
	if len(block) == 0 && eof {
		return replyEOF()
	}
	sess.SetOffset(sess.Offset() + 1)
	reply := replyBlock(block)
	if eof {
		// Still deliver the final short block; the caller learns EOF on
		// its next DATA request against an exhausted stream.
		return reply
	}
	return reply
}

func (m *FSM) handleReport(sess *session.Session, f Frame) Frame {
	if m.Reports != nil {
		m.Reports.Accept(sess.PeerID, f.Args)
	}
	sess.State = session.StateReport
	return replyOK()
}

func splitKV(s string) (key, val string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
