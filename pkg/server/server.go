// Package server implements the accept loop and SIGHUP-driven hot reload
// described in spec.md §9's Server Loop.
//
// Grounded on original_source/src/clockd.c's main loop: a self-pipe signal
// handler that increments a reload counter, a main loop that checks it
// between requests, a "new" server instance parsed in the background while
// the old one keeps serving already-known peers and turns away brand-new
// ones with "busy, try again", and an atomic swap once the outgoing
// instance's client cache drains to empty. Re-expressed here as a net.Conn
// accept loop (spec.md §6 is connection-oriented, unlike the original's
// ROUTER socket) with an atomic.Pointer swap standing in for the original's
// pointer-swap-and-free.
package server

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/clockwork-org/clockd/pkg/clockerr"
	"github.com/clockwork-org/clockd/pkg/config"
	"github.com/clockwork-org/clockd/pkg/content"
	"github.com/clockwork-org/clockd/pkg/events"
	"github.com/clockwork-org/clockd/pkg/log"
	"github.com/clockwork-org/clockd/pkg/metrics"
	"github.com/clockwork-org/clockd/pkg/parser"
	"github.com/clockwork-org/clockd/pkg/protocol"
	"github.com/clockwork-org/clockd/pkg/security"
	"github.com/clockwork-org/clockd/pkg/session"
	"github.com/clockwork-org/clockd/pkg/transport"
)

// reloadPollInterval is how often the reload goroutine checks whether the
// outgoing session cache has drained to empty.
const reloadPollInterval = 100 * time.Millisecond

// Server owns the listening socket, the live FSM, and the collaborators a
// reload needs to rebuild: a fresh Manifest and TrustDB, swapped in once no
// sessions remain against the old ones.
type Server struct {
	cfg      config.Config
	listener net.Listener
	sessions *session.Cache
	fsm      atomic.Pointer[protocol.FSM]
	trust    atomic.Pointer[security.TrustDB]
	cert     *security.Cert
	events   *events.Broker
	reports  protocol.ReportSink

	reloading atomic.Bool
}

// New loads the manifest, trust database and certificate named by cfg,
// binds the listening socket, and returns a Server ready for Serve.
func New(cfg config.Config, reports protocol.ReportSink) (*Server, error) {
	manifest, p, err := parser.ParseFile(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}
	if p.ErrorCount() > 0 {
		return nil, manifestParseError(p.Diagnostics())
	}

	trustDB, err := security.LoadTrustDB(cfg.TrustDBPath)
	if err != nil {
		return nil, err
	}

	cert, err := security.ReadCertFile(cfg.CertPath)
	if err != nil {
		return nil, err
	}

	digestCache, err := content.OpenDigestCache(cfg.CopydownDir)
	if err != nil {
		return nil, err
	}
	resolver := content.NewResolver(digestCache)

	if reports == nil {
		reports = protocol.DiscardReportSink{}
	}

	sessions, err := session.New(cfg.SessionCacheCapacity, cfg.SessionCacheMinLife, func(s *session.Session) {
		if s.Content != nil {
			s.Content.Close()
		}
	})
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:      cfg,
		listener: listener,
		sessions: sessions,
		cert:     cert,
		events:   events.NewBroker(),
		reports:  reports,
	}
	srv.fsm.Store(&protocol.FSM{
		Manifest: manifest,
		Content:  resolver,
		Reports:  reports,
		Archive:  srv.archive,
	})
	srv.trust.Store(trustDB)
	return srv, nil
}

// Reload triggers the same reload reloadLoop runs on SIGHUP, for callers
// that can't signal the process (pkg/adminsrv's POST /reload).
func (s *Server) Reload() {
	s.beginReload()
}

// Reloading reports whether a reload is currently draining sessions.
func (s *Server) Reloading() bool {
	return s.reloading.Load()
}

// Sessions returns a snapshot of peer id -> protocol state for every
// session currently held.
func (s *Server) Sessions() map[string]session.State {
	return s.sessions.Snapshot()
}

// archive packages the copydown directory into a spooled content blob
// satisfying protocol.ContentReader, for a COPYDOWN request.
func (s *Server) archive(sess *session.Session) (protocol.ContentReader, error) {
	return content.OpenArchive(s.cfg.CopydownDir)
}

// Serve accepts connections until ctx is cancelled, and installs SIGHUP
// (reload) and SIGTERM/SIGINT (graceful shutdown) handlers. It blocks until
// the listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	s.events.Start()
	defer s.events.Stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go s.reloadLoop(hup)

	term := make(chan os.Signal, 1)
	signal.Notify(term, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-term:
			log.Info("received shutdown signal, closing listener")
			s.listener.Close()
		case <-ctx.Done():
			s.listener.Close()
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if isClosed(err) {
				return nil
			}
			log.Errorf("accept", err)
			continue
		}
		go s.handleConn(conn)
	}
}

// reloadLoop is the self-pipe consumer: each buffered SIGHUP triggers one
// reload attempt. A reload already in flight absorbs extra signals (the
// CompareAndSwap fails and the signal is simply dropped, matching the
// original's counter-collapsing behavior for a burst of SIGHUPs).
func (s *Server) reloadLoop(hup <-chan os.Signal) {
	for range hup {
		s.beginReload()
	}
}

func (s *Server) beginReload() {
	if !s.reloading.CompareAndSwap(false, true) {
		log.Info("reload already in progress, ignoring SIGHUP")
		return
	}
	log.Info("caught SIGHUP; reloading manifest")

	timer := metrics.NewTimer()
	manifest, p, err := parser.ParseFile(s.cfg.ManifestPath)
	if err != nil || p.ErrorCount() > 0 {
		log.Warn("manifest reload failed; keeping previous manifest")
		metrics.ManifestReloadsTotal.WithLabelValues("failure").Inc()
		s.events.Publish(&events.Event{Type: events.TypeReloadFailed})
		s.reloading.Store(false)
		return
	}

	trustDB, err := security.LoadTrustDB(s.cfg.TrustDBPath)
	if err != nil {
		log.Warn("trust database reload failed; keeping previous manifest")
		metrics.ManifestReloadsTotal.WithLabelValues("failure").Inc()
		s.reloading.Store(false)
		return
	}

	old := s.fsm.Load()
	newFSM := &protocol.FSM{
		Manifest: manifest,
		Content:  old.Content,
		Reports:  old.Reports,
		Archive:  old.Archive,
	}

	go func() {
		for s.sessions.Len() > 0 {
			time.Sleep(reloadPollInterval)
		}
		s.fsm.Store(newFSM)
		s.trust.Store(trustDB)
		s.reloading.Store(false)
		timer.ObserveDuration(metrics.ManifestReloadDuration)
		metrics.ManifestReloadsTotal.WithLabelValues("success").Inc()
		s.events.Publish(&events.Event{Type: events.TypeManifestReloaded})
		log.Info("manifest reload complete")
	}()
}

func (s *Server) handleConn(raw net.Conn) {
	defer raw.Close()

	conn, err := transport.Handshake(raw, true, s.cert)
	if err != nil {
		log.Errorf("transport handshake", err)
		return
	}

	trustDB := s.trust.Load()
	if !trustDB.Verify(conn.PeerPublicKey(), conn.PeerIdentity(), s.cfg.StrictVerify) {
		authErr := &clockerr.AuthFailure{Identity: conn.PeerIdentity()}
		log.Errorf("handshake", authErr)
		metrics.AuthFailuresTotal.Inc()
		reply := protocol.Frame{Type: protocol.TypeError, Args: []string{authErr.Error()}}
		conn.WriteMessage(reply.Encode())
		return
	}

	sess := &session.Session{State: session.StateInit}
	peerRegistered := false

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			continue
		}

		if frame.Type == protocol.TypeHello {
			peerID := ""
			if len(frame.Args) > 0 {
				peerID = frame.Args[0]
			}
			if existing, ok := s.sessions.Get(peerID); ok {
				sess = existing
			} else if s.reloading.Load() {
				busy := protocol.Frame{Type: protocol.TypeError, Args: []string{"busy, try again"}}
				conn.WriteMessage(busy.Encode())
				continue
			} else if err := s.sessions.Set(peerID, sess); err != nil {
				conn.WriteMessage(protocol.Frame{Type: protocol.TypeError, Args: []string{err.Error()}}.Encode())
				continue
			}
			peerRegistered = true
		}

		fsm := s.fsm.Load()
		reply := fsm.Handle(sess, frame)
		metrics.ProtocolFramesTotal.WithLabelValues(frame.Type, reply.Type).Inc()
		if reply.Type == protocol.TypeError {
			metrics.ProtocolViolationsTotal.Inc()
		}

		if err := conn.WriteMessage(reply.Encode()); err != nil {
			break
		}

		if frame.Type == protocol.TypeBye {
			if peerRegistered {
				s.sessions.Unset(sess.PeerID)
			}
			break
		}
	}
}

// manifestParseError joins a parser's diagnostics into a single error,
// reporting the first one (callers that want the full list use
// parser.Parser.Diagnostics directly, e.g. `clockd manifest check`).
type manifestParseErr struct {
	diags []parser.Diagnostic
}

func manifestParseError(diags []parser.Diagnostic) error {
	return &manifestParseErr{diags: diags}
}

func (e *manifestParseErr) Error() string {
	if len(e.diags) == 0 {
		return "manifest parse failed"
	}
	return e.diags[0].String()
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
