package iec_server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thinkgos/go-iecp5/asdu"
	"github.com/thinkgos/go-iecp5/cs104"

	"pvsim104/plant"
)

var (
	ErrNoConnection = errors.New("no master connected")
	ErrNotServing   = errors.New("IEC 104 server stopped during start-up")
)

const (
	startupGrace  = 100 * time.Millisecond
	closeInterval = 50 * time.Millisecond
)

// IEC104Server exposes a plant.Handler as an IEC 60870-5-104 outstation.
type IEC104Server struct {
	server     *cs104.Server
	handler    plant.Handler
	commonAddr asdu.CommonAddr
	log        logrus.FieldLogger

	mu       sync.RWMutex
	sessions map[asdu.Connect]string
	serving  chan struct{}
}

func NewIEC104Server(handler plant.Handler, commonAddr int, logger logrus.FieldLogger) *IEC104Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &IEC104Server{
		handler:    handler,
		commonAddr: asdu.CommonAddr(commonAddr),
		log:        logger.WithField("component", "iec104"),
		sessions:   make(map[asdu.Connect]string),
	}

	s.server = cs104.NewServer(s)
	s.server.SetConfig(cs104.DefaultConfig())
	s.server.SetParams(asdu.ParamsWide)
	s.server.SetLogProvider(logProvider{s.log})
	s.server.LogMode(true)
	s.server.SetOnConnectionHandler(s.onConnect)
	s.server.SetConnectionLostHandler(s.onConnectionLost)
	return s
}

// Start binds addr and serves in the background. It returns once the
// server has survived a short start-up window.
func (s *IEC104Server) Start(addr string) error {
	// ListenAndServer only logs a bind failure, so test-bind the address first
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	ln.Close()

	serving := make(chan struct{})
	s.mu.Lock()
	s.serving = serving
	s.mu.Unlock()
	go func() {
		defer close(serving)
		s.server.ListenAndServer(addr)
	}()

	// the address can be taken between the test bind and the real one
	select {
	case <-serving:
		return fmt.Errorf("listen %s: %w", addr, ErrNotServing)
	case <-time.After(startupGrace):
	}
	s.log.WithField("addr", addr).Info("IEC 104 server listening")
	return nil
}

// Close stops the listener and waits for the serve loop to exit. The
// listener may be stored after a first Close, so Close repeats until the
// loop is gone.
func (s *IEC104Server) Close() error {
	s.mu.RLock()
	serving := s.serving
	s.mu.RUnlock()

	err := s.server.Close()
	if serving == nil {
		return err
	}
	for {
		select {
		case <-serving:
			return err
		case <-time.After(closeInterval):
			if cerr := s.server.Close(); err == nil {
				err = cerr
			}
		}
	}
}

// Sessions returns the number of connected masters.
func (s *IEC104Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Enqueue sends a spontaneous batch to every connected master. The
// session send queue is buffered, so this never waits on the network.
func (s *IEC104Server) Enqueue(b plant.Batch) error {
	s.mu.RLock()
	conns := make([]asdu.Connect, 0, len(s.sessions))
	for c := range s.sessions {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	if len(conns) == 0 {
		return ErrNoConnection
	}
	var errs []error
	for _, c := range conns {
		if err := sendBatch(c, s.commonAddr, b); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(conns) {
		return fmt.Errorf("enqueue spontaneous batch: %w", errors.Join(errs...))
	}
	return nil
}

func (s *IEC104Server) onConnect(c asdu.Connect) {
	peer := peerOf(c)
	s.mu.Lock()
	s.sessions[c] = peer
	s.mu.Unlock()
	s.handler.OnConnectionEvent(plant.ConnOpened, peer)
}

func (s *IEC104Server) onConnectionLost(c asdu.Connect) {
	s.mu.Lock()
	peer, ok := s.sessions[c]
	delete(s.sessions, c)
	s.mu.Unlock()
	if !ok {
		peer = peerOf(c)
	}
	s.handler.OnConnectionEvent(plant.ConnClosed, peer)
}

func peerOf(c asdu.Connect) string {
	if conn := c.UnderlyingConn(); conn != nil && conn.RemoteAddr() != nil {
		return conn.RemoteAddr().String()
	}
	return "unknown"
}

func (s *IEC104Server) addressed(a *asdu.ASDU) bool {
	return a.CommonAddr == s.commonAddr || a.CommonAddr == asdu.GlobalCommonAddr
}

func (s *IEC104Server) reject(c asdu.Connect, a *asdu.ASDU, cause asdu.Cause) error {
	a.Coa.IsNegative = true
	return a.SendReplyMirror(c, cause)
}

func (s *IEC104Server) InterrogationHandler(c asdu.Connect, a *asdu.ASDU, qoi asdu.QualifierOfInterrogation) error {
	r := &interrogationReplier{
		reply: newReply(c, a, asdu.InfoObjAddrIrrelevant, byte(qoi)),
		ca:    s.commonAddr,
	}
	if !s.addressed(a) {
		return r.send(asdu.UnknownCA, true)
	}
	if a.Coa.Cause == asdu.Deactivation {
		// a general interrogation completes before the next request is read
		return r.send(asdu.DeactivationCon, true)
	}
	s.handler.OnInterrogation(plant.Scope(qoi), r)
	return nil
}

func (s *IEC104Server) ASDUHandler(c asdu.Connect, a *asdu.ASDU) error {
	if !s.addressed(a) {
		return s.reject(c, a, asdu.UnknownCA)
	}

	switch a.Type {
	case asdu.C_SC_NA_1:
		cmd := a.GetSingleCmd()
		ack := &commandAck{reply: newReply(c, a, cmd.Ioa, sco(cmd))}
		if a.Coa.Cause != asdu.Activation {
			return ack.send(asdu.UnknownCOT, true)
		}
		s.log.WithFields(logrus.Fields{
			"ioa":    cmd.Ioa,
			"value":  cmd.Value,
			"select": cmd.Qoc.InSelect,
		}).Debug("single command received")
		s.handler.OnCommand(int(cmd.Ioa), cmd.Value, ack)
		return nil
	default:
		s.log.WithField("type", a.Type).Debug("unsupported ASDU type")
		return s.reject(c, a, asdu.UnknownTypeID)
	}
}

func (s *IEC104Server) CounterInterrogationHandler(c asdu.Connect, a *asdu.ASDU, _ asdu.QualifierCountCall) error {
	return s.reject(c, a, asdu.UnknownTypeID)
}

func (s *IEC104Server) ReadHandler(c asdu.Connect, a *asdu.ASDU, _ asdu.InfoObjAddr) error {
	return s.reject(c, a, asdu.UnknownTypeID)
}

func (s *IEC104Server) ClockSyncHandler(c asdu.Connect, a *asdu.ASDU, _ time.Time) error {
	return s.reject(c, a, asdu.UnknownTypeID)
}

func (s *IEC104Server) ResetProcessHandler(c asdu.Connect, a *asdu.ASDU, _ asdu.QualifierOfResetProcessCmd) error {
	return s.reject(c, a, asdu.UnknownTypeID)
}

func (s *IEC104Server) DelayAcquisitionHandler(c asdu.Connect, a *asdu.ASDU, _ uint16) error {
	return s.reject(c, a, asdu.UnknownTypeID)
}
