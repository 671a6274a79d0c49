package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"matchbook/internal/common"
	"matchbook/internal/engine"
	"matchbook/internal/metrics"
	"matchbook/internal/protocol"
	"matchbook/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const defaultNWorkers = 10

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrOrderNotOwned      = errors.New("order not owned by this session")
)

// OrderEngine is the subset of the engine the gateway drives.
type OrderEngine interface {
	AddOrder(ctx context.Context, order *common.Order) (engine.AddResult, error)
	ModifyOrder(ctx context.Context, modify common.OrderModify) (engine.AddResult, error)
	CancelOrder(ctx context.Context, id common.OrderID) error
	Levels(ctx context.Context) (common.OrderBookLevels, error)
}

type Config struct {
	Address string
	Port    int
	// Workers bounds the number of concurrently served connections.
	Workers uint
	// ConnTimeout closes connections idle for longer. Zero disables it.
	ConnTimeout time.Duration
}

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	id   uuid.UUID
	conn net.Conn

	writeLock sync.Mutex
}

func (c *ClientSession) send(report protocol.Report) error {
	b, err := report.Serialize()
	if err != nil {
		return err
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	_, err = c.conn.Write(b)
	return err
}

// Server translates client messages into engine calls and routes the
// resulting execution reports to the sessions owning each side of a trade.
type Server struct {
	address     string
	port        int
	connTimeout time.Duration
	engine      OrderEngine
	pool        *utils.WorkerPool

	ready    chan struct{}
	listener net.Listener

	// Guards sessions and owners.
	lock     sync.Mutex
	sessions map[uuid.UUID]*ClientSession
	owners   map[common.OrderID]*ownership
}

// ownership ties an order id to the session that submitted it. Each claim is
// a distinct value so a late release cannot drop a newer claim on the same id.
type ownership struct {
	session uuid.UUID
}

func New(cfg Config, eng OrderEngine) *Server {
	workers := cfg.Workers
	if workers == 0 {
		workers = defaultNWorkers
	}
	return &Server{
		address:     cfg.Address,
		port:        cfg.Port,
		connTimeout: cfg.ConnTimeout,
		engine:      eng,
		pool:        utils.NewWorkerPool(workers),
		ready:       make(chan struct{}),
		sessions:    make(map[uuid.UUID]*ClientSession),
		owners:      make(map[common.OrderID]*ownership),
	}
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listening address. Only valid after Ready.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Run serves clients until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("unable to start listener: %w", err)
	}
	s.listener = listener
	close(s.ready)

	// Start the worker pool.
	s.pool.Setup(t, s.handleConnection)

	// Start accepting connections.
	t.Go(func() error {
		return s.accept(t)
	})

	// Unblock Accept and any pending reads on shutdown.
	t.Go(func() error {
		<-t.Dying()
		log.Info().Msg("server shutting down")
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
		s.closeClientSessions()
		return nil
	})

	log.Info().Str("address", listener.Addr().String()).Msg("server running")

	err = t.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) accept(t *tomb.Tomb) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-t.Dying():
				return nil
			default:
			}
			log.Error().Err(err).Msg("error accepting client")
			continue
		}

		// Add the client to client sessions we are tracking.
		// We expect to potentially maintain a long TCP session.
		session := s.addClientSession(conn)
		log.Info().
			Str("address", conn.RemoteAddr().String()).
			Stringer("session", session.id).
			Msg("new client added")

		// Pass over the connection to be read from.
		if !s.pool.AddTask(t, session) {
			s.deleteClientSession(session)
			return nil
		}
	}
}

// handleConnection is a worker method which reads messages off a session
// until the client goes away, the connection idles out or the server stops.
// Client misbehaviour is never fatal to the pool.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	session, ok := task.(*ClientSession)
	if !ok {
		return ErrImproperConversion
	}
	defer s.deleteClientSession(session)

	ctx := t.Context(nil)
	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		if s.connTimeout > 0 {
			if err := session.conn.SetReadDeadline(time.Now().Add(s.connTimeout)); err != nil {
				log.Error().
					Err(err).
					Stringer("session", session.id).
					Msg("failed setting deadline for connection")
				return nil
			}
		}

		message, err := protocol.ReadMessage(session.conn)
		if err != nil {
			s.handleReadError(session, err)
			return nil
		}
		metrics.GatewayMessagesTotal.WithLabelValues(message.GetType().String()).Inc()

		if err := s.handleMessage(ctx, session, message); err != nil {
			if errors.Is(err, engine.ErrEngineStopped) || errors.Is(err, context.Canceled) {
				return nil
			}
			log.Error().
				Err(err).
				Stringer("session", session.id).
				Stringer("type", message.GetType()).
				Msg("error handling message")
		}
	}
}

func (s *Server) handleReadError(session *ClientSession, err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		log.Info().Stringer("session", session.id).Msg("client disconnected")
	case errors.Is(err, os.ErrDeadlineExceeded):
		log.Info().Stringer("session", session.id).Msg("closing idle connection")
	case errors.Is(err, protocol.ErrInvalidMessageType):
		// The stream cannot be resynchronised past an unknown frame.
		log.Warn().Err(err).Stringer("session", session.id).Msg("error parsing message")
		_ = session.send(protocol.NewErrorReport(err))
	default:
		log.Error().Err(err).Stringer("session", session.id).Msg("error reading from connection")
	}
}

// handleMessage applies one client message. Validation failures are
// reported back to the client; only transport and engine failures are
// returned.
func (s *Server) handleMessage(ctx context.Context, session *ClientSession, message protocol.Message) error {
	switch m := message.(type) {
	case protocol.NewOrderMessage:
		order, err := m.Order()
		if err != nil {
			return session.send(protocol.NewErrorReport(err))
		}
		claim, fresh, ok := s.claimOrder(order.ID(), session)
		if !ok {
			return session.send(protocol.NewErrorReport(fmt.Errorf("%w: %d", ErrOrderNotOwned, order.ID())))
		}
		result, err := s.engine.AddOrder(ctx, order)
		if err != nil {
			if fresh {
				s.releaseOrder(order.ID(), claim)
			}
			return err
		}
		// A rejected duplicate must not release the order already resting
		// under the same id.
		release := result.Resting == 0 && (result.Accepted || fresh)
		return s.respond(session, order.ID(), claim, result, release)

	case protocol.ModifyOrderMessage:
		claim, ok := s.ownedBy(m.OrderID, session)
		if !ok {
			return session.send(protocol.NewErrorReport(fmt.Errorf("%w: %d", ErrOrderNotOwned, m.OrderID)))
		}
		result, err := s.engine.ModifyOrder(ctx, m.Modify())
		if errors.Is(err, common.ErrZeroQuantity) || errors.Is(err, common.ErrInvalidSide) {
			return session.send(protocol.NewErrorReport(err))
		}
		if err != nil {
			return err
		}
		return s.respond(session, m.OrderID, claim, result, result.Resting == 0)

	case protocol.CancelOrderMessage:
		claim, ok := s.ownedBy(m.OrderID, session)
		if !ok {
			if s.hasOwner(m.OrderID) {
				return session.send(protocol.NewErrorReport(fmt.Errorf("%w: %d", ErrOrderNotOwned, m.OrderID)))
			}
			// Nothing this session could cancel: a no-op, like an unknown id.
			return session.send(protocol.NewAckReport(m.OrderID, false, 0))
		}
		if err := s.engine.CancelOrder(ctx, m.OrderID); err != nil {
			return err
		}
		s.releaseOrder(m.OrderID, claim)
		return session.send(protocol.NewAckReport(m.OrderID, true, 0))

	case protocol.BaseMessage:
		if m.GetType() != protocol.GetLevels {
			// Heartbeats only refresh the read deadline.
			return nil
		}
		levels, err := s.engine.Levels(ctx)
		if err != nil {
			return err
		}
		return session.send(protocol.NewLevelsReport(levels))
	}
	return ErrImproperConversion
}

// respond acknowledges an admission to its session and routes execution
// reports for every trade it produced. Orders the admission took off the book
// are released once their reports are out; with release set, so is id.
func (s *Server) respond(
	session *ClientSession,
	id common.OrderID,
	claim *ownership,
	result engine.AddResult,
	release bool,
) error {
	err := session.send(protocol.NewAckReport(id, result.Accepted, result.Resting))

	routed := make(map[common.OrderID]*ownership, 2*len(result.Trades))
	for _, trade := range result.Trades {
		bid, ask := protocol.NewExecutionReports(trade)
		routed[bid.OrderID] = s.route(bid)
		routed[ask.OrderID] = s.route(ask)
	}
	for _, removed := range result.Removed {
		if owner := routed[removed]; owner != nil {
			s.releaseOrder(removed, owner)
		}
	}
	if release {
		s.releaseOrder(id, claim)
	}
	return err
}

// route delivers an execution report to the session owning its order and
// returns the ownership it was routed by, if any.
func (s *Server) route(report protocol.Report) *ownership {
	s.lock.Lock()
	owner := s.owners[report.OrderID]
	var session *ClientSession
	if owner != nil {
		session = s.sessions[owner.session]
	}
	s.lock.Unlock()
	if session == nil {
		log.Debug().Uint64("id", report.OrderID).Msg("no session for execution report")
		return owner
	}

	if err := session.send(report); err != nil {
		log.Error().
			Err(err).
			Stringer("session", session.id).
			Uint64("id", report.OrderID).
			Msg("unable to send execution report")
	}
	return owner
}

// claimOrder records session as the owner of id unless another session
// already owns it. fresh is set when id had no owner before. A session
// reclaiming its own id gets a new claim.
func (s *Server) claimOrder(id common.OrderID, session *ClientSession) (claim *ownership, fresh bool, ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	owner, exists := s.owners[id]
	if exists && owner.session != session.id {
		return nil, false, false
	}
	claim = &ownership{session: session.id}
	s.owners[id] = claim
	return claim, !exists, true
}

// ownedBy returns the claim session holds on id. Ids nobody owns are not
// owned by any session.
func (s *Server) ownedBy(id common.OrderID, session *ClientSession) (*ownership, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	owner, ok := s.owners[id]
	if !ok || owner.session != session.id {
		return nil, false
	}
	return owner, true
}

func (s *Server) hasOwner(id common.OrderID) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, ok := s.owners[id]
	return ok
}

// releaseOrder drops claim on id unless id has been claimed again since.
func (s *Server) releaseOrder(id common.OrderID, claim *ownership) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.owners[id] == claim {
		delete(s.owners, id)
	}
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(conn net.Conn) *ClientSession {
	s.lock.Lock()
	defer s.lock.Unlock()

	session := &ClientSession{id: uuid.New(), conn: conn}
	s.sessions[session.id] = session
	metrics.GatewaySessions.Inc()
	return session
}

// deleteClientSession is an atomic map remove. Orders the session placed stay
// on the book but no longer have anyone to report to.
func (s *Server) deleteClientSession(session *ClientSession) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.sessions[session.id]; !ok {
		return
	}
	delete(s.sessions, session.id)
	for id, owner := range s.owners {
		if owner.session == session.id {
			delete(s.owners, id)
		}
	}
	metrics.GatewaySessions.Dec()

	if err := session.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Error().Err(err).Stringer("session", session.id).Msg("unable to close connection")
	}
}

func (s *Server) closeClientSessions() {
	s.lock.Lock()
	sessions := make([]*ClientSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.lock.Unlock()

	for _, session := range sessions {
		s.deleteClientSession(session)
	}
}
