// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tuyaopen/ai-monitor/internal/config"
	"github.com/tuyaopen/ai-monitor/internal/protocol"
)

// serviceState is the Lifecycle Controller's state enum. It replaces the
// original's two independent booleans (`running`,
// `server_fd valid`) with one value that can never represent an
// unreachable combination of the two.
type serviceState int

const (
	stateUninit serviceState = iota
	stateInitialized
	stateWaitingActivation
	stateListening
	stateStopped
)

func (s serviceState) String() string {
	switch s {
	case stateUninit:
		return "uninit"
	case stateInitialized:
		return "initialized"
	case stateWaitingActivation:
		return "waiting_activation"
	case stateListening:
		return "listening"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Service is the AI Monitor Service's owned lifecycle object: constructed
// by New, torn down by Deinit, replacing the original's
// process-global server struct and mutex.
type Service struct {
	cfg config.MonitorConfig

	netmgr     NetworkManager
	activation ActivationState
	loop       SocketLoop
	encoder    BizEncoder
	registrar  BizRegistrar
	logger     *slog.Logger
	logSink    LogSink

	table     *ClientTable
	limiters  *clientLimiters
	inbound   *inboundHandler
	fanout    *fanoutDispatcher
	broadcast *Broadcaster

	mu       sync.Mutex
	state    serviceState
	listener net.Listener

	cron          *cron.Cron
	activationJob cron.EntryID
	healthJob     cron.EntryID
}

// Deps bundles the external collaborators this service registers with, in
// place of the original's scattered global function pointers.
type Deps struct {
	NetworkManager NetworkManager
	Activation     ActivationState
	SocketLoop     SocketLoop
	Encoder        BizEncoder
	Registrar      BizRegistrar
	Logger         *slog.Logger
	LogSink        LogSink
}

// New constructs a Service in the Initialized state. It allocates the
// client table and seeds the service's collaborators, but does not yet
// open a listening socket — that only happens once Start's activation
// poll observes the device as activated, matching tuya_ai_monitor_init's
// separation from __create_server_socket.
func New(cfg config.MonitorConfig, deps Deps) (*Service, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SocketLoop == nil || deps.NetworkManager == nil || deps.Activation == nil || deps.Encoder == nil {
		return nil, newError(CodeInvalidArgument, "service.new", fmt.Errorf("missing required dependency"))
	}

	table := NewClientTable(cfg.MaxClients, cfg.RecvBufSize)
	limiters := newClientLimiters()
	inbound := newInboundHandler(deps.Logger, deps.LogSink, nil)

	svc := &Service{
		cfg:        cfg,
		netmgr:     deps.NetworkManager,
		activation: deps.Activation,
		loop:       deps.SocketLoop,
		encoder:    deps.Encoder,
		registrar:  deps.Registrar,
		logger:     deps.Logger,
		logSink:    deps.LogSink,
		table:      table,
		limiters:   limiters,
		inbound:    inbound,
		state:      stateInitialized,
	}
	svc.fanout = newFanoutDispatcher(table, deps.Encoder, rateLimitedWriterFactory(limiters), deps.Logger)
	svc.broadcast = newBroadcaster(svc.dispatchBroadcast)
	return svc, nil
}

// Start transitions the service into its running loop: it registers the
// fan-out hooks with the AI biz layer, and schedules the periodic
// activation-gated listen attempt, mirroring tuya_ai_monitor_start's
// timer-and-hook-registration sequence.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateInitialized {
		s.mu.Unlock()
		return newError(CodeInvalidArgument, "service.start", fmt.Errorf("invalid state %s", s.state))
	}
	s.state = stateWaitingActivation
	s.mu.Unlock()

	if s.registrar != nil {
		s.registrar.RegisterHooks(s.fanout.OnBizRecv, s.fanout.OnBizSend)
	}

	s.cron = cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slogStdAdapter{s.logger})))
	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.ActivationPollInterval), func() {
		s.tryCreateListener(ctx)
	})
	if err != nil {
		return newError(CodeFatal, "service.start", err)
	}
	s.activationJob = entryID

	if s.cfg.HealthSnapshotInterval > 0 {
		if id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.HealthSnapshotInterval), s.broadcastHealthSnapshot); err == nil {
			s.healthJob = id
		}
	}

	s.cron.Start()
	// Attempt immediately too, rather than waiting for the first tick.
	s.tryCreateListener(ctx)
	return nil
}

// tryCreateListener is the periodic timer callback: a no-op while
// already listening, a no-op while the device is not yet activated,
// otherwise an attempt to open the listening socket. On success the
// activation-poll job is removed, mirroring tal_sw_timer_stop.
func (s *Service) tryCreateListener(ctx context.Context) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == stateListening {
		return
	}
	if !s.activation.IsActivated() {
		return
	}

	if err := s.createListener(ctx); err != nil {
		s.logger.Warn("listen attempt failed, will retry", "err", err)
		return
	}

	s.mu.Lock()
	s.state = stateListening
	s.mu.Unlock()

	if s.cron != nil {
		s.cron.Remove(s.activationJob)
	}
}

func (s *Service) createListener(ctx context.Context) error {
	ip, err := s.netmgr.LocalIP(ctx)
	if err != nil {
		return newError(CodeTransient, "service.local_ip", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", ip, s.cfg.Port))
	if err != nil {
		return newError(CodeTransient, "service.listen", err)
	}

	if err := s.loop.RegisterListener(ln, func() { s.onAcceptable(ln) }, s.onListenError); err != nil {
		ln.Close()
		return newError(CodeFatal, "service.register_listener", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("listening", "addr", ln.Addr())
	return nil
}

func (s *Service) onAcceptable(ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		s.onListenError(err)
		return
	}

	slot, ok := s.table.Accept(conn)
	if !ok {
		s.logger.Warn("client table full, rejecting connection", "remote", conn.RemoteAddr())
		conn.Close()
		return
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	if err := s.loop.RegisterConn(slot.id, conn, func() { s.onReadable(slot) }, func(err error) { s.onClientError(slot, err) }); err != nil {
		s.logger.Warn("failed to register client with socket loop", "err", err)
		s.releaseClient(slot)
	}
}

func (s *Service) onReadable(slot *clientSlot) {
	space := slot.recvBuf[slot.recvFilled:]
	if len(space) == 0 {
		// Buffer saturated without a decodable frame boundary: drop it
		// and start fresh rather than wedge this client permanently.
		slot.recvFilled = 0
		space = slot.recvBuf
	}

	n, err := slot.conn.Read(space)
	if err != nil || n == 0 {
		s.onClientError(slot, err)
		return
	}
	slot.recvFilled += n

	processed := 0
	for processed < slot.recvFilled {
		frame, consumed, decErr := protocol.DecodeFrame(slot.recvBuf[processed:slot.recvFilled])
		if consumed == 0 {
			break // partial frame: wait for more data
		}
		processed += consumed
		if decErr != nil {
			s.logger.Warn("dropping bytes during frame resync", "client", slot.id, "err", decErr)
			continue
		}
		if frame == nil {
			continue
		}
		writer := s.writerFor(slot)
		if err := s.inbound.Handle(slot, frame.Body, writer); err != nil {
			s.logger.Debug("inbound packet handling reported an error", "client", slot.id, "err", err)
		}
	}

	remaining := slot.recvFilled - processed
	copy(slot.recvBuf, slot.recvBuf[processed:slot.recvFilled])
	slot.recvFilled = remaining
}

func (s *Service) onClientError(slot *clientSlot, _ error) {
	s.releaseClient(slot)
}

func (s *Service) releaseClient(slot *clientSlot) {
	s.loop.Unregister(slot.id)
	_ = slot.conn.Close()
	s.limiters.forget(slot.id)
	if s.logSink != nil {
		s.logSink.RemoveObserver(uint32(slot.id))
	}
	s.table.Release(slot.id)
}

// onListenError is the listening socket's error callback: mass teardown,
// matching __accept_err's __session_close_all, then fall back to
// activation polling so a fresh listen attempt is made once conditions
// allow.
func (s *Service) onListenError(err error) {
	s.logger.Warn("listener error, tearing down", "err", err)
	s.massTeardown()

	s.mu.Lock()
	s.state = stateWaitingActivation
	s.mu.Unlock()

	if s.cron != nil {
		if id, addErr := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.ActivationPollInterval), func() {
			s.tryCreateListener(context.Background())
		}); addErr == nil {
			s.activationJob = id
		}
	}
}

func (s *Service) massTeardown() {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln != nil {
		s.loop.UnregisterListener()
		ln.Close()
	}

	for _, slot := range s.table.ReleaseAll() {
		s.loop.Unregister(slot.id)
		_ = slot.conn.Close()
		s.limiters.forget(slot.id)
		if s.logSink != nil {
			s.logSink.RemoveObserver(uint32(slot.id))
		}
	}
}

// Stop tears every client and the listener down and halts the activation
// poll, mirroring tuya_ai_monitor_stop.
func (s *Service) Stop() {
	s.massTeardown()
	if s.cron != nil {
		s.cron.Stop()
	}
	s.mu.Lock()
	s.state = stateStopped
	s.mu.Unlock()
}

// Deinit stops the service if still running and releases its resources,
// mirroring tuya_ai_monitor_deinit. The Service must not be reused after
// Deinit returns.
func (s *Service) Deinit() {
	s.mu.Lock()
	running := s.state != stateStopped && s.state != stateUninit
	s.mu.Unlock()
	if running {
		s.Stop()
	}
	s.mu.Lock()
	s.state = stateUninit
	s.mu.Unlock()
}

// Broadcast returns the Broadcast API surface for this service.
func (s *Service) Broadcast() *Broadcaster { return s.broadcast }

// ClientCount reports the number of currently connected observers, exposed
// for the conservation invariant tests and for health snapshots.
func (s *Service) ClientCount() int { return s.table.Count() }

// State reports the current lifecycle state, exposed for tests.
func (s *Service) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}

// ListenAddr reports the bound listening address, or nil if the service
// has not yet opened a listening socket (waiting on activation, or
// stopped).
func (s *Service) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Service) writerFor(slot *clientSlot) PacketWriter {
	return newWriterAdapter(slot, s.limiters.get(slot.id))
}

func (s *Service) dispatchBroadcast(dir Direction, attr PacketAttr, head PacketStreamHead, data []byte) error {
	if !s.cfg.EnableBroadcast {
		return nil
	}
	return s.fanout.dispatch(dir, attr, head, data)
}

func (s *Service) broadcastHealthSnapshot() {
	line := collectHealthSnapshot()
	if err := s.broadcast.BroadcastLog(line); err != nil {
		s.logger.Debug("health snapshot broadcast failed", "err", err)
	}
}

func collectHealthSnapshot() string {
	cpuPct, _ := cpu.Percent(0, false)
	vm, _ := mem.VirtualMemory()
	du, _ := disk.Usage("/")
	la, _ := load.Avg()

	cpuVal := 0.0
	if len(cpuPct) > 0 {
		cpuVal = cpuPct[0]
	}
	memVal, diskVal := 0.0, 0.0
	if vm != nil {
		memVal = vm.UsedPercent
	}
	if du != nil {
		diskVal = du.UsedPercent
	}
	load1 := 0.0
	if la != nil {
		load1 = la.Load1
	}
	return fmt.Sprintf("health cpu=%.1f%% mem=%.1f%% disk=%.1f%% load1=%.2f", cpuVal, memVal, diskVal, load1)
}

// slogStdAdapter lets robfig/cron's Printf-style logger interface write
// through the service's structured logger instead of the standard library
// logger it defaults to.
type slogStdAdapter struct{ logger *slog.Logger }

func (a slogStdAdapter) Printf(format string, v ...interface{}) {
	a.logger.Info(fmt.Sprintf(format, v...))
}
