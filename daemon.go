// Package datarouter provides the main API for running a DataRouter
// session daemon: accepting producer connections over the short-message
// control channel, scheduling per-session ring drains, and fanning
// decoded records out to UDP channels (spec.md §§4.1-4.5).
//
// Grounded on the teacher's root backend.go: a context-scoped top-level
// type (Device there, Daemon here) built by a single constructor
// (CreateAndServe there, NewDaemon/Run here) that wires a controller, a
// metrics instance, and a set of worker goroutines, then exposes
// Stop/Close for shutdown.
package datarouter

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse-score/datarouter-go/internal/channel"
	"github.com/eclipse-score/datarouter-go/internal/clock"
	"github.com/eclipse-score/datarouter-go/internal/constants"
	"github.com/eclipse-score/datarouter-go/internal/errkind"
	"github.com/eclipse-score/datarouter-go/internal/logging"
	"github.com/eclipse-score/datarouter-go/internal/ring"
	"github.com/eclipse-score/datarouter-go/internal/router"
	"github.com/eclipse-score/datarouter-go/internal/scheduler"
	"github.com/eclipse-score/datarouter-go/internal/session"
	"github.com/eclipse-score/datarouter-go/internal/shm"
	"github.com/eclipse-score/datarouter-go/internal/shortmsg"
	"github.com/eclipse-score/datarouter-go/internal/store"
	"github.com/eclipse-score/datarouter-go/internal/uring"
	"github.com/eclipse-score/datarouter-go/internal/wire"
)

// ChannelSpec configures one routing destination.
type ChannelSpec struct {
	Name    string
	Mask    channel.Mask
	Dest    string // host:port UDP destination
	Verbose bool
}

// Config configures a Daemon.
type Config struct {
	Logger        *logging.Logger
	RingHalfBytes int
	Channels      []ChannelSpec
	TypeRoutes    map[wire.TypeIdentifier]channel.Mask
	DefaultMask   channel.Mask

	// SessionQuotaKBps is the bandwidth cap applied to every connecting
	// producer (spec.md §3/§4.5 "Quota" is a per-source property, not a
	// per-channel one); zero disables enforcement.
	SessionQuotaKBps uint64

	SchedulerIdleTick time.Duration
}

func (c *Config) setDefaults() {
	if c.RingHalfBytes == 0 {
		c.RingHalfBytes = constants.DefaultRingHalfBytes
	}
	if c.SchedulerIdleTick == 0 {
		c.SchedulerIdleTick = constants.SchedulerIdleTick
	}
}

// Daemon accepts producer connections and drains their buffered
// records to the configured channels.
type Daemon struct {
	cfg    Config
	logger *logging.Logger

	endpoint *shortmsg.Endpoint
	udpConn  *net.UDPConn
	sink     uring.Sink
	router   *router.Router
	sched    *scheduler.Scheduler

	mu          sync.Mutex
	sessions    map[int32]*sessionState
	sessionByID map[string]*sessionState
	nextPID     atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type sessionState struct {
	sess    *session.Session
	mapping *shm.Mapping
}

// NewDaemon constructs a Daemon bound to its well-known control-channel
// socket and UDP channels, but does not yet start serving.
func NewDaemon(cfg Config) (*Daemon, error) {
	cfg.setDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	endpoint, err := shortmsg.Listen(shortmsg.DaemonSocketPath())
	if err != nil {
		return nil, errkind.Wrap("NewDaemon", errkind.ConfigError, err)
	}

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		endpoint.Close()
		return nil, errkind.Wrap("NewDaemon", errkind.ConfigError, err)
	}

	sink, err := uring.New(uring.Config{FD: socketFD(udpConn), Conn: udpConn})
	if err != nil {
		endpoint.Close()
		udpConn.Close()
		return nil, errkind.Wrap("NewDaemon", errkind.ConfigError, err)
	}

	r := router.New(logger)
	r.SetDefaultMask(cfg.DefaultMask)
	for typeID, mask := range cfg.TypeRoutes {
		r.SetRoute(typeID, mask)
	}

	now := time.Now()
	for _, spec := range cfg.Channels {
		dest, err := net.ResolveUDPAddr("udp", spec.Dest)
		if err != nil {
			endpoint.Close()
			udpConn.Close()
			return nil, errkind.Wrap("NewDaemon", errkind.ConfigError, err)
		}
		ch := channel.New(spec.Name, spec.Mask, dest, spec.Verbose, sink, now)
		r.AddChannel(ch)
	}

	d := &Daemon{
		cfg:         cfg,
		logger:      logger,
		endpoint:    endpoint,
		udpConn:     udpConn,
		sink:        sink,
		router:      r,
		sessions:    make(map[int32]*sessionState),
		sessionByID: make(map[string]*sessionState),
	}
	d.sched = scheduler.New(d, logger, cfg.SchedulerIdleTick)
	return d, nil
}

// Run starts the control-channel receive loop and the scheduler worker,
// blocking until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.sched.Run(d.ctx)
	}()
	go func() {
		defer d.wg.Done()
		d.receiveLoop()
	}()
	go d.keepaliveScanner()

	<-d.ctx.Done()
	d.wg.Wait()
	return nil
}

// Stop cancels the daemon's run loop and releases its sockets.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.endpoint.Close()
	d.sink.Close()
	d.udpConn.Close()
}

func (d *Daemon) receiveLoop() {
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		msg, err := d.endpoint.Recv(time.Now().Add(constants.SchedulerIdleTick))
		if err != nil {
			continue
		}
		d.handleMessage(msg)
	}
}

func (d *Daemon) handleMessage(msg shortmsg.Message) {
	switch msg.Tag {
	case wire.TagConnect:
		d.handleConnect(msg)
	case wire.TagAcquireResponse:
		d.handleAcquireResponse(msg)
	case wire.TagAcquireRequest:
		// Only the daemon ever sends this tag (spec.md §4.3); a peer
		// that sends it back is misbehaving, not a protocol case to
		// react to.
		d.logger.Warn("received AcquireRequest on daemon's receive socket", "peer", msg.From.String())
	default:
		d.logger.Warn("unknown control tag", "tag", msg.Tag)
	}
}

func (d *Daemon) handleConnect(msg shortmsg.Message) {
	m, err := wire.UnmarshalConnect(msg.Payload)
	if err != nil {
		d.logger.WithError(err).Warn("malformed Connect")
		return
	}

	appID := string(trimNulls(m.AppID[:]))
	peerKey := msg.From.String()

	d.mu.Lock()
	prior, hadPrior := d.sessionByID[peerKey]
	d.mu.Unlock()

	if hadPrior {
		// spec.md §4.4 Reconnect: force-finish and fully drain the
		// session previously registered under this identity before the
		// new one takes its place, so buffered records aren't lost and
		// the mapping isn't leaked.
		prior.sess.SetBits(session.ToForceFinish)
		d.sched.EnqueueFront(prior.sess)
		d.sched.WaitDrained(prior.sess)
	}

	var shmPath string
	if m.UseDynamicID {
		shmPath = shm.DynamicPath(string(m.RandomSuffix[:]))
	} else {
		shmPath = shm.StaticPath(appID, m.UID)
	}

	mapping, err := shm.Open(shmPath, d.cfg.RingHalfBytes*2)
	if err != nil {
		d.logger.WithError(err).Warn("failed to open producer shared memory")
		return
	}

	r := ring.NewOverBuffer(mapping.Bytes())
	st := store.New(r)

	pid := d.nextPID.Add(1)
	sess := session.New(pid, appID, msg.From, st)
	sess.SetQuota(d.cfg.SessionQuotaKBps)

	d.mu.Lock()
	state := &sessionState{sess: sess, mapping: mapping}
	d.sessions[pid] = state
	d.sessionByID[peerKey] = state
	d.mu.Unlock()

	d.sched.Register(sess)
	d.logger.WithSession(pid).Info("session connected", "app_id", appID)
}

// handleAcquireResponse is the daemon's receive handler for a
// producer's reply to an AcquireRequest it sent (spec.md §4.3). It only
// records the retired half the producer already switched out and wakes
// the scheduler; the actual drainability check and read happen only
// inside Tick, on the scheduler's single worker.
func (d *Daemon) handleAcquireResponse(msg shortmsg.Message) {
	m, err := wire.UnmarshalAcquireResponse(msg.Payload)
	if err != nil {
		d.logger.WithError(err).Warn("malformed AcquireResponse")
		return
	}

	d.mu.Lock()
	state, ok := d.sessionByID[msg.From.String()]
	d.mu.Unlock()
	if !ok {
		d.logger.Warn("AcquireResponse from unknown peer", "peer", msg.From.String())
		return
	}

	state.sess.SetDataAcquired(m.AcquiredBuffer)
	d.sched.Enqueue(state.sess)
}

// keepaliveScanner periodically enqueues every known session so the
// scheduler's single worker can decide, inside Tick, whether enough
// idle ticks have passed without an AcquireRequest to issue a keepalive
// one (spec.md §4.4 step 5 / constants.KTicksWithoutAcquireWhileNoWrites,
// see SPEC_FULL.md's supplemented keepalive feature). It is an OS-driven
// callback per spec.md §5 and therefore never touches session or ring
// state itself — it only enqueues.
func (d *Daemon) keepaliveScanner() {
	ticker := time.NewTicker(d.cfg.SchedulerIdleTick)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			states := make([]*sessionState, 0, len(d.sessions))
			for _, st := range d.sessions {
				states = append(states, st)
			}
			d.mu.Unlock()

			for _, st := range states {
				d.sched.Enqueue(st.sess)
			}
		}
	}
}

// Tick implements scheduler.Handler. It runs only on the scheduler's
// single worker goroutine and is the only place ring halves are drained
// or reset and AcquireRequests are sent. keepaliveScanner only enqueues;
// receiveLoop's handlers also set session fields under the session's
// mutex (connect-time quota and ToForceFinish, an AcquireResponse's
// retired half) before enqueuing.
func (d *Daemon) Tick(sess *session.Session) error {
	if st := sess.State(); st.Has(session.ClosedByPeer) || st.Has(session.ToForceFinish) {
		return d.detachDrain(sess)
	}

	if half, ok := sess.DataAcquired(); ok {
		if !sess.Store.Ring().IsBlockReleasedByWriters(half) {
			// Not yet released by every writer that had acquired space
			// before the Switch; retry on the session's next tick
			// instead of blocking the scheduler's single worker.
			return nil
		}
		return d.finalizeDrain(sess, half)
	}

	if !sess.AcquireInFlight() {
		sess.RecordTickWithoutAcquire()
		if sess.NeedsKeepaliveAcquire() {
			d.sendAcquireRequest(sess)
		}
	}
	return nil
}

// finalizeDrain reads a retired half the producer has finished
// releasing and resets it unconditionally, even if the drain itself
// failed, so a single bad tick can never leave the half permanently
// unusable (spec.md §4.2/§7).
func (d *Daemon) finalizeDrain(sess *session.Session, half uint32) error {
	err := d.router.Drain(sess, half, false)
	sess.Store.Ring().Half(half).Reset()
	sess.ClearDataAcquired()
	sess.ResetAcquireCadence(clock.Now())
	if err != nil {
		return errkind.ForSession(err, fmt.Sprintf("%d", sess.PID))
	}
	return nil
}

// detachDrain performs the spec.md §4.4 "detach-drain": a tolerant read
// of both halves (the producer may have been mid-write on whichever
// half was active), used for both an actual peer disconnect and an
// administrative ToForceFinish. Each half is reset regardless of the
// read outcome, same as finalizeDrain.
func (d *Daemon) detachDrain(sess *session.Session) error {
	var firstErr error
	for half := uint32(0); half < 2; half++ {
		if err := d.router.Drain(sess, half, true); err != nil && firstErr == nil {
			firstErr = errkind.ForSession(err, fmt.Sprintf("%d", sess.PID))
		}
		sess.Store.Ring().Half(half).Reset()
	}
	return firstErr
}

// sendAcquireRequest asks sess's producer to switch its active half,
// per spec.md §4.3. The producer itself performs the switch and the
// actual retired-half id only becomes known once its AcquireResponse
// arrives (handleAcquireResponse); the daemon never calls Ring.Switch.
func (d *Daemon) sendAcquireRequest(sess *session.Session) {
	if sess.PeerAddr == nil {
		return
	}

	buf := make([]byte, 1)
	wire.MarshalAcquireRequest(buf)
	if err := d.endpoint.SendTo(sess.PeerAddr, buf); err != nil {
		d.logger.WithSession(sess.PID).WithError(err).Warn("failed to send AcquireRequest")
		return
	}
	sess.MarkAcquireSent(clock.Now())
}

// OnSessionClosed implements scheduler.Handler, releasing a session's
// shared-memory mapping once the scheduler has finished draining it.
func (d *Daemon) OnSessionClosed(sess *session.Session) {
	d.mu.Lock()
	state, ok := d.sessions[sess.PID]
	if ok {
		delete(d.sessions, sess.PID)
		if sess.PeerAddr != nil {
			delete(d.sessionByID, sess.PeerAddr.String())
		}
	}
	d.mu.Unlock()

	if ok {
		if err := state.mapping.Close(); err != nil {
			d.logger.WithSession(sess.PID).WithError(err).Warn("failed to unmap session")
		}
	}
}

func socketFD(conn *net.UDPConn) int32 {
	sc, err := conn.SyscallConn()
	if err != nil {
		return -1
	}
	var fd int32 = -1
	_ = sc.Control(func(f uintptr) { fd = int32(f) })
	return fd
}

func trimNulls(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}
