// Package router implements spec.md §4.5's per-source record handling:
// decoding each entry the scheduler drains from a session's retired
// ring half, resolving its channelmask, and forwarding the payload to
// every matching internal/channel.Channel. Grounded on the teacher's
// backend.go/internal/interfaces Backend+DiscardBackend "optional
// capability interface" pattern (a concrete type implements the base
// interface, and is type-asserted for an optional richer one), applied
// here as scheduler.Handler (the base tick contract) plus Router (the
// concrete per-type dispatch it performs during a tick).
package router

import (
	"github.com/eclipse-score/datarouter-go/internal/channel"
	"github.com/eclipse-score/datarouter-go/internal/clock"
	"github.com/eclipse-score/datarouter-go/internal/logging"
	"github.com/eclipse-score/datarouter-go/internal/session"
	"github.com/eclipse-score/datarouter-go/internal/store"
	"github.com/eclipse-score/datarouter-go/internal/wire"
)

// GlobalHandler observes every decoded application record regardless
// of its type, independent of channel routing; type registration
// records are not passed to it. SPEC_FULL.md's supplemented use is
// a dual-write hook (e.g. an audit sink), which spec.md's distillation
// did not call out but original_source's daemon supports.
type GlobalHandler func(sess *session.Session, entry store.Entry)

// Router dispatches decoded records from sessions' ring halves to
// channels, keyed by the record's TypeIdentifier.
type Router struct {
	logger *logging.Logger

	channels []*channel.Channel
	routes   map[wire.TypeIdentifier]channel.Mask

	// defaultMask is applied to records whose TypeIdentifier has no
	// explicit route, so an application that never calls SetRoute for a
	// type still gets its records fanned out somewhere instead of
	// silently dropped.
	defaultMask channel.Mask

	globalHandlers []GlobalHandler

	typeNames map[wire.TypeIdentifier]string
}

// New creates an empty Router.
func New(logger *logging.Logger) *Router {
	return &Router{
		logger:    logger,
		routes:    make(map[wire.TypeIdentifier]channel.Mask),
		typeNames: make(map[wire.TypeIdentifier]string),
	}
}

// AddChannel registers a channel as a fan-out destination.
func (r *Router) AddChannel(ch *channel.Channel) {
	r.channels = append(r.channels, ch)
}

// SetRoute assigns the channelmask used for records of typeID.
func (r *Router) SetRoute(typeID wire.TypeIdentifier, mask channel.Mask) {
	r.routes[typeID] = mask
}

// SetDefaultMask sets the fallback mask applied to unrouted types.
func (r *Router) SetDefaultMask(mask channel.Mask) {
	r.defaultMask = mask
}

// AddGlobalHandler registers a handler invoked for every decoded
// application record, in addition to channel routing.
func (r *Router) AddGlobalHandler(h GlobalHandler) {
	r.globalHandlers = append(r.globalHandlers, h)
}

// Drain reads every framed entry out of the session's given half
// (ordinarily the half ring.Switch just retired) and routes it. When
// detached is true it uses store.ReadDetached, tolerating a truncated
// trailing entry left by a peer that disconnected mid-write (spec.md
// §4.4 "detach-drain").
func (r *Router) Drain(sess *session.Session, halfID uint32, detached bool) error {
	fn := func(entry store.Entry) error {
		r.dispatch(sess, entry)
		return nil
	}
	if detached {
		return sess.Store.ReadDetached(halfID, fn)
	}
	return sess.Store.Read(halfID, fn)
}

func (r *Router) dispatch(sess *session.Session, entry store.Entry) {
	if entry.Header.TypeID == wire.RegisterTypeToken {
		r.recordRegistration(entry)
		return
	}

	now := clock.Now()
	sess.RecordBytesRouted(uint64(wire.EntryOverhead+len(entry.Payload)), now)

	for _, h := range r.globalHandlers {
		h(sess, entry)
	}

	// spec.md §4.5 "Quota": a session latched over its bandwidth cap
	// still has its records consumed from the ring, they just aren't
	// fanned out to any channel while the latch holds.
	if sess.QuotaOverlimit() {
		return
	}

	mask, ok := r.routes[entry.Header.TypeID]
	if !ok {
		mask = r.defaultMask
	}
	if mask == 0 {
		return
	}

	for _, ch := range r.channels {
		if !ch.Matches(mask) {
			continue
		}
		if err := ch.Route(entry.Payload, now); err != nil && r.logger != nil {
			r.logger.WithSession(sess.PID).WithChannel(ch.Name).WithError(err).Warn("record not routed")
		}
	}
}

func (r *Router) recordRegistration(entry store.Entry) {
	if len(entry.Payload) < wire.RegistrationHeaderSize {
		return
	}
	typeID, err := wire.GetRegistrationTypeID(entry.Payload)
	if err != nil {
		return
	}
	name := string(entry.Payload[wire.RegistrationHeaderSize:])
	r.typeNames[typeID] = name
}

// TypeName returns the last name registered for typeID, or "" if none
// has been observed yet.
func (r *Router) TypeName(typeID wire.TypeIdentifier) string {
	return r.typeNames[typeID]
}
