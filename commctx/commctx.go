// Package commctx attaches a hidden communication context to each
// communicator: a private duplicate for library-internal traffic plus a
// monotonically increasing message tag, and, for inter-communicators, a
// merged-then-restricted local communicator with a deterministic
// ordering of the two groups. Internal protocol exchanges obtained here
// can never collide with application messages on the same handle.
package commctx

import (
	"errors"
	"sync"

	"github.com/gompi/gompi/comm"
	"github.com/gompi/gompi/log"
)

// defaultTagUB is the conservative tag ceiling used when the runtime
// cannot report a tag upper bound of its own.
const defaultTagUB = 32767

// Record is the hidden per-communicator state. It is owned exclusively
// by the communicator's attribute slot and released by the attribute
// destructor when the communicator is freed.
type Record struct {
	dup      *comm.Comm
	tag      int
	tagUB    int
	local    *comm.Comm
	lowGroup int
}

// Allocator supplies the storage for context records. The default uses
// plain allocation; a replacement must provide both capabilities.
type Allocator struct {
	New  func() (*Record, error)
	Free func(*Record)
}

var defaultAllocator = Allocator{
	New:  func() (*Record, error) { return new(Record), nil },
	Free: func(*Record) {},
}

var alloc = defaultAllocator

// SetAllocator replaces the record allocator; zero fields fall back to
// the default behavior. It must not be called while lookups are in
// flight.
func SetAllocator(a Allocator) {
	if a.New == nil {
		a.New = defaultAllocator.New
	}
	if a.Free == nil {
		a.Free = defaultAllocator.Free
	}
	alloc = a
}

// registry is the per-process bootstrap state: the keyval under which
// every communicator carries its record, the companion keyval whose
// sole registration (a nil value on the self communicator) triggers
// cleanup of both keyvals at process teardown, and the tag ceiling
// discovered once and copied into every record.
type registry struct {
	commKeyval int
	selfKeyval int
	tagUB      int
}

var (
	mu         sync.Mutex
	registries = make(map[*comm.Proc]*registry)
)

var errNotInterComm = errors.New("commctx: not an inter-communicator")

// ensure lazily performs the one-time bootstrap for a process. On any
// failure no partial state is kept, so a later call retries the whole
// bootstrap.
func ensure(p *comm.Proc) (*registry, error) {
	mu.Lock()
	defer mu.Unlock()
	if r, ok := registries[p]; ok {
		return r, nil
	}
	r := &registry{tagUB: discoverTagUB(p)}
	r.commKeyval = p.NewKeyval(freeFn, nil)
	r.selfKeyval = p.NewKeyval(freeFn, r)
	if err := p.Self().SetAttr(r.selfKeyval, nil); err != nil {
		p.FreeKeyval(r.selfKeyval)
		p.FreeKeyval(r.commKeyval)
		return nil, err
	}
	registries[p] = r
	return r, nil
}

func discoverTagUB(p *comm.Proc) int {
	if ub, ok := p.TagUB(); ok {
		return ub
	}
	return defaultTagUB
}

// freeFn is the shared destructor behind both registrations. A nil
// value on the self communicator marks the bootstrap registration:
// free both keyvals and forget the process. Any other registration owns
// a record: release its communicators (best effort, destructors cannot
// propagate failures) and return it to the allocator.
func freeFn(c *comm.Comm, k int, val, extra interface{}) error {
	p := c.Proc()
	if val == nil && c == p.Self() {
		if r, ok := extra.(*registry); ok {
			p.FreeKeyval(k)
			p.FreeKeyval(r.commKeyval)
			mu.Lock()
			delete(registries, p)
			mu.Unlock()
		}
		return nil
	}
	rec, ok := val.(*Record)
	if !ok || rec == nil {
		return nil
	}
	if rec.local != nil {
		if err := rec.local.Free(); err != nil {
			log.Warnf("releasing local comm: %v", err)
		}
	}
	if rec.dup != nil {
		if err := rec.dup.Free(); err != nil {
			log.Warnf("releasing private comm: %v", err)
		}
	}
	alloc.Free(rec)
	return nil
}

// lookup returns the context record for c, creating it on first
// access. Creation duplicates c, which is collective: every member of c
// must reach its first lookup at a matching point, or the job deadlocks.
// The record is attached before duplicating so a failed duplication
// still leaves it discoverable for cleanup.
func lookup(c *comm.Comm) (*Record, error) {
	r, err := ensure(c.Proc())
	if err != nil {
		return nil, err
	}
	if v, ok := c.GetAttr(r.commKeyval); ok {
		rec := v.(*Record)
		rec.reclaimTag()
		return rec, nil
	}
	rec, err := alloc.New()
	if err != nil {
		c.CallErrHandler(comm.ErrInternal)
		return nil, comm.ErrInternal
	}
	rec.dup, rec.local = nil, nil
	rec.tag, rec.tagUB = 0, r.tagUB
	rec.lowGroup = -1
	if err := c.SetAttr(r.commKeyval, rec); err != nil {
		alloc.Free(rec)
		return nil, err
	}
	dup, err := c.Dup()
	if err != nil {
		return nil, err
	}
	rec.dup = dup
	return rec, nil
}

// reclaimTag re-establishes 0 <= tag < tagUB before an issuance.
func (rec *Record) reclaimTag() {
	if rec.tag >= rec.tagUB {
		rec.tag = 0
	}
}

func (rec *Record) issueTag() int {
	tag := rec.tag
	rec.tag++
	return tag
}

// Lookup returns the private communicator and a fresh tag for c.
// First-time lookup duplicates c and is therefore collective; later
// calls only advance the tag counter. Each issued tag must be consumed
// by exactly one internal protocol exchange.
func Lookup(c *comm.Comm) (*comm.Comm, int, error) {
	rec, err := lookup(c)
	if err != nil {
		return nil, 0, err
	}
	return rec.dup, rec.issueTag(), nil
}

// LookupInter is Lookup for inter-communicators, additionally returning
// the communicator of this process's own group carved out of the merged
// pair, and the group order: 0 when this side is the low group, 1 when
// it is the high one. The larger group is low; equal sizes are split by
// the merged ranking (merged rank below the local size means low). The
// first call runs the collective merge/create sequence; every member of
// both groups must reach it at a matching point.
func LookupInter(c *comm.Comm) (*comm.Comm, int, *comm.Comm, int, error) {
	if !c.IsInter() {
		return nil, 0, nil, 0, errNotInterComm
	}
	rec, err := lookup(c)
	if err != nil {
		return nil, 0, nil, 0, err
	}
	if rec.local == nil {
		if err := rec.deriveLocal(c); err != nil {
			return nil, 0, nil, 0, err
		}
	}
	return rec.dup, rec.issueTag(), rec.local, rec.lowGroup, nil
}

// deriveLocal runs the one-time intergroup setup: merge both groups
// into a flat communicator, record this process's rank there, restrict
// the merge back down to the local group, and classify the two sides.
// Only the restricted communicator survives.
func (rec *Record) deriveLocal(c *comm.Comm) error {
	localSize, remoteSize := c.Size(), c.RemoteSize()
	merged, err := c.Merge(localSize > remoteSize)
	if err != nil {
		return err
	}
	mergeRank := merged.Rank()
	local, err := merged.Create(c.Group())
	if err != nil {
		merged.Free()
		return err
	}
	merged.Free()
	rec.local = local
	switch {
	case localSize > remoteSize:
		rec.lowGroup = 0
	case localSize < remoteSize:
		rec.lowGroup = 1
	case mergeRank < localSize:
		rec.lowGroup = 0
	default:
		rec.lowGroup = 1
	}
	return nil
}
