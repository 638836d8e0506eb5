package sandbox

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode governs how the Memory backend resolves a request's container pair.
type Mode string

const (
	// ModeOff disables sandboxing entirely: every caller shares the single
	// well-known container pair.
	ModeOff Mode = "off"
	// ModeAuto silently checks out a new owner for any task that has not
	// been explicitly allowed to one.
	ModeAuto Mode = "auto"
	// ModeManual requires every task to be explicitly Allow'd to an owner;
	// unallowed tasks fail container resolution.
	ModeManual Mode = "manual"
	// ModeShared falls back unallowed tasks to a designated owner's
	// containers (set via SetShared) instead of failing, while still
	// honoring explicit allowances.
	ModeShared Mode = "shared"
)

// DefaultMode is the mode a freshly constructed Registry, or one reset via
// ResetMode, starts in. In auto mode, a task with no owner and no
// allowance gets a fresh owner per call to Resolve: a caller that wants a
// single store to persist across requests must either request ModeOff or
// carry an explicit sandbox owner allowance on every request.
const DefaultMode = ModeAuto

type owner struct {
	buckets *Container
	objects *Container
}

// Registry is the sandbox registry: it tracks owners (each backed by two
// in-memory containers) and the allowance map from requesting TaskID to the
// owner TaskID whose containers it should use.
type Registry struct {
	mu          sync.Mutex
	mode        Mode
	owners      map[TaskID]*owner
	allowances  map[TaskID]TaskID
	stops       map[TaskID]chan struct{}
	shared      *owner
	sharedOwner *TaskID
}

// NewRegistry constructs a Registry in DefaultMode, with its well-known
// shared container pair already open.
func NewRegistry() (*Registry, error) {
	buckets, err := NewContainer()
	if err != nil {
		return nil, err
	}
	objects, err := NewContainer()
	if err != nil {
		buckets.Close()
		return nil, err
	}
	return &Registry{
		mode:       DefaultMode,
		owners:     make(map[TaskID]*owner),
		allowances: make(map[TaskID]TaskID),
		stops:      make(map[TaskID]chan struct{}),
		shared:     &owner{buckets: buckets, objects: objects},
	}, nil
}

// Enabled reports whether sandboxing is active (any mode other than off).
func (r *Registry) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode != ModeOff
}

// Mode returns the registry's current mode.
func (r *Registry) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// SetMode changes the registry's mode to ModeOff, ModeAuto, or ModeManual.
// Shared mode has no meaning without a designated owner, so it cannot be
// entered through SetMode; callers must use SetShared instead. Switching
// away from ModeShared by any other means clears the designated owner.
func (r *Registry) SetMode(m Mode) error {
	if m == ModeShared {
		return ErrNotOwner
	}
	r.mu.Lock()
	r.mode = m
	r.sharedOwner = nil
	r.mu.Unlock()
	return nil
}

// ResetMode restores DefaultMode.
func (r *Registry) ResetMode() {
	r.SetMode(DefaultMode)
}

// SetShared enters shared(owner) mode: tasks with no owner record and no
// allowance resolve to owner's containers instead of failing. owner must
// currently be a registered owner, else SetShared fails with ErrNotOwner.
// Designating the owner that is already the shared owner fails with
// ErrAlreadyShared.
func (r *Registry) SetShared(owner TaskID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[owner]; !ok {
		return ErrNotOwner
	}
	if r.mode == ModeShared && r.sharedOwner != nil && *r.sharedOwner == owner {
		return ErrAlreadyShared
	}
	id := owner
	r.mode = ModeShared
	r.sharedOwner = &id
	return nil
}

// Checkout registers the current task (from ctx, if any) as a new owner
// with a fresh pair of empty containers and self-allows it, returning its
// TaskID. If ctx carries no TaskID, a fresh one is minted. If the current
// task is already an owner, Checkout fails with ErrAlreadyOwner; if it is
// already allowed to a different owner, it fails with ErrAlreadyAllowed.
func (r *Registry) Checkout(ctx context.Context) (TaskID, error) {
	requester, ok := TaskFromContext(ctx)
	if !ok {
		return r.checkoutAs(NewTaskID())
	}

	r.mu.Lock()
	if _, isOwner := r.owners[requester]; isOwner {
		r.mu.Unlock()
		return "", ErrAlreadyOwner
	}
	if _, isAllowed := r.allowances[requester]; isAllowed {
		r.mu.Unlock()
		return "", ErrAlreadyAllowed
	}
	r.mu.Unlock()

	return r.checkoutAs(requester)
}

func (r *Registry) checkoutAs(id TaskID) (TaskID, error) {
	buckets, err := NewContainer()
	if err != nil {
		return "", err
	}
	objects, err := NewContainer()
	if err != nil {
		buckets.Close()
		return "", err
	}

	r.mu.Lock()
	r.owners[id] = &owner{buckets: buckets, objects: objects}
	r.allowances[id] = id
	r.mu.Unlock()
	return id, nil
}

// Checkin tears down an owner and every allowance pointing to it.
func (r *Registry) Checkin(id TaskID) error {
	r.mu.Lock()
	o, ok := r.owners[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.owners, id)
	for requester, owned := range r.allowances {
		if owned == id {
			delete(r.allowances, requester)
		}
	}
	r.mu.Unlock()

	o.buckets.Close()
	o.objects.Close()
	return nil
}

// Allow records that requester should use owner's containers. It fails with
// ErrAlreadyAllowed if requester is already allowed to a different owner.
// Callers that want to override must call ForceAllow.
func (r *Registry) Allow(requester, owner TaskID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[owner]; !ok {
		return ErrNotFound
	}
	if existing, ok := r.allowances[requester]; ok && existing != owner {
		return ErrAlreadyAllowed
	}
	r.allowances[requester] = owner
	return nil
}

// ForceAllow records the allowance unconditionally, overwriting any prior
// owner requester was allowed to.
func (r *Registry) ForceAllow(requester, owner TaskID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[owner]; !ok {
		return ErrNotFound
	}
	r.allowances[requester] = owner
	return nil
}

// LookupOwner returns the owner requester is currently allowed to.
func (r *Registry) LookupOwner(requester TaskID) (TaskID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.allowances[requester]
	return owner, ok
}

// OwnerCount returns the number of currently registered owners.
func (r *Registry) OwnerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}

// EncodeMetadata renders a TaskID for transport in an HTTP header.
func EncodeMetadata(id TaskID) string {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(id))
	}
	b, _ := u.MarshalBinary()
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeMetadata parses a TaskID out of a header value produced by
// EncodeMetadata.
func DecodeMetadata(s string) (TaskID, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	var u uuid.UUID
	if len(b) == len(u) {
		if err := u.UnmarshalBinary(b); err == nil {
			return TaskID(u.String()), nil
		}
	}
	return TaskID(b), nil
}

// StartOwner spawns a helper goroutine that checks out an owner and keeps it
// alive until StopOwner is called, mirroring a linked helper process. It
// blocks up to 5s for the checkout to complete. If shared is true, the
// registry enters shared(owner) mode for the new owner once checkout
// succeeds, per SetShared.
func (r *Registry) StartOwner(shared bool) (TaskID, error) {
	ready := make(chan error, 1)
	idCh := make(chan TaskID, 1)
	stop := make(chan struct{})

	go func() {
		id, err := r.checkoutAs(NewTaskID())
		if err != nil {
			ready <- err
			return
		}
		idCh <- id
		ready <- nil
		<-stop
		r.Checkin(id)
	}()

	select {
	case err := <-ready:
		if err != nil {
			return "", err
		}
		id := <-idCh
		r.mu.Lock()
		r.stops[id] = stop
		r.mu.Unlock()
		if shared {
			if err := r.SetShared(id); err != nil {
				return "", err
			}
		}
		return id, nil
	case <-time.After(5 * time.Second):
		close(stop)
		return "", ErrTimeout
	}
}

// StopOwner signals a StartOwner-spawned helper to check in and stop. If id
// was the designated shared owner, the registry mode reverts to ModeAuto.
func (r *Registry) StopOwner(id TaskID) error {
	r.mu.Lock()
	stop, ok := r.stops[id]
	delete(r.stops, id)
	wasShared := r.mode == ModeShared && r.sharedOwner != nil && *r.sharedOwner == id
	if wasShared {
		r.mode = ModeAuto
		r.sharedOwner = nil
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	close(stop)
	return nil
}

// Resolve returns the bucket and object containers the calling context
// should use, honoring Mode and the allowance map. In ModeOff it always
// returns the shared pair. Outside ModeOff, a task with no TaskID in ctx
// also gets the shared pair.
func (r *Registry) Resolve(ctx context.Context) (*Container, *Container, error) {
	r.mu.Lock()
	mode := r.mode
	r.mu.Unlock()

	if mode == ModeOff {
		return r.shared.buckets, r.shared.objects, nil
	}

	requester, ok := TaskFromContext(ctx)
	if !ok {
		return r.shared.buckets, r.shared.objects, nil
	}

	r.mu.Lock()
	ownerID, allowed := r.allowances[requester]
	r.mu.Unlock()

	if allowed {
		r.mu.Lock()
		o, ok := r.owners[ownerID]
		r.mu.Unlock()
		if ok {
			return o.buckets, o.objects, nil
		}
	}

	switch mode {
	case ModeShared:
		r.mu.Lock()
		sharedOwner := r.sharedOwner
		r.mu.Unlock()
		if sharedOwner == nil {
			return nil, nil, ErrNotFound
		}
		r.mu.Lock()
		o, ok := r.owners[*sharedOwner]
		r.mu.Unlock()
		if !ok {
			// The designated shared owner has been checked in: fail loudly
			// rather than silently falling back to the well-known pair.
			return nil, nil, ErrNotFound
		}
		return o.buckets, o.objects, nil
	case ModeAuto:
		id, err := r.Checkout(ctx)
		if err != nil {
			return nil, nil, err
		}
		r.mu.Lock()
		o := r.owners[id]
		r.mu.Unlock()
		return o.buckets, o.objects, nil
	default: // ModeManual
		return nil, nil, ErrNotFound
	}
}

// Close releases the registry's well-known shared containers. Owners
// checked out via Checkout/StartOwner must be checked in individually.
func (r *Registry) Close() error {
	r.shared.buckets.Close()
	r.shared.objects.Close()
	return nil
}
