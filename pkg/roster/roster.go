// Package roster holds the enrolled identities and their face descriptors.
package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/MrCodeEU/facetrack/pkg/recognition"
)

// MaxNameLength bounds identity names.
const MaxNameLength = 128

// Identity is one enrolled person.
type Identity struct {
	Name       string                 `json:"name"`
	Descriptor recognition.Descriptor `json:"descriptor"`
	EnrolledAt time.Time              `json:"enrolled_at"`
}

// Store persists identities. Delete of an absent name must succeed.
type Store interface {
	Save(ctx context.Context, id Identity) error
	Delete(ctx context.Context, name string) error
	Load(ctx context.Context) ([]Identity, error)
}

// ErrInvalidName is returned for empty or unsafe identity names.
var ErrInvalidName = errors.New("invalid identity name")

// Roster is the in-memory set of enrolled identities.
type Roster struct {
	extractor recognition.Extractor
	store     Store
	now       func() time.Time

	// writeMu serialises enroll/remove including their store I/O;
	// mu guards the map and is never held across I/O.
	writeMu    sync.Mutex
	mu         sync.RWMutex
	identities map[string]Identity
	order      []string
}

// New creates an empty roster. store may be nil for a memory-only roster.
func New(extractor recognition.Extractor, store Store) *Roster {
	return &Roster{
		extractor:  extractor,
		store:      store,
		now:        time.Now,
		identities: make(map[string]Identity),
	}
}

// NormalizeName trims the name and checks it is usable as a key and file name.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "", name == ".", name == "..":
		return "", ErrInvalidName
	case len(name) > MaxNameLength:
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLength)
	case strings.ContainsAny(name, "/\\\x00"):
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return name, nil
}

// Load replaces the in-memory roster with the store's contents.
func (r *Roster) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	ids, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities = make(map[string]Identity, len(ids))
	for _, id := range ids {
		r.identities[id.Name] = id
	}
	r.reorder()

	logging.Component("roster").Infof("Loaded %d enrolled identities", len(ids))
	return nil
}

// Enroll extracts the first face from image and stores it under name,
// overwriting any previous enrollment. Returns recognition.ErrNoFaceDetected
// when the image contains no face.
func (r *Roster) Enroll(ctx context.Context, name string, image []byte) (Identity, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Identity{}, err
	}
	if r.extractor == nil {
		return Identity{}, recognition.ErrModelNotLoaded
	}

	f, err := recognition.FirstFace(r.extractor, image)
	if err != nil {
		return Identity{}, err
	}
	return r.Put(ctx, name, f.Descriptor)
}

// Put stores a descriptor that has already been extracted.
func (r *Roster) Put(ctx context.Context, name string, desc recognition.Descriptor) (Identity, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{Name: name, Descriptor: desc, EnrolledAt: r.now()}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if r.store != nil {
		if err := r.store.Save(ctx, id); err != nil {
			return Identity{}, fmt.Errorf("save identity %s: %w", name, err)
		}
	}

	r.mu.Lock()
	_, existed := r.identities[name]
	r.identities[name] = id
	if !existed {
		r.reorder()
	}
	r.mu.Unlock()

	logging.Component("roster").WithFields(logging.Fields{
		"identity":    name,
		"re_enrolled": existed,
	}).Info("Identity enrolled")
	return id, nil
}

// Remove deletes name from the roster. Removing an unknown name is a no-op.
// It reports whether the name was enrolled.
func (r *Roster) Remove(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if r.store != nil {
		if _, err := NormalizeName(name); err == nil {
			if err := r.store.Delete(ctx, name); err != nil {
				return false, fmt.Errorf("delete identity %s: %w", name, err)
			}
		}
	}

	r.mu.Lock()
	_, existed := r.identities[name]
	if existed {
		delete(r.identities, name)
		r.reorder()
	}
	r.mu.Unlock()

	if existed {
		logging.Component("roster").WithField("identity", name).Info("Identity removed")
	}
	return existed, nil
}

// List returns all enrolled names in sorted order.
func (r *Roster) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the identity enrolled under name.
func (r *Roster) Get(name string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.identities[name]
	return id, ok
}

// Len returns the number of enrolled identities.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}

// Match runs m against the roster in sorted name order, so ties resolve
// to the alphabetically first name.
func (r *Roster) Match(m *recognition.Matcher, query recognition.Descriptor) recognition.MatchResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gallery := make([]recognition.Candidate, len(r.order))
	for i, name := range r.order {
		gallery[i] = recognition.Candidate{Name: name, Descriptor: r.identities[name].Descriptor}
	}
	return m.Match(query, gallery)
}

// reorder rebuilds the sorted name index. Callers hold mu.
func (r *Roster) reorder() {
	r.order = r.order[:0]
	for name := range r.identities {
		r.order = append(r.order, name)
	}
	sort.Strings(r.order)
}
