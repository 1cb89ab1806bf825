// Package tracker wires recognition, the roster and attendance together.
// A Tracker is created once at startup and shared by every request.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/MrCodeEU/facetrack/pkg/attendance"
	"github.com/MrCodeEU/facetrack/pkg/config"
	"github.com/MrCodeEU/facetrack/pkg/imaging"
	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/MrCodeEU/facetrack/pkg/recognition"
	"github.com/MrCodeEU/facetrack/pkg/roster"
	"github.com/MrCodeEU/facetrack/pkg/storage"
)

// DefaultSinkTimeout bounds a single durable write.
const DefaultSinkTimeout = 5 * time.Second

// LivenessChecker decides whether a frame shows a live person.
type LivenessChecker interface {
	IsLive(ctx context.Context, frame []byte) (bool, error)
}

// Options configures a Tracker.
type Options struct {
	Extractor recognition.Extractor
	Roster    *roster.Roster
	Matcher   *recognition.Matcher
	// Mode is config.ModeLedger or config.ModeSession.
	Mode     string
	Location *time.Location
	Cooldown time.Duration
	// Sink receives durable attendance rows; nil keeps them in memory only.
	Sink     storage.Sink
	Liveness LivenessChecker
	// MaxFrameWidth downscales wider frames before detection.
	MaxFrameWidth int
	SinkTimeout   time.Duration
	Now           func() time.Time
}

// Tracker processes frames and owns the attendance state.
type Tracker struct {
	extractor     recognition.Extractor
	roster        *roster.Roster
	matcher       *recognition.Matcher
	mode          string
	ledger        *attendance.Ledger
	session       *attendance.Session
	sink          storage.Sink
	liveness      LivenessChecker
	maxFrameWidth int
	sinkTimeout   time.Duration
	now           func() time.Time
	log           *logging.Entry

	// membership is held shared by a frame from match to persist, and
	// exclusively by Remove and ClearAll, so no frame records an identity
	// after its history was purged.
	membership sync.RWMutex
}

// FaceResult describes one face found in a frame.
type FaceResult struct {
	Name     string  `json:"name"`
	Box      [4]int  `json:"box"`
	Known    bool    `json:"known"`
	Distance float64 `json:"distance,omitempty"`
	// Action is the attendance event recorded for this face, if any.
	Action     attendance.EventType `json:"action,omitempty"`
	FirstOfDay bool                 `json:"first_of_day,omitempty"`
	// Repeat is set when the match did not record a new event: within the
	// cooldown, already marked in this session, or seen earlier in the frame.
	Repeat bool `json:"repeat,omitempty"`
}

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	Live    bool         `json:"is_live"`
	NoFace  bool         `json:"no_face"`
	Message string       `json:"message,omitempty"`
	Faces   []FaceResult `json:"faces"`
}

// New creates a Tracker. In session mode the pending set is the roster's
// contents at this point.
func New(opts Options) (*Tracker, error) {
	if opts.Roster == nil {
		return nil, errors.New("tracker requires a roster")
	}
	if opts.Matcher == nil {
		opts.Matcher = recognition.NewMatcher(recognition.DefaultThreshold)
	}
	if opts.Mode == "" {
		opts.Mode = config.ModeLedger
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = DefaultSinkTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	t := &Tracker{
		extractor:     opts.Extractor,
		roster:        opts.Roster,
		matcher:       opts.Matcher,
		mode:          opts.Mode,
		sink:          opts.Sink,
		liveness:      opts.Liveness,
		maxFrameWidth: opts.MaxFrameWidth,
		sinkTimeout:   opts.SinkTimeout,
		now:           opts.Now,
		log:           logging.Component("tracker"),
	}

	switch opts.Mode {
	case config.ModeLedger:
		t.ledger = attendance.NewLedger(opts.Location, opts.Cooldown)
	case config.ModeSession:
		t.session = attendance.NewSession(opts.Roster.List())
	default:
		return nil, fmt.Errorf("unknown attendance mode: %s", opts.Mode)
	}

	t.log.WithFields(logging.Fields{
		"mode":      opts.Mode,
		"threshold": opts.Matcher.Threshold(),
		"enrolled":  opts.Roster.Len(),
	}).Info("Tracker ready")
	return t, nil
}

// Mode returns the attendance mode.
func (t *Tracker) Mode() string {
	return t.mode
}

// Enroll registers the first face in image under name.
func (t *Tracker) Enroll(ctx context.Context, name string, image []byte) (roster.Identity, error) {
	id, err := enroll(ctx, t.roster, t.maxFrameWidth, name, image)
	if err != nil && Classify(err).Code == ErrCodeInternal {
		t.log.WithError(err).WithField("identity", name).Error("Enrollment failed")
	}
	return id, err
}

func enroll(ctx context.Context, r *roster.Roster, maxFrameWidth int, name string, image []byte) (roster.Identity, error) {
	frame, err := imaging.Prepare(image, maxFrameWidth)
	if err != nil {
		return roster.Identity{}, Classify(err)
	}
	id, err := r.Enroll(ctx, name, frame.JPEG)
	if err != nil {
		return roster.Identity{}, Classify(err)
	}
	return id, nil
}

// ProcessFrame detects every face in image, matches each against the roster
// and records attendance for recognised identities. A frame without faces
// is a normal outcome reported through FrameResult.NoFace.
func (t *Tracker) ProcessFrame(ctx context.Context, image []byte) (*FrameResult, error) {
	frame, err := imaging.Prepare(image, t.maxFrameWidth)
	if err != nil {
		return nil, Classify(err)
	}

	result := &FrameResult{Live: true, Faces: []FaceResult{}}

	if t.liveness != nil {
		live, err := t.liveness.IsLive(ctx, frame.JPEG)
		if err != nil {
			t.log.WithError(err).Error("Liveness check failed")
			return nil, NewError(ErrCodeInternal, err)
		}
		if !live {
			result.Live = false
			result.Message = GetErrorMessage(ErrCodeNotLive)
			return result, nil
		}
	}

	if t.extractor == nil {
		return nil, NewError(ErrCodeInternal, recognition.ErrModelNotLoaded)
	}
	faces, err := t.extractor.DetectAndEncode(frame.JPEG)
	if err != nil {
		t.log.WithError(err).Error("Face detection failed")
		return nil, NewError(ErrCodeInternal, err)
	}
	if len(faces) == 0 {
		result.NoFace = true
		result.Message = GetErrorMessage(ErrCodeNoFace)
		return result, nil
	}

	t.membership.RLock()
	defer t.membership.RUnlock()

	now := t.now()
	seen := make(map[string]bool, len(faces))
	var rows []storage.Row

	for _, f := range faces {
		m := t.roster.Match(t.matcher, f.Descriptor)
		x, y, w, h := frame.ScaleRect(f.BoundingBox.X, f.BoundingBox.Y, f.BoundingBox.Width, f.BoundingBox.Height)
		fr := FaceResult{
			Name:  m.Name,
			Box:   recognition.Rectangle{X: x, Y: y, Width: w, Height: h}.Box(),
			Known: m.Known,
		}
		if !math.IsInf(m.Distance, 0) {
			fr.Distance = m.Distance
		}

		if m.Known {
			if seen[m.Name] {
				fr.Repeat = true
			} else {
				seen[m.Name] = true
				if row, ok := t.mark(&fr, now); ok {
					rows = append(rows, row)
				}
			}
		}
		result.Faces = append(result.Faces, fr)
	}

	t.persist(ctx, rows)
	return result, nil
}

// mark records attendance for a recognised face and fills in fr.
func (t *Tracker) mark(fr *FaceResult, now time.Time) (storage.Row, bool) {
	if t.session != nil {
		if !t.session.Mark(fr.Name, now) {
			fr.Repeat = true
			return storage.Row{}, false
		}
		fr.Action = attendance.CheckIn
		fr.FirstOfDay = true
		t.log.WithField("identity", fr.Name).Info("Attendance marked")
		return storage.Row{Name: fr.Name, Type: attendance.CheckIn, Timestamp: now}, true
	}

	res := t.ledger.Record(fr.Name, now)
	fr.Action = res.Type
	if res.Suppressed {
		fr.Repeat = true
		return storage.Row{}, false
	}
	fr.FirstOfDay = res.FirstOfDay
	t.log.WithFields(logging.Fields{
		"identity":     fr.Name,
		"action":       res.Type,
		"first_of_day": res.FirstOfDay,
	}).Info("Attendance recorded")
	return storage.Row{ID: res.Event.ID, Name: fr.Name, Type: res.Type, Timestamp: res.Event.Timestamp}, true
}

// persist writes rows to the sink after the ledger has committed them.
// Failures are logged; the in-memory ledger stays authoritative.
func (t *Tracker) persist(ctx context.Context, rows []storage.Row) {
	if t.sink == nil || len(rows) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.sinkTimeout)
	defer cancel()

	for _, row := range rows {
		if err := t.sink.Append(ctx, row); err != nil {
			t.log.WithError(err).WithField("identity", row.Name).Error("Failed to persist attendance event")
		}
	}
}

// Remove deletes name from the roster and purges its attendance history.
// Removing an unknown name succeeds and reports false.
func (t *Tracker) Remove(ctx context.Context, name string) (bool, error) {
	name, err := roster.NormalizeName(name)
	if err != nil {
		return false, nil
	}

	t.membership.Lock()
	defer t.membership.Unlock()

	existed, err := t.roster.Remove(ctx, name)
	if err != nil {
		t.log.WithError(err).WithField("identity", name).Error("Removal failed")
		return false, NewError(ErrCodeInternal, err)
	}

	if t.ledger != nil {
		t.ledger.Forget(name)
	}
	if t.session != nil {
		t.session.Forget(name)
	}
	if d, ok := t.sink.(storage.NameDeleter); ok {
		if err := d.DeleteName(ctx, name); err != nil {
			t.log.WithError(err).WithField("identity", name).Warn("Failed to purge stored attendance")
		}
	}
	return existed, nil
}

// List returns the enrolled names, sorted.
func (t *Tracker) List() []string {
	return t.roster.List()
}

// History returns name's attendance events in chronological order.
func (t *Tracker) History(name string) []attendance.Event {
	if t.ledger != nil {
		return t.ledger.History(name)
	}
	if at, ok := t.session.MarkedAt(name); ok {
		return []attendance.Event{{Timestamp: at, Type: attendance.CheckIn}}
	}
	return []attendance.Event{}
}

// State returns name's position in today's check-in/check-out cycle.
// In session mode a marked name counts as checked in.
func (t *Tracker) State(name string) attendance.State {
	if t.ledger != nil {
		return t.ledger.Today(name, t.now())
	}
	if _, ok := t.session.MarkedAt(name); ok {
		return attendance.CheckedIn
	}
	return attendance.NoEntryToday
}

// Ready reports whether frames can be processed: an extractor is set and,
// when it loads models, they are loaded.
func (t *Tracker) Ready() bool {
	if t.extractor == nil {
		return false
	}
	if l, ok := t.extractor.(interface{ IsLoaded() bool }); ok {
		return l.IsLoaded()
	}
	return true
}

// All returns every identity's attendance history.
func (t *Tracker) All() map[string][]attendance.Event {
	if t.ledger != nil {
		return t.ledger.All()
	}
	out := make(map[string][]attendance.Event)
	for name, at := range t.session.Marked() {
		out[name] = []attendance.Event{{Timestamp: at, Type: attendance.CheckIn}}
	}
	return out
}

// Pending returns the names not yet marked in session mode, or nil in
// ledger mode.
func (t *Tracker) Pending() []string {
	if t.session == nil {
		return nil
	}
	return t.session.Pending()
}

// ClearAll wipes all attendance history, including that of identities no
// longer enrolled.
func (t *Tracker) ClearAll(ctx context.Context) error {
	t.membership.Lock()
	defer t.membership.Unlock()

	if t.ledger != nil {
		t.ledger.ClearAll()
	}
	if t.session != nil {
		t.session.ClearMarks()
	}
	t.log.Warn("Attendance history cleared")

	if c, ok := t.sink.(storage.Clearer); ok {
		if err := c.Clear(ctx); err != nil {
			t.log.WithError(err).Error("Failed to clear stored attendance")
			return NewError(ErrCodeInternal, err)
		}
	}
	return nil
}

// ImportReport summarises a directory import.
type ImportReport struct {
	Enrolled []string
	Skipped  []string
}

// ImportDir enrolls every image in dir under a name derived from its file
// name. Images without a face are skipped. progress, if set, is called
// after each file.
func (t *Tracker) ImportDir(ctx context.Context, dir string, progress func(roster.ImportFile, error)) (*ImportReport, error) {
	return ImportDir(ctx, t.roster, dir, t.maxFrameWidth, progress)
}

// ImportDir enrolls the images in dir into r. Use it before New when the
// imported names must be part of a session's pending set.
func ImportDir(ctx context.Context, r *roster.Roster, dir string, maxFrameWidth int, progress func(roster.ImportFile, error)) (*ImportReport, error) {
	files, err := roster.ScanDir(dir)
	if err != nil {
		return nil, err
	}

	log := logging.Component("import")
	report := &ImportReport{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		err := importFile(ctx, r, maxFrameWidth, f)
		if progress != nil {
			progress(f, err)
		}
		switch {
		case err == nil:
			report.Enrolled = append(report.Enrolled, f.Name)
			log.WithField("identity", f.Name).Info("Loaded face")
		case Classify(err).Code == ErrCodeInternal:
			log.WithError(err).WithField("file", f.Path).Error("Import failed")
			return report, err
		default:
			report.Skipped = append(report.Skipped, f.Path)
			log.WithError(err).Warnf("No usable face in %s, skipping", f.Path)
		}
	}
	return report, nil
}

func importFile(ctx context.Context, r *roster.Roster, maxFrameWidth int, f roster.ImportFile) error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return NewError(ErrCodeDecode, err)
	}
	_, err = enroll(ctx, r, maxFrameWidth, f.Name, data)
	return err
}

// Close releases the extractor.
func (t *Tracker) Close() error {
	if c, ok := t.extractor.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
