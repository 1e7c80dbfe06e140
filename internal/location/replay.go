package location

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/geo"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// Replay is a Platform that plays back a fixed script of fixes.
type Replay struct {
	mu       sync.Mutex
	fixes    []core.Fix
	cursor   int
	latest   *core.Fix
	interval time.Duration
	onceErrs []error
	watchers map[WatchID]*replayWatch
	nextID   WatchID
	done     chan struct{}
	doneOnce sync.Once
	now      func() time.Time
}

type replayWatch struct {
	onFix   func(core.Fix)
	onError func(error)
	stop    chan struct{}
}

// NewReplay creates a Replay delivering fixes every interval to watchers.
func NewReplay(fixes []core.Fix, interval time.Duration) *Replay {
	return &Replay{
		fixes:    append([]core.Fix(nil), fixes...),
		interval: interval,
		watchers: make(map[WatchID]*replayWatch),
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// LoadReplay reads a script of "lat,lng[,alt[,accuracy]]" lines. Blank lines
// and lines starting with # are skipped.
func LoadReplay(path string, interval time.Duration) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	defer f.Close()

	var fixes []core.Fix
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fix, err := geo.FixFromString(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		fixes = append(fixes, fix)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read replay file: %w", err)
	}
	return NewReplay(fixes, interval), nil
}

// FailNext queues errors returned by the next GetOnce calls, in order.
func (r *Replay) FailNext(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onceErrs = append(r.onceErrs, errs...)
}

// InjectWatchError delivers err to every open watch.
func (r *Replay) InjectWatchError(err error) {
	r.mu.Lock()
	var targets []func(error)
	for _, w := range r.watchers {
		targets = append(targets, w.onError)
	}
	r.mu.Unlock()
	for _, onError := range targets {
		onError(err)
	}
}

// Done is closed once every scripted fix has been delivered.
func (r *Replay) Done() <-chan struct{} {
	return r.done
}

// Len returns the number of scripted fixes.
func (r *Replay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fixes)
}

// GetOnce returns the latest delivered fix, or the next scripted one when
// nothing was delivered yet.
func (r *Replay) GetOnce(ctx context.Context, _ Options) (core.Fix, error) {
	if err := ctx.Err(); err != nil {
		return core.Fix{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.onceErrs) > 0 {
		err := r.onceErrs[0]
		r.onceErrs = r.onceErrs[1:]
		return core.Fix{}, err
	}
	if r.latest != nil {
		fix := *r.latest
		fix.Timestamp = r.now()
		return fix, nil
	}
	if r.cursor < len(r.fixes) {
		fix := r.fixes[r.cursor]
		if fix.Timestamp.IsZero() {
			fix.Timestamp = r.now()
		}
		return fix, nil
	}
	return core.Fix{}, ErrPositionUnavailable
}

// Watch starts playback of the remaining script.
func (r *Replay) Watch(_ Options, onFix func(core.Fix), onError func(error)) (WatchID, error) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	w := &replayWatch{onFix: onFix, onError: onError, stop: make(chan struct{})}
	r.watchers[id] = w
	r.mu.Unlock()

	go r.play(w)
	return id, nil
}

// ClearWatch stops playback for id.
func (r *Replay) ClearWatch(id WatchID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.watchers[id]; ok {
		close(w.stop)
		delete(r.watchers, id)
	}
}

func (r *Replay) play(w *replayWatch) {
	for {
		if r.interval > 0 {
			select {
			case <-w.stop:
				return
			case <-time.After(r.interval):
			}
		} else {
			select {
			case <-w.stop:
				return
			default:
			}
		}

		fix, ok := r.advance()
		if !ok {
			r.doneOnce.Do(func() { close(r.done) })
			return
		}
		w.onFix(fix)
	}
}

func (r *Replay) advance() (core.Fix, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor >= len(r.fixes) {
		return core.Fix{}, false
	}
	fix := r.fixes[r.cursor]
	r.cursor++
	if fix.Timestamp.IsZero() {
		fix.Timestamp = r.now()
	}
	r.latest = &fix
	return fix, true
}
