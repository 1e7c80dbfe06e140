package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/engine"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/history"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/location"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/monitor"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"record":     cmdRecord,
	"list":       cmdList,
	"search":     cmdSearch,
	"export":     cmdExport,
	"import":     cmdImport,
	"delete":     cmdDelete,
	"delete-all": cmdDeleteAll,
	"backup":     cmdBackup,
}

// plannedFinding is a finding tagged after the n-th accepted fix.
type plannedFinding struct {
	input core.FindingInput
	after int
}

type findingList []plannedFinding

func (l *findingList) String() string {
	return fmt.Sprintf("%d findings", len(*l))
}

// Set parses "type:name[:description]@n".
func (l *findingList) Set(s string) error {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return fmt.Errorf("finding %q: missing @fix index", s)
	}
	n, err := strconv.Atoi(s[at+1:])
	if err != nil || n < 0 {
		return fmt.Errorf("finding %q: bad fix index", s)
	}

	parts := strings.SplitN(s[:at], ":", 3)
	if len(parts) < 2 {
		return fmt.Errorf("finding %q: want type:name", s)
	}
	ft, err := core.ParseFindingType(parts[0])
	if err != nil {
		return err
	}
	in := core.FindingInput{Type: ft, Name: parts[1]}
	if len(parts) == 3 {
		in.Description = parts[2]
	}
	*l = append(*l, plannedFinding{input: in, after: n})
	return nil
}

func cmdRecord(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	fixesPath := fs.String("fixes", "", "replay script, one lat,lng[,alt[,accuracy]] per line")
	interval := fs.Duration("interval", 0, "delay between replayed fixes")
	statusPath := fs.String("status", "", "rewrite a JSON status file while recording")
	var planned findingList
	fs.Var(&planned, "finding", "tag a finding after n fixes: type:name[:description]@n (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *fixesPath == "" {
		return errors.New("-fixes is required")
	}

	replay, err := location.LoadReplay(*fixesPath, *interval)
	if err != nil {
		return err
	}
	a, err := e.open(ctx, replay)
	if err != nil {
		return err
	}
	defer a.Close()
	eng := a.engine

	var (
		mu      sync.Mutex
		tagErrs []error
	)
	tags := newTagger(len(planned), func(i int) {
		in := planned[i].input
		f, err := eng.AddFinding(ctx, in)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			tagErrs = append(tagErrs, fmt.Errorf("finding %q: %w", in.Name, err))
			return
		}
		fmt.Fprintf(a.stdout, "tagged %s %q at %.5f, %.5f\n", f.Type, f.Name, f.Coordinates.Lat, f.Coordinates.Lng)
	})
	unsubscribe := eng.Subscribe(func(ev engine.Event) {
		switch ev.Kind {
		case engine.EventPosition:
			// the first acquisition also reports a position, so count
			// recorded points rather than events
			cur, ok := eng.CurrentTrack()
			if !ok {
				return
			}
			for i, p := range planned {
				if p.after > 0 && p.after == len(cur.Coordinates) {
					tags.fire(i)
				}
			}
		case engine.EventAlertRaised:
			fmt.Fprintf(a.stdout, "near %s %q (%.1f m)\n", ev.Alert.Finding.Type, ev.Alert.Finding.Name, ev.Alert.DistanceMeters)
		}
	})
	defer unsubscribe()

	if err := eng.Restore(ctx); err != nil {
		return err
	}
	track, started := eng.Start(ctx)
	if started {
		a.logger.Info("recording", "track_id", track.ID, "fixes", replay.Len())
	} else {
		a.logger.Info("resumed interrupted track", "track_id", track.ID)
		eng.Resume()
	}
	if *statusPath != "" {
		mon := monitor.NewService(monitor.Dependencies{
			Engine: eng,
			Store:  a.storage.tiered,
			Logger: a.logger.With("component", "monitor"),
			Path:   *statusPath,
		})
		if err := mon.Start(); err != nil {
			return err
		}
		defer mon.Stop()
	}
	for i, p := range planned {
		if p.after == 0 {
			tags.fire(i)
		}
	}

	select {
	case <-replay.Done():
	case <-ctx.Done():
		a.logger.Info("interrupted, stopping track")
	}

	tags.close()

	done, err := eng.Stop(ctx)
	if done.ID != "" {
		printSummary(a.stdout, done)
	}
	mu.Lock()
	defer mu.Unlock()
	return errors.Join(append([]error{err}, tagErrs...)...)
}

// tagger runs each planned finding at most once, off the caller's goroutine,
// so acquiring a fresh fix never holds up fix delivery.
type tagger struct {
	run func(i int)

	mu      sync.Mutex
	fired   []bool
	closing bool
	wg      sync.WaitGroup
}

func newTagger(n int, run func(i int)) *tagger {
	return &tagger{run: run, fired: make([]bool, n)}
}

func (t *tagger) fire(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing || t.fired[i] {
		return
	}
	t.fired[i] = true
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(i)
	}()
}

// close stops new tags and waits for running ones.
func (t *tagger) close() {
	t.mu.Lock()
	t.closing = true
	t.mu.Unlock()
	t.wg.Wait()
}

func printSummary(w io.Writer, t core.Track) {
	fmt.Fprintf(w, "track %s\n", t.ID)
	fmt.Fprintf(w, "  distance  %.3f km\n", t.Distance)
	fmt.Fprintf(w, "  duration  %s\n", (time.Duration(t.DurationSeconds) * time.Second).String())
	fmt.Fprintf(w, "  speed     %.2f km/h\n", t.AverageSpeed)
	fmt.Fprintf(w, "  altitude  %.0f m\n", t.Altitude)
	fmt.Fprintf(w, "  points    %d\n", len(t.Coordinates))
	fmt.Fprintf(w, "  findings  %d\n", len(t.Findings))
}

func cmdList(ctx context.Context, e *env, args []string) error {
	a, err := e.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	tracks, err := a.history.List(ctx)
	if err != nil {
		return err
	}
	return printTracks(a.stdout, tracks)
}

func cmdSearch(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("search needs a query")
	}
	a, err := e.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	tracks, err := a.history.Search(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return printTracks(a.stdout, tracks)
}

func printTracks(w io.Writer, tracks []core.Track) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tKM\tDURATION\tFINDINGS\tPLACE")
	for _, t := range tracks {
		place := "-"
		if t.Location != nil && t.Location.Name != "" {
			place = t.Location.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%s\t%d\t%s\n",
			t.ID,
			t.StartTime.Local().Format("2006-01-02 15:04"),
			t.Distance,
			(time.Duration(t.DurationSeconds) * time.Second).String(),
			len(t.Findings),
			place,
		)
	}
	return tw.Flush()
}

func cmdExport(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("export needs an output path")
	}
	out, ids := args[0], args[1:]

	a, err := e.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	tracks, err := a.history.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		want := make(map[string]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		var picked []core.Track
		for _, t := range tracks {
			if want[t.ID] {
				picked = append(picked, t)
			}
		}
		tracks = picked
	}
	if len(tracks) == 0 {
		return errors.New("no tracks to export")
	}

	data, err := history.ExportGPX(tracks)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Fprintf(a.stdout, "exported %d tracks to %s\n", len(tracks), out)
	return nil
}

func cmdImport(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("import needs one GPX file")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	tracks, err := history.ImportGPX(data)
	if err != nil {
		return err
	}

	a, err := e.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Restore(ctx); err != nil {
		return err
	}
	n, err := a.engine.ImportTracks(ctx, tracks)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "imported %d tracks\n", n)
	return nil
}

func cmdDelete(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("delete needs one track id")
	}
	a, err := e.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Restore(ctx); err != nil {
		return err
	}
	if _, ok, err := a.history.Get(ctx, args[0]); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("track %s not found", args[0])
	}
	return a.history.Delete(ctx, args[0])
}

func cmdDeleteAll(ctx context.Context, e *env, args []string) error {
	a, err := e.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Restore(ctx); err != nil {
		return err
	}
	return a.history.DeleteAll(ctx)
}

func cmdBackup(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("backup needs an output path")
	}
	a, err := e.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.storage.backup(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "database copied to %s\n", args[0])
	return nil
}
