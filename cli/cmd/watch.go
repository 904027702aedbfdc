package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/bundlesize/cli/util"
	"github.com/fluxbase-eu/bundlesize/internal/bundler"
	"github.com/fluxbase-eu/bundlesize/internal/session"
	"github.com/fluxbase-eu/bundlesize/internal/worker"
)

// editors often write a file in several steps
const watchDebounce = 100 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Re-measure a module every time it changes",
	Long: `Watch a source file and print its bundle size after every change.

Edits made while a bundle is still running start a new run immediately;
results for sources that have since changed are discarded, so the size
shown always belongs to the latest saved version of the file.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&bundleMangle, "mangle", false, "rename local identifiers (default from bundler.mangle)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, _ := bundler.FromConfig(cfg, nil)
	formatter.PrintSuccess(fmt.Sprintf("Watching %s (Ctrl+C to stop)", args[0]))

	return watchFile(ctx, args[0], pipeline, minifyOptions(cmd), func(s session.State) {
		switch s.Phase {
		case session.PhaseDone:
			formatter.PrintSuccess(fmt.Sprintf("%s  %s (%d bytes)",
				time.Now().Format("15:04:05"), util.FormatBytes(s.Size()), s.Size()))
		case session.PhaseErrored:
			formatter.PrintError(fmt.Sprintf("%s  bundling failed", time.Now().Format("15:04:05")))
		}
	})
}

// watchPoster delivers worker events to the watch loop. Acks are dropped:
// the worker posts them synchronously from the loop's own goroutine, and the
// session ignores them anyway.
func watchPoster(ctx context.Context, events chan<- any) worker.Poster {
	return worker.PosterFunc(func(msg any) error {
		if _, ok := msg.(worker.Ack); ok {
			return nil
		}
		select {
		case events <- msg:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// watchFile bundles path on start and after every change until ctx is done.
// report is called with the session state whenever a fresh result or
// failure is accepted.
func watchFile(ctx context.Context, path string, pipeline worker.Bundler, opts bundler.MinifyOptions, report func(session.State)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so files replaced by rename are still seen
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	events := make(chan any, 16)
	w := worker.New(pipeline, watchPoster(ctx, events), nil)
	sess := session.New("")

	submit := func() error {
		source, err := util.ReadSource(abs, nil)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read source")
			return nil
		}
		if source == sess.State().Source && sess.State().Phase != session.PhaseInitial {
			return nil
		}
		sess.SetSource(source)
		return w.Handle(ctx, sess.Submit(opts))
	}

	if err := submit(); err != nil {
		return err
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			if err := submit(); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("File watcher error")

		case msg := <-events:
			if msg, ok := msg.(worker.StatusEvent); ok {
				log.Debug().Str("status", msg.Message).Msg("Worker status")
				continue
			}
			if sess.Apply(msg) {
				report(sess.State())
			}
		}
	}
}
