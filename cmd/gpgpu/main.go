// Command gpgpu runs a kernel job file.
//
// Usage:
//
//	gpgpu -config job.toml [-driver name] [-watch] [-stats] [-trace] [-v]
//	gpgpu -list
//
// With -watch the job is run again whenever the job file, its shader or one
// of its input images changes.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/driver"
	_ "github.com/gogpu/gpgpu/driver/gles"
	_ "github.com/gogpu/gpgpu/driver/webgl"
	"github.com/gogpu/gpgpu/driver/trace"
	"github.com/gogpu/gpgpu/job"
	"github.com/gogpu/gpgpu/kernels"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	// GL contexts belong to the thread that created them.
	runtime.LockOSThread()
}

func main() {
	var (
		config     = flag.String("config", "job.toml", "job file (.toml, .yaml)")
		driverName = flag.String("driver", "", "driver to use instead of the job's ("+strings.Join(driver.Available(), ", ")+")")
		watch      = flag.Bool("watch", false, "run again when the job or its inputs change")
		stats      = flag.Bool("stats", false, "print GPU statistics after each run")
		traced     = flag.Bool("trace", false, "log every driver call at debug level")
		verbose    = flag.Bool("v", false, "verbose logging")
		list       = flag.Bool("list", false, "list builtin kernels and drivers, then exit")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose || *traced {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	gpgpu.SetLogger(log)

	if *list {
		printList(os.Stdout)
		return
	}

	j, err := job.Load(*config)
	if err != nil {
		log.Error("load job", "err", err)
		os.Exit(1)
	}
	if *driverName != "" {
		j.Driver = *driverName
	}

	var opts []gpgpu.Option
	if *traced {
		opts = append(opts, gpgpu.WithWrap(func(d driver.Device) driver.Device {
			return trace.Wrap(d, log)
		}))
	}
	g, err := job.Open(j, opts...)
	if err != nil {
		log.Error("open GPU", "driver", j.Driver, "err", err)
		os.Exit(1)
	}
	defer g.Close()

	r := &runner{g: g, log: log, stats: *stats, out: message.NewPrinter(language.English)}
	err = r.run(j)
	if !*watch {
		if err != nil {
			g.Close()
			os.Exit(1)
		}
		return
	}
	if err := r.watch(*config, j); err != nil {
		log.Error("watch", "err", err)
		g.Close()
		os.Exit(1)
	}
}

type runner struct {
	g     *gpgpu.GPU
	log   *slog.Logger
	stats bool
	out   *message.Printer
}

func (r *runner) run(j *job.Job) error {
	start := time.Now()
	img, err := job.Run(r.g, j)
	if err != nil {
		r.log.Error("run job", "job", j.Path(), "err", err)
		return err
	}
	b := img.Bounds()
	r.log.Info("job done", "job", j.Path(), "width", b.Dx(), "height", b.Dy(),
		"elapsed", time.Since(start).Round(time.Microsecond))
	if r.stats {
		s := r.g.Stats()
		r.out.Fprintf(os.Stdout, "%d runs, %d pixels, %d bytes up, %d bytes down, %d textures live\n",
			s.Runs, s.Pixels, s.BytesUploaded, s.BytesDownloaded, s.Textures)
	}
	return nil
}

// watch reruns the job whenever one of its files changes. Directories are
// watched rather than files so that editors that save by renaming are seen.
func (r *runner) watch(config string, j *job.Job) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	files := watchSet(j)
	for _, dir := range dirs(files) {
		if err := w.Add(dir); err != nil {
			return err
		}
	}
	r.log.Info("watching", "files", len(files))

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !files[filepath.Clean(event.Name)] {
				continue
			}
			r.log.Debug("changed", "file", event.Name, "op", event.Op)
			drain(w.Events, 50*time.Millisecond)

			next, err := job.Load(config)
			if err != nil {
				r.log.Error("reload job", "err", err)
				continue
			}
			next.Driver = j.Driver
			j = next
			for f := range watchSet(j) {
				if !files[f] {
					if err := w.Add(filepath.Dir(f)); err != nil {
						r.log.Warn("watch", "dir", filepath.Dir(f), "err", err)
					}
				}
			}
			files = watchSet(j)
			_ = r.run(j)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("watcher", "err", err)
		}
	}
}

func watchSet(j *job.Job) map[string]bool {
	set := make(map[string]bool)
	for _, f := range j.Files() {
		set[filepath.Clean(f)] = true
	}
	return set
}

func dirs(files map[string]bool) []string {
	var out []string
	for f := range files {
		d := filepath.Dir(f)
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return out
}

// drain swallows the burst of events a single save produces.
func drain(events <-chan fsnotify.Event, quiet time.Duration) {
	t := time.NewTimer(quiet)
	defer t.Stop()
	for {
		select {
		case <-events:
			t.Reset(quiet)
		case <-t.C:
			return
		}
	}
}

func printList(w io.Writer) {
	fmt.Fprintln(w, "kernels:")
	for _, name := range kernels.Names() {
		k, _ := kernels.Lookup(name)
		fmt.Fprintf(w, "  %-10s %s\n", name, k.Doc)
	}
	fmt.Fprintln(w, "drivers:")
	for _, name := range driver.Available() {
		fmt.Fprintf(w, "  %s\n", name)
	}
}
