package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/seeflaw/seeflaw/internal/config"
	"github.com/seeflaw/seeflaw/internal/details"
	"github.com/seeflaw/seeflaw/internal/document"
	"github.com/seeflaw/seeflaw/internal/fixture"
	"github.com/seeflaw/seeflaw/internal/fixture/example"
	"github.com/seeflaw/seeflaw/internal/notify"
	"github.com/seeflaw/seeflaw/internal/seeflaw"
	"github.com/seeflaw/seeflaw/internal/syntax"
	"github.com/seeflaw/seeflaw/internal/tui"
)

// app is the configuration shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *fixture.Registry
}

func newApp(cmd *cobra.Command) (*app, error) {
	logger := setupLogger()
	cfg, path, err := config.Resolve(cfgFile)
	if err != nil {
		return nil, err
	}
	applyOptionFlags(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if path != "" {
		logger.Debug("loaded config", "path", path)
	}

	reg := fixture.NewRegistry()
	example.Register(reg, logger)
	return &app{cfg: cfg, logger: logger, registry: reg}, nil
}

// loader tries the built-in fixtures before external executables.
func (a *app) loader() fixture.Loader {
	pins := make(map[string]fixture.Pin, len(a.cfg.Fixtures))
	for ns, p := range a.cfg.Fixtures {
		timeout, _ := time.ParseDuration(p.Timeout)
		pins[ns] = fixture.Pin{Path: p.Path, SHA256: p.SHA256.Hash, Timeout: timeout}
	}
	return fixture.Chain{
		a.registry,
		&fixture.ExecLoader{Pins: pins, Timeout: a.cfg.FixtureTimeout(), Logger: a.logger},
	}
}

// details builds the run details of testFile. args given on the command
// line win over configured ones.
func (a *app) details(testFile string, args map[string]string) *details.Details {
	cli := make(map[string]string, len(args)+1)
	for k, v := range args {
		cli[k] = v
	}
	cli[details.ArgTestFile] = testFile
	return details.New(a.cfg.RunArguments(cli), a.loader(), details.WithLogger(a.logger))
}

type runOptions struct {
	noTime      bool
	outFile     string
	interactive bool
	dryRun      bool
}

// run runs testFile once, writes the result tree and the summary and sends
// the configured notifications.
func (a *app) run(ctx context.Context, testFile string, args map[string]string, opts runOptions) (*seeflaw.Outcome, error) {
	d := a.details(testFile, args)

	var sopts []seeflaw.Option
	sopts = append(sopts, seeflaw.WithLogger(a.logger))
	if opts.noTime || a.cfg.Report.NoTime {
		sopts = append(sopts, seeflaw.WithoutTime())
	}

	var view *tui.View
	if opts.interactive {
		sopts = append(sopts, seeflaw.WithObserver(func(e seeflaw.Event) { view.Observe(e) }))
	}
	s := seeflaw.New(d, sopts...)

	stopSignals := a.interruptions(ctx, s)
	defer stopSignals()

	var (
		out *seeflaw.Outcome
		err error
	)
	if opts.interactive {
		view = tui.New(ctx, testFile, s, os.Stderr)
		out, err = view.Run(func() (*seeflaw.Outcome, error) { return s.RunFile(ctx, testFile) })
	} else {
		out, err = s.RunFile(ctx, testFile)
	}
	if err != nil {
		return nil, err
	}

	xmlFile := opts.outFile
	if xmlFile == "" {
		xmlFile = a.cfg.Report.XMLFile
	}
	if xmlFile != "" {
		if err := out.Document().WriteToFile(xmlFile); err != nil {
			return out, fmt.Errorf("writing result tree: %w", err)
		}
		a.logger.Info("wrote result tree", "file", xmlFile)
	}

	fmt.Fprint(os.Stdout, out.Summary().Render(tui.Interactive(os.Stdout)))

	if err := a.notify(ctx, out, d.Arguments(), opts.dryRun); err != nil {
		a.logger.Error("notification failed", "error", err)
	}
	return out, nil
}

// interruptions stops the run on the first interrupt and kills it on the
// second.
func (a *app) interruptions(ctx context.Context, s *seeflaw.SeeFlaw) func() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for n := 0; ; n++ {
			select {
			case <-ch:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
			if n == 0 {
				a.logger.Warn("interrupted, stopping after the current row; interrupt again to kill")
				s.Stop()
				continue
			}
			s.Kill()
			return
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func (a *app) notify(ctx context.Context, out *seeflaw.Outcome, args map[string]string, dryRun bool) error {
	if len(a.cfg.Notify) == 0 {
		return nil
	}
	refs := make([]notify.NotifyRef, 0, len(a.cfg.Notify))
	for _, n := range a.cfg.Notify {
		refs = append(refs, notify.NotifyRef{
			ServiceName: n.Service,
			Template:    n.Template,
			Params:      n.Params,
			Always:      n.On == config.OnAlways,
		})
	}
	services := make(map[string]notify.ServiceDef, len(a.cfg.Services))
	for name, svc := range a.cfg.Services {
		services[name] = notify.ServiceDef{URL: svc.URL, Params: svc.Params}
	}

	sum := out.Summary()
	data := notify.BuildTemplateData(notify.RunInfo{
		Test:       out.Test,
		RunID:      out.RunID,
		Successful: out.Successful,
		Calls:      sum.Calls,
		Failed:     sum.Failed,
		Errors:     sum.Errored,
		Duration:   out.RunTime.Round(time.Millisecond).String(),
	}, args)

	targets, err := notify.ResolveTargets(refs, services, out.Successful, data)
	if err != nil {
		return err
	}
	_, err = notify.Dispatch(ctx, targets, dryRun, a.logger)
	return err
}

// validate checks testFile without running it.
func (a *app) validate(ctx context.Context, testFile string, args map[string]string) error {
	doc, err := document.ReadFile(testFile)
	if err != nil {
		return err
	}
	_, err = syntax.Validate(ctx, doc, testFile, a.details(testFile, args), nil)
	return err
}

// documentFiles returns testFile and the files it loads.
func documentFiles(testFile string) []string {
	files := []string{testFile}
	doc, err := document.ReadFile(testFile)
	if err != nil {
		return files
	}
	root, err := document.Root(doc)
	if err != nil {
		return files
	}
	for _, node := range root.SelectElements(document.KindLoad) {
		name, ok := document.OptAttr(node, "file")
		if !ok {
			continue
		}
		if path, err := syntax.ResolveLoad(name, filepath.Dir(testFile)); err == nil {
			files = append(files, path)
		}
	}
	return files
}
