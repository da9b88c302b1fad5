// Command mdtctl builds microgrid models from HCL scripts, seeds master
// lists from YAML catalogs, lists stored profiles and checks stored models.
package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mdtcore/internal/config"
	"mdtcore/internal/core"
	"mdtcore/internal/engine"
	"mdtcore/internal/persistence"
	"mdtcore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

// cli runs the command tree and maps the outcome to an exit code.
func cli(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(context.Background())
	for _, c := range a.closers {
		_ = c.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

type app struct {
	stdout, stderr io.Writer

	configFile string
	verbose    bool

	cfg       config.Config
	logger    *zap.Logger
	svcLogger core.Logger
	registry  *prometheus.Registry
	expvar    *core.ExpvarMetricsRecorder
	metrics   core.MetricsRecorder
	tracer    core.Tracer
	closers   []io.Closer
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mdtctl",
		Short:         "Build and inspect microgrid models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default ./mdtcore.yaml when present)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "development logging at debug level")
	pf.String("model", "", "model name")
	pf.String("storage", "", "snapshot storage driver: memory, sqlite or postgres")
	pf.Bool("write-tags", true, "prefix diagnostics with their tag")
	pf.Int("max-entries", 0, "print at most this many diagnostics, 0 for all (default log.max_entries)")
	pf.Bool("metrics", false, "print operation metrics after the command")
	pf.String("metrics-exporter", "", "metrics backend: prometheus or expvar")
	pf.String("log-format", "", "service logging adapter: zap or logr")
	pf.String("trace", "", "append JSON operation spans to this file, - for stderr")
	pf.Float64("retrofit-budget", 0, "reject component retrofit costs above this amount")

	root.AddCommand(a.buildCmd(), a.catalogCmd(), a.profilesCmd(), a.checkCmd())
	return root
}

var flagKeys = map[string]string{
	"model":       "model.name",
	"storage":     "storage.driver",
	"write-tags":  "log.write_tags",
	"max-entries": "log.max_entries",
	"metrics":     "metrics.enabled",

	"metrics-exporter": "metrics.exporter",
	"log-format":       "log.format",
	"trace":            "trace.path",
	"retrofit-budget":  "model.retrofit_budget",
}

func (a *app) setup(cmd *cobra.Command) error {
	v := config.New()
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	cfg, err := config.Load(v, a.configFile, nil)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.logger, err = newLogger(cfg.Log.Level, a.verbose); err != nil {
		return err
	}
	a.svcLogger = core.NewZapLogger(a.logger)
	if cfg.Log.Format == config.LogFormatLogr {
		a.svcLogger = core.NewLogrLogger(newLogr(a.stderr, a.verbose))
	}
	if cfg.Metrics.Enabled {
		switch cfg.Metrics.Exporter {
		case config.ExporterExpvar:
			a.expvar = core.NewExpvarMetricsRecorder("")
			a.metrics = a.expvar
		default:
			a.registry = prometheus.NewRegistry()
			rec, err := core.NewPrometheusMetricsRecorder(a.registry)
			if err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}
			a.metrics = rec
		}
	}
	if err := a.openTrace(cfg.Trace.Path); err != nil {
		return err
	}
	a.logger.Debug("configuration loaded",
		zap.String("model", cfg.Model.Name),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", cfg.Blob.Driver))
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if verbose {
		zc = zap.NewDevelopmentConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

// newLogr adapts logr onto w through funcr. Verbose output includes V(1)
// debug lines.
func newLogr(w io.Writer, verbose bool) logr.Logger {
	opts := funcr.Options{LogTimestamp: true}
	if verbose {
		opts.Verbosity = 1
	}
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintln(w, prefix, args)
			return
		}
		fmt.Fprintln(w, args)
	}, opts)
}

func (a *app) openTrace(path string) error {
	switch path {
	case "":
		return nil
	case "-":
		a.tracer = core.NewJSONTracer(a.stderr)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	a.closers = append(a.closers, f)
	a.tracer = core.NewJSONTracer(f)
	return nil
}

func (a *app) newModel() (*engine.Model, error) {
	model := engine.NewModel(engine.WithName(a.cfg.Model.Name))
	if budget := a.cfg.Model.RetrofitBudget; budget > 0 {
		meta, err := model.InstallPlugin(engine.RetrofitBudgetPlugin{Limit: budget})
		if err != nil {
			return nil, err
		}
		a.logger.Debug("plugin installed", zap.String("plugin", meta.Name), zap.Strings("rules", meta.Rules))
	}
	return model, nil
}

func (a *app) newService(model *engine.Model, opts ...core.ServiceOption) *core.Service {
	base := []core.ServiceOption{
		core.WithLogger(a.svcLogger),
		core.WithDefaultSink(domain.NewLog()),
	}
	if a.metrics != nil {
		base = append(base, core.WithMetricsRecorder(a.metrics))
	}
	if a.tracer != nil {
		base = append(base, core.WithTracer(a.tracer))
	}
	return core.NewService(model, append(base, opts...)...)
}

func (a *app) openStore(ctx context.Context) (domain.SnapshotStore, error) {
	store, err := persistence.Open(ctx, a.cfg.PersistenceConfig())
	if err != nil {
		return nil, err
	}
	a.logger.Debug("snapshot store opened", zap.String("driver", store.Driver()))
	return store, nil
}

func (a *app) printLog(diag *domain.Log) {
	if diag == nil {
		return
	}
	fmt.Fprint(a.stdout, diag.Format(a.cfg.Log.WriteTags, a.cfg.Log.MaxEntries))
}

// printMetrics writes one line per sample of the gathered counters and
// histograms.
func (a *app) printMetrics() error {
	if a.expvar != nil {
		fmt.Fprintln(a.stdout, a.expvar.Name(), expvar.Get(a.expvar.Name()).String())
		return nil
	}
	if a.registry == nil {
		return nil
	}
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(a.stdout, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				fmt.Fprintf(a.stdout, "%s_count{%s} %d\n", mf.GetName(), strings.Join(labels, ","), m.GetHistogram().GetSampleCount())
			}
		}
	}
	return nil
}
