// Command salesdash serves the sales dashboard API or renders a one-shot report.
//
// Serve the API for a dataset and reload it when the file changes:
//
//	salesdash -serve -source train.csv.gz -watch
//
// Render the store tab for store 3 as text:
//
//	salesdash -source s3://bucket/train.csv -view store -store 3 -format text
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/bleedingdev/salesdash/internal/api"
	"github.com/bleedingdev/salesdash/internal/config"
	"github.com/bleedingdev/salesdash/internal/export"
	"github.com/bleedingdev/salesdash/internal/logging"
	"github.com/bleedingdev/salesdash/internal/persistence"
	"github.com/bleedingdev/salesdash/internal/report"
	"github.com/bleedingdev/salesdash/internal/session"
	"github.com/bleedingdev/salesdash/internal/source"
	"github.com/bleedingdev/salesdash/internal/watch"
)

type options struct {
	configPath string
	envFile    string
	source     string
	serve      bool
	open       bool
	watch      bool

	view       string
	store      string
	storeState string
	state      string
	year       string
	format     string
	out        string
	selectPath string

	snapshot string
	keep     int
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("salesdash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.envFile, "env", "", "env file to load (default .env when present)")
	fs.StringVar(&o.source, "source", "", "dataset location: path, s3://, postgres:// or sqlite://")
	fs.StringVar(&o.source, "file", "", "alias for -source")
	fs.BoolVar(&o.serve, "serve", false, "serve the dashboard API")
	fs.BoolVar(&o.open, "open", false, "open the dashboard in a browser once serving")
	fs.BoolVar(&o.watch, "watch", false, "reload a local dataset file when it changes")
	fs.StringVar(&o.view, "view", "all", "report view: overview, store, state, comparison or all")
	fs.StringVar(&o.store, "store", "", "store number for the store view (default first store)")
	fs.StringVar(&o.storeState, "store-state", "", "state for the state view (default -state, then first state)")
	fs.StringVar(&o.state, "state", "all", "comparison state filter")
	fs.StringVar(&o.year, "year", "all", "comparison year filter")
	fs.StringVar(&o.format, "format", "pretty", "output format: json, pretty, text, csv, xlsx or sqlite")
	fs.StringVar(&o.out, "out", "", "output file (default stdout)")
	fs.StringVar(&o.selectPath, "select", "", "path to extract from JSON output, e.g. overview.top_products.0")
	fs.StringVar(&o.snapshot, "snapshot", "", "also save the dataset and report to this SQLite snapshot store")
	fs.IntVar(&o.keep, "keep", 0, "snapshots to retain in the -snapshot store, zero keeps all")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return &o, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.WithError(err).Error("salesdash failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	var envFiles []string
	if o.envFile != "" {
		envFiles = append(envFiles, o.envFile)
	}
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.source != "" {
		cfg.Dataset = o.source
	}
	if o.watch {
		cfg.Watch.Enabled = true
	}
	if o.open {
		cfg.Dashboard.OpenBrowser = true
	}

	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()
	if !o.serve && cfg.Logging.File == "" {
		log.SetOutput(stderr)
	}
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	loader := source.NewLoader(cfg)
	sessions := session.NewManager()
	if cfg.Dataset != "" {
		ds, err := loader.Load(ctx, cfg.Dataset)
		if err != nil {
			return err
		}
		sessions.Replace(cfg.Dataset, ds)
	}

	if o.serve {
		return serve(ctx, cfg, sessions, loader)
	}
	return renderReport(ctx, o, sessions, stdout)
}

func serve(ctx context.Context, cfg *config.Config, sessions *session.Manager, loader *source.Loader) error {
	if cfg.Watch.Enabled && cfg.Dataset != "" {
		if err := startWatch(ctx, cfg, sessions, loader); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}
	if cfg.Dashboard.OpenBrowser {
		url := dashboardURL(cfg, ln.Addr())
		if err := open.Start(url); err != nil {
			log.WithError(err).WithField("url", url).Warn("Failed to open browser")
		}
	}
	return api.NewServer(cfg, sessions, loader).Serve(ctx, ln)
}

func startWatch(ctx context.Context, cfg *config.Config, sessions *session.Manager, loader *source.Loader) error {
	kind, err := source.KindOf(cfg.Dataset)
	if err != nil {
		return err
	}
	if kind != source.KindFile {
		log.WithField("kind", kind).Warn("Watch only applies to local dataset files, ignoring")
		return nil
	}
	debounce, err := cfg.DebounceInterval()
	if err != nil {
		return err
	}
	location := cfg.Dataset
	go func() {
		err := watch.File(ctx, source.LocalPath(location), debounce, func(ctx context.Context) error {
			ds, err := loader.Load(ctx, location)
			if err != nil {
				return err
			}
			sessions.Replace(location, ds)
			return nil
		})
		if err != nil {
			log.WithError(err).Error("Dataset watcher stopped")
		}
	}()
	return nil
}

// dashboardURL points at the overview on a host the local browser can reach.
func dashboardURL(cfg *config.Config, addr net.Addr) string {
	host := cfg.Host
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = tcp.Port
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/api/overview"
}

func renderReport(ctx context.Context, o *options, sessions *session.Manager, stdout io.Writer) error {
	s, err := sessions.Current()
	if err != nil {
		return fmt.Errorf("%w: pass -source or set dataset in the config", err)
	}
	format, err := export.ParseFormat(o.format)
	if err != nil {
		return err
	}
	if o.selectPath != "" && format != export.FormatJSON && format != export.FormatPretty {
		return fmt.Errorf("-select requires json or pretty format, got %s", format)
	}
	q, err := report.ParseQuery(o.view, o.store, o.storeState, o.state, o.year)
	if err != nil {
		return err
	}
	b, err := report.BuildBundle(s.Rows(), q)
	if err != nil {
		return err
	}

	doc := export.Document{
		Bundle: b,
		Rows:   s.Rows(),
		Meta: export.Meta{
			Session:     s.ID,
			Source:      s.DisplaySource,
			Fingerprint: s.Dataset.Fingerprint(),
			Rows:        s.Dataset.Len(),
			GeneratedAt: time.Now().UTC(),
		},
	}

	if o.snapshot != "" {
		if err := saveSnapshot(ctx, o, doc); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	if err := export.Render(ctx, &buf, format, doc); err != nil {
		return err
	}
	data := buf.Bytes()
	if o.selectPath != "" {
		result := gjson.GetBytes(data, o.selectPath)
		if !result.Exists() {
			return fmt.Errorf("path %q not found in report", o.selectPath)
		}
		data = []byte(result.Raw)
		if format == export.FormatPretty {
			data = pretty.Pretty(data)
		} else {
			data = append(data, '\n')
		}
	}

	if o.out == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(o.out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	log.WithFields(log.Fields{"path": o.out, "format": format, "bytes": len(data)}).Info("Report written")
	return nil
}

func saveSnapshot(ctx context.Context, o *options, doc export.Document) error {
	_, err := export.WriteSQLite(ctx, o.snapshot, persistence.SaveRequest{
		Snapshot: persistence.Snapshot{
			SessionID:   doc.Meta.Session,
			Source:      doc.Meta.Source,
			Fingerprint: doc.Meta.Fingerprint,
			CreatedAt:   doc.Meta.GeneratedAt,
		},
		Rows:   doc.Rows,
		Tables: doc.Bundle.Tables(),
		Keep:   o.keep,
	})
	return err
}
