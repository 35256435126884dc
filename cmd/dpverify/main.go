// Command dpverify runs the data-plane reachability verification engine
// against a file_dir following the routes/topology.json/packet_space.json/
// edge_devices input layout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dpverify/dpverify/internal/bdd"
	"github.com/dpverify/dpverify/internal/compiler"
	"github.com/dpverify/dpverify/internal/engine"
	"github.com/dpverify/dpverify/internal/ingest"
	"github.com/dpverify/dpverify/internal/logging"
	"github.com/dpverify/dpverify/internal/metrics"
	"github.com/dpverify/dpverify/internal/model"
	"github.com/dpverify/dpverify/internal/npnet"
	"github.com/dpverify/dpverify/internal/orchestrator"
)

const defaultFileDir = "./testdata/fixture"

var (
	logFormat    string
	logLevel     string
	ipBits       int
	mode         string
	maxArriveCnt uint32
	poolSize     int
	metricsAddr  string
	diagDir      string
	pollInterval time.Duration
	maxNbhdSize  int
	probePrefix  string
	probePort    string
)

var rootCmd = &cobra.Command{
	Use:   "dpverify [file_dir]",
	Short: "Data-plane reachability verification over a fat-tree topology",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileDir := defaultFileDir
		if len(args) == 1 {
			fileDir = args[0]
		}
		return runVerify(cmd.Context(), fileDir)
	},
}

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Re-run verification on a timer against an unchanging input directory, serving its Prometheus metrics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileDir := defaultFileDir
		if len(args) == 1 {
			fileDir = args[0]
		}
		if err := runVerify(cmd.Context(), fileDir); err != nil {
			return err
		}
		return serveMetrics(cmd.Context(), fileDir)
	},
}

var dumpLECCmd = &cobra.Command{
	Use:   "dump-lec <file_dir> <device>",
	Short: "Compile one device's rules and print its resulting LECs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dumpLEC(args[0], args[1], probePrefix, probePort)
	},
}

func init() {
	dumpLECCmd.Flags().StringVar(&probePrefix, "probe", "", "ip/prefix_len to test for full coverage by --probe-port's compiled LEC, e.g. 10.0.0.0/24")
	dumpLECCmd.Flags().StringVar(&probePort, "probe-port", "", "Port name PortCovers checks --probe against (required with --probe)")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&ipBits, "ip-bits", bdd.DefaultIPBits, "Total BDD variable width (destination prefix + reserved src-device range)")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "backward", "Traversal seeding mode (backward, forward)")
	rootCmd.PersistentFlags().Uint32Var(&maxArriveCnt, "max-arrive-cnt", 0, "Per-tunnel arrival count above which a suspected forwarding loop is logged (0: engine default)")
	rootCmd.PersistentFlags().IntVar(&poolSize, "pool-size", runtime.NumCPU(), "Worker pool size for the build and verify phases")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:2113", "Address to bind the metrics server to (serve-metrics only)")
	rootCmd.PersistentFlags().StringVar(&diagDir, "diag-dir", "", "Directory to write a zstd-compressed per-neighborhood diagnostic dump to (empty: skip)")
	rootCmd.PersistentFlags().DurationVar(&pollInterval, "poll-interval", time.Minute, "serve-metrics only: how often to re-run verification against file_dir")
	rootCmd.PersistentFlags().IntVar(&maxNbhdSize, "max-neighborhood-size", 0, "Cap marked devices absorbed per neighborhood during two_hops_merge (0: unbounded)")

	rootCmd.AddCommand(serveMetricsCmd)
	rootCmd.AddCommand(dumpLECCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	format := logging.FormatText
	if logFormat == "json" {
		format = logging.FormatJSON
	}
	return logging.NewLogger(logging.Config{Format: format, Level: level}, os.Stderr)
}

func parseMode() npnet.Mode {
	if mode == "forward" {
		return npnet.Forward
	}
	return npnet.Backward
}

func runVerify(ctx context.Context, fileDir string) error {
	log := newLogger()

	eng, err := engine.New(ipBits)
	if err != nil {
		return fmt.Errorf("dpverify: %w", err)
	}

	result, err := orchestrator.Run(ctx, orchestrator.Config{
		FileDir:             fileDir,
		Engine:              eng,
		Log:                 log,
		Mode:                parseMode(),
		MaxArriveCnt:        maxArriveCnt,
		PoolSize:            poolSize,
		DiagDir:             diagDir,
		MaxNeighborhoodSize: maxNbhdSize,
	})
	if err != nil {
		return fmt.Errorf("dpverify: %w", err)
	}

	snap := eng.Counters.Snapshot()
	metrics.ReachablePairsTotal.Add(float64(result.Reachable))
	metrics.UnreachablePairsTotal.Add(float64(result.Unreachable))
	metrics.TraversalStepsTotal.Add(float64(result.TraversalCount))
	metrics.SuspectedLoopsTotal.Add(float64(result.LoopSuspects))
	metrics.BuildDuration.Observe(result.BuildDuration.Seconds())
	metrics.VerifyDuration.Observe(result.VerifyDuration.Seconds())
	metrics.CanonicalTableSize.Set(float64(eng.Table.Len()))
	metrics.PublishCacheCounters(snap)

	fmt.Printf("logical cores: %d\n", runtime.NumCPU())
	fmt.Printf("build duration: %s\n", result.BuildDuration)
	fmt.Printf("verify duration: %s\n", result.VerifyDuration)
	fmt.Printf("total duration: %s\n", result.TotalDuration)
	fmt.Printf("reachable pairs: %d\n", result.Reachable)
	fmt.Printf("unreachable pairs: %d\n", result.Unreachable)
	fmt.Printf("total pairs: %d\n", result.TotalPairs)
	if result.LoopSuspects > 0 {
		log.Warn("suspected forwarding loops detected", "count", result.LoopSuspects)
	}

	return nil
}

// serveMetrics serves the metrics already published by the caller's initial
// runVerify, re-running verification against fileDir every pollInterval so
// a dashboard scraping this endpoint tracks a static input directory's
// reachability over time, until ctx is cancelled.
func serveMetrics(ctx context.Context, fileDir string) error {
	log := newLogger()

	mux := http.NewServeMux()
	mux.Handle("/metrics", gzhttp.GzipHandler(promhttp.Handler()))

	srv := &http.Server{Addr: metricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting metrics server", "address", metricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			return fmt.Errorf("dpverify: metrics server: %w", err)
		case <-ctx.Done():
			return srv.Close()
		case <-ticker.C:
			log.Info("re-running verification", "file_dir", fileDir)
			if err := runVerify(ctx, fileDir); err != nil {
				log.Error("periodic verification failed, keeping previous metrics", "error", err)
			}
		}
	}
}

// dumpLEC is the debugging subcommand: compile a single device in
// isolation and print its resulting LEC predicates, for comparing against
// a hand-derived expectation without running the whole pipeline. If probe
// is set, it also reports whether probe is fully covered by probePort's
// compiled LEC, a single device/port intersection probe without running a
// full traversal.
func dumpLEC(fileDir, deviceName, probe, probePortName string) error {
	eng, err := engine.New(bdd.DefaultIPBits)
	if err != nil {
		return err
	}

	net, err := ingest.ReadTopology(fileDir)
	if err != nil {
		return err
	}

	rules, err := ingest.ReadRules(fileDir, deviceName)
	if err != nil {
		return err
	}

	decls, err := ingest.ReadPacketSpaces(fileDir)
	if err != nil {
		return err
	}

	allSubnetSpace := eng.MakeFalse()
	var commonPrefix string
	for i, d := range decls {
		id, err := eng.L3.Make(d.Prefix, d.PrefixLen)
		if err != nil {
			return err
		}
		allSubnetSpace = eng.L3.Or(allSubnetSpace, id)
		if i == 0 {
			commonPrefix = d.Prefix
			continue
		}
		n := 0
		for n < len(commonPrefix) && n < len(d.Prefix) && commonPrefix[n] == d.Prefix[n] {
			n++
		}
		commonPrefix = commonPrefix[:n]
	}

	ports := make(map[string]struct{})
	for _, p := range net.Ports(deviceName) {
		ports[p.PortName] = struct{}{}
	}

	dev := model.NewDevice(deviceName)
	dev.Rules = rules

	if err := compiler.Compile(eng, compiler.Input{
		Device:         dev,
		Ports:          ports,
		CommonPrefix:   commonPrefix,
		AllSubnetSpace: allSubnetSpace,
	}); err != nil {
		return err
	}

	for _, lec := range dev.LECs {
		fmt.Printf("port=%s forward_type=%s predicate_id=%d\n", lec.Port, lec.ForwardType, lec.PredicateID)
	}

	if probe != "" {
		if probePortName == "" {
			return fmt.Errorf("dpverify: --probe requires --probe-port")
		}
		ip, prefixLen, err := parseCIDR(probe)
		if err != nil {
			return fmt.Errorf("dpverify: --probe: %w", err)
		}
		candidate, err := eng.L3.Make(ip, prefixLen)
		if err != nil {
			return err
		}
		fmt.Printf("probe=%s port=%s covers=%t\n", probe, probePortName, dev.PortCovers(eng, candidate, probePortName))
	}

	return nil
}

// parseCIDR splits "ip/len" into its ip and prefix-length parts.
func parseCIDR(s string) (string, int, error) {
	ip, lenStr, ok := strings.Cut(s, "/")
	if !ok {
		return "", 0, fmt.Errorf("expected ip/prefix_len, got %q", s)
	}
	prefixLen, err := strconv.Atoi(lenStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid prefix length %q: %w", lenStr, err)
	}
	return ip, prefixLen, nil
}
