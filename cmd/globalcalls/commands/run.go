package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/globalcalls/am"
	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/evidence"
	"github.com/teranos/globalcalls/job"
	"github.com/teranos/globalcalls/logger"
	"github.com/teranos/globalcalls/pipeline"
	"github.com/teranos/globalcalls/store"
)

// RunCmd aggregates the calls of the requested species
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Propagate and aggregate the expression calls of species",
	Long: `Propagate raw expression evidence of each species along its condition
ontologies and insert the aggregated conditions and calls.

Each species runs in its own transaction: it is either fully committed or
fully rolled back, and a failing species does not stop the others.

--params is repeatable; each value is a comma-separated axis list
(anat, stage, sex, strain).`,
	Example: `  globalcalls run --species 9606 --params anat,stage
  globalcalls run --species 9606,10090 --params anat --params anat,stage --data-types rna_seq,affymetrix
  globalcalls run --species 7955 --metrics-addr :9090 --workers 8`,
	RunE: runAggregation,
}

func init() {
	RunCmd.Flags().Int64Slice("species", nil, "Species ids to aggregate (required)")
	RunCmd.Flags().StringArray("params", []string{"anat,stage"}, "Axis-combination, repeatable")
	RunCmd.Flags().String("data-types", "", "Comma-separated data types (default: all)")
	RunCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address during the run (overrides metrics.address)")
	RunCmd.Flags().Int("workers", 0, "Parallel gene-batch workers (overrides pipeline.workers)")
	RunCmd.Flags().Int("batch-size", 0, "Genes per worker batch (overrides pipeline.batch_size)")
	RunCmd.Flags().Int("descendant-depth", -1, "Levels of descendants receiving absent evidence (overrides pipeline.descendant_depth)")
	_ = RunCmd.MarkFlagRequired("species")
}

// buildRequest turns flag values into a job request
func buildRequest(species []int64, params []string, dataTypes string) (job.Request, error) {
	req := job.Request{SpeciesIDs: species}
	for _, p := range params {
		parsed, err := condition.ParseParams(p)
		if err != nil {
			return job.Request{}, err
		}
		req.Params = append(req.Params, parsed)
	}
	dts, err := evidence.ParseDataTypes(dataTypes)
	if err != nil {
		return job.Request{}, err
	}
	req.DataTypes = dts
	return req, req.Validate()
}

// jobConfig merges configuration with command-line overrides
func jobConfig(cfg *am.Config, workers, batchSize, depth int) job.Config {
	pc := cfg.GetPipelineConfig()
	if workers > 0 {
		pc.Workers = workers
	}
	if batchSize > 0 {
		pc.BatchSize = batchSize
	}
	if depth >= 0 {
		pc.DescendantDepth = depth
	}
	return job.Config{
		Pipeline: pipeline.Config{
			Workers:       pc.Workers,
			BatchSize:     pc.BatchSize,
			QueueCapacity: pc.QueueCapacity,
		},
		DescendantDepth: pc.DescendantDepth,
		InsertChunkRows: pc.InsertChunkRows,
	}
}

func runAggregation(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	species, _ := flags.GetInt64Slice("species")
	params, _ := flags.GetStringArray("params")
	dataTypes, _ := flags.GetString("data-types")
	workers, _ := flags.GetInt("workers")
	batchSize, _ := flags.GetInt("batch-size")
	depth, _ := flags.GetInt("descendant-depth")
	metricsAddr, _ := flags.GetString("metrics-addr")
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Address
	}

	req, err := buildRequest(species, params, dataTypes)
	if err != nil {
		return err
	}

	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		shutdown := serveMetrics(metricsAddr)
		defer shutdown()
	}

	runner := job.NewRunner(
		store.NewStore(conn, cfg.GetDatabaseDriver()),
		jobConfig(cfg, workers, batchSize, depth),
		logger.ComponentLogger("globalcalls"),
	)
	report, err := runner.Run(ctx, req)
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)
	return report.Err()
}

// serveMetrics exposes the Prometheus registry until the returned func is called
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log := logger.ComponentLogger("metrics")
	go func() {
		log.Infow("Serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnw("Metrics server stopped", logger.FieldError, err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printReport(w io.Writer, report *job.Report) {
	fmt.Fprintln(w, pterm.Bold.Sprintf("Job %s", report.JobID))

	data := pterm.TableData{{"Species", "Outcome", "Genes", "Combination", "Conditions", "Relations", "Calls", "Duration"}}
	for _, s := range report.Species {
		id := strconv.FormatInt(s.SpeciesID, 10)
		if len(s.Combinations) == 0 {
			data = append(data, []string{id, s.Outcome.String(), strconv.Itoa(s.Genes), "-", "-", "-", "-", s.Duration.Round(time.Millisecond).String()})
			continue
		}
		for _, c := range s.Combinations {
			data = append(data, []string{
				id,
				s.Outcome.String(),
				strconv.Itoa(s.Genes),
				c.Params.String(),
				strconv.FormatInt(c.Conditions, 10),
				strconv.FormatInt(c.Relations, 10),
				strconv.FormatInt(c.Calls, 10),
				c.Duration.Round(time.Millisecond).String(),
			})
		}
	}
	_ = pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()

	for _, s := range report.Failed() {
		pterm.Error.WithWriter(w).Printfln("species %d: %s", s.SpeciesID, firstLine(s.Err))
	}
	if len(report.Failed()) == 0 {
		pterm.Success.WithWriter(w).Printfln("%d species committed in %s", len(report.Species), report.Duration.Round(time.Millisecond))
	}
}

func firstLine(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
