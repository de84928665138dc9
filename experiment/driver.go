package experiment

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"time"

	"consensussim/interfaces"
	"consensussim/util/file"
	"consensussim/util/metrics"
	"consensussim/util/stats"
	"consensussim/util/validation"
	"consensussim/world"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Driver runs sweeps of isolated instances on a bounded worker pool.
type Driver struct {
	config  *file.Config
	library *file.Library
	logger  zerolog.Logger
	sink    metrics.Sink
}

func NewDriver(config *file.Config, library *file.Library, logger zerolog.Logger) *Driver {
	return &Driver{config: config, library: library, logger: logger}
}

// SetSink forwards every sample of every instance to sink.
func (d *Driver) SetSink(sink metrics.Sink) {
	d.sink = sink
}

// job is one fully resolved instance of a sweep.
type job struct {
	key        string
	point      Point
	repetition int
	seed       uint64
	protocol   *file.ProtocolConfig
	network    *file.NetworkConfig
	failures   file.FailureConfig
}

// RunNamedScenario looks the name up among the tests, then the experiments.
func (d *Driver) RunNamedScenario(ctx context.Context, name string) (*ResultSet, error) {
	if test, err := d.library.Test(name); err == nil {
		return d.RunTest(ctx, name, test)
	}
	experiment, err := d.library.Experiment(name)
	if err != nil {
		return nil, eris.Wrapf(interfaces.ErrConfig, "no test or experiment named %q", name)
	}
	return d.Run(ctx, name, experiment)
}

func (d *Driver) RunTest(ctx context.Context, name string, test *file.TestConfig) (*ResultSet, error) {
	if err := validation.ValidateTest(name, test, d.library); err != nil {
		return nil, err
	}
	return d.run(ctx, name, test.Experiment())
}

// Run validates the experiment and every sweep point, then executes all of
// them. On interrupt the results completed so far are returned and written
// together with ErrInterrupted.
func (d *Driver) Run(ctx context.Context, name string, experiment *file.ExperimentConfig) (*ResultSet, error) {
	if err := validation.ValidateExperiment(name, experiment, d.library); err != nil {
		return nil, err
	}
	return d.run(ctx, name, experiment)
}

func (d *Driver) run(ctx context.Context, name string, experiment *file.ExperimentConfig) (*ResultSet, error) {
	jobs, err := d.jobs(experiment)
	if err != nil {
		return nil, err
	}
	parameters := make([]string, len(experiment.Parameters))
	for i, p := range experiment.Parameters {
		parameters[i] = p.Name
	}
	results := NewResultSet(name, parameters, metricNames(experiment))

	workers := d.config.Parallelism()
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log := d.logger.With().Str("experiment", name).Logger()
	log.Info().Int("runs", len(jobs)).Int("workers", workers).Msg("sweep started")
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		j := j
		g.Go(func() error {
			result, ok := d.runJob(gctx, name, experiment, j, log)
			if !ok {
				return nil
			}
			return results.Add(result)
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if experiment.Repetitions > 1 && len(experiment.Asserts) > 0 {
		results.SetPointChecks(CheckPoints(Summarize(results), experiment.Asserts))
		for _, c := range results.PointChecks() {
			for _, a := range c.Assertions {
				if !a.Passed {
					log.Warn().Str("point", c.Key).Str("assertion", a.String()).Msg("assertion failed on the mean")
				}
			}
			if c.Failed > 0 {
				log.Warn().Str("point", c.Key).Int("failed", c.Failed).Msg("point has failed runs")
			}
		}
	}

	if err := d.writeResults(name, results); err != nil {
		log.Error().Err(err).Msg("writing results failed")
	}
	log.Info().
		Int("completed", results.Len()).
		Int("failed", len(results.Failures())).
		Dur("took", time.Since(start)).
		Msg("sweep ended")
	if ctx.Err() != nil {
		return results, eris.Wrapf(interfaces.ErrInterrupted, "%v: %d of %d runs completed", name, results.Len(), len(jobs))
	}
	return results, nil
}

// jobs expands the sweep and validates every point before anything runs.
func (d *Driver) jobs(experiment *file.ExperimentConfig) ([]job, error) {
	baseProtocol, err := d.library.Protocol(experiment.Protocol)
	if err != nil {
		return nil, eris.Wrap(interfaces.ErrConfig, err.Error())
	}
	baseNetwork, err := d.library.Network(experiment.Network)
	if err != nil {
		return nil, eris.Wrap(interfaces.ErrConfig, err.Error())
	}
	repetitions := experiment.Repetitions
	if repetitions <= 0 {
		repetitions = 1
	}

	points := Expand(experiment.Parameters)
	jobs := make([]job, 0, len(points)*repetitions)
	for _, point := range points {
		protocol, network, failures := baseProtocol.Clone(), baseNetwork.Clone(), experiment.Failures
		for _, v := range point.Values {
			if err := file.ApplyParameter(v.Name, v.Value, protocol, network, &failures); err != nil {
				return nil, eris.Wrapf(interfaces.ErrConfig, "%v: %v", point.Key(), err)
			}
		}
		if err := validation.ValidateInstance(protocol, network, &failures, &experiment.Timeout); err != nil {
			return nil, eris.Wrapf(err, "sweep point %v", point.Key())
		}
		for rep := 0; rep < repetitions; rep++ {
			seed := d.config.Seed() + uint64(rep)
			jobs = append(jobs, job{
				key:        fmt.Sprintf("%v,seed=%d", point.Key(), seed),
				point:      point,
				repetition: rep,
				seed:       seed,
				protocol:   protocol.Clone(),
				network:    network.Clone(),
				failures:   failures,
			})
		}
	}
	return jobs, nil
}

// runJob returns false when the run was interrupted and must not be recorded.
func (d *Driver) runJob(ctx context.Context, name string, experiment *file.ExperimentConfig, j job, log zerolog.Logger) (*Result, bool) {
	result := &Result{Key: j.key, Point: j.point, Repetition: j.repetition, Seed: j.seed}
	runLog := log.With().Str("key", j.key).Logger()

	var auditOut io.WriteCloser
	if d.config.AuditLog() && d.config.OutPath() != "" {
		f, err := file.CreateOutFile(file.RunDir(d.config.OutPath(), name, j.key), "audit.csv")
		if err != nil {
			result.Error = err.Error()
			return result, true
		}
		defer f.Close()
		auditOut = f
	}
	config := world.InstanceConfig{
		Name:           j.key,
		Protocol:       j.protocol,
		Network:        j.network,
		Failures:       j.failures,
		Timeout:        experiment.Timeout,
		Seed:           j.seed,
		MaxQueueLength: d.config.MaxQueueLength(),
		UseMetrics:     d.config.UseMetrics(),
		Logger:         d.logger,
		Sink:           d.sink,
	}
	if auditOut != nil {
		config.AuditOut = auditOut
	}
	instance, err := world.NewInstance(config)
	if err != nil {
		result.Error = err.Error()
		return result, true
	}

	runCtx := ctx
	if seconds := d.config.WatchdogSeconds(); seconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
		defer cancel()
	}
	if err := instance.Run(runCtx); err != nil {
		switch {
		case ctx.Err() != nil:
			runLog.Warn().Msg("run interrupted")
			return nil, false
		case runCtx.Err() != nil:
			err = eris.Wrapf(interfaces.ErrWatchdog, "%v exceeded %ds", j.key, d.config.WatchdogSeconds())
		}
		runLog.Error().Err(err).Msg("run failed")
		result.Error = err.Error()
		return result, true
	}

	summary := instance.Summary()
	result.Summary = summary
	result.Metrics = make(map[string]float64)
	for _, m := range metricNames(experiment) {
		// names were validated up front
		v, _ := summary.Get(m)
		result.Metrics[m] = v
	}
	// with repetitions the assertions hold for the mean of a point, see run
	if experiment.Repetitions <= 1 {
		for _, a := range experiment.Asserts {
			check := Check(a, result.Metrics[a.Metric])
			result.Assertions = append(result.Assertions, check)
			if !check.Passed {
				runLog.Warn().Str("assertion", check.String()).Msg("assertion failed")
			}
		}
	}
	if err := d.writeRun(name, j.key, instance); err != nil {
		runLog.Error().Err(err).Msg("writing run output failed")
	}
	return result, true
}

func (d *Driver) writeRun(name string, key string, instance *world.World) error {
	if d.config.OutPath() == "" {
		return nil
	}
	dir := file.RunDir(d.config.OutPath(), name, key)
	f, err := file.CreateOutFile(dir, "stats.json")
	if err != nil {
		return err
	}
	defer f.Close()
	if err := stats.PrintStatsOverview(instance, f); err != nil {
		return err
	}
	if d.config.UseMetrics() {
		m, err := file.CreateOutFile(dir, "metrics.json")
		if err != nil {
			return err
		}
		defer m.Close()
		instance.Metrics().WriteToFile(m)
	}
	return nil
}

func (d *Driver) writeResults(name string, results *ResultSet) error {
	if d.config.OutPath() == "" {
		return nil
	}
	dir := filepath.Join(d.config.OutPath(), name)
	csvFile, err := file.CreateOutFile(dir, "results.csv")
	if err != nil {
		return err
	}
	defer csvFile.Close()
	if err := results.WriteCSV(csvFile); err != nil {
		return err
	}
	jsonFile, err := file.CreateOutFile(dir, "results.json")
	if err != nil {
		return err
	}
	defer jsonFile.Close()
	if err := results.WriteJSON(jsonFile); err != nil {
		return err
	}
	summaryFile, err := file.CreateOutFile(dir, "summary.csv")
	if err != nil {
		return err
	}
	defer summaryFile.Close()
	return WriteSummaryCSV(summaryFile, results.Metrics, Summarize(results))
}

// metricNames lists the requested metrics followed by asserted ones not requested.
func metricNames(experiment *file.ExperimentConfig) []string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(experiment.Metrics)+len(experiment.Asserts))
	for _, m := range experiment.Metrics {
		if !seen[m] {
			seen[m] = true
			names = append(names, m)
		}
	}
	for _, a := range experiment.Asserts {
		if !seen[a.Metric] {
			seen[a.Metric] = true
			names = append(names, a.Metric)
		}
	}
	return names
}
