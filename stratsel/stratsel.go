/*

Stratsel samples from and integrates over convex polytopes in the
unit hypercube. It estimates the mass of inequality constrained
binomial models under beta priors and posteriors, e.g. to compute
encompassing Bayes factors of order constraints.

A problem file lists the constraints A x <= b and optionally data:

	A: [[1, -1, 0], [0, 1, -1]]
	b: [0, 0]
	k: [2, 5, 9]
	n: [10, 10, 10]

Sample from the constrained posterior:

	stratsel --problem problem.yaml sample --out samples.tsv.gz

Estimate the posterior mass by stepwise counting:

	stratsel --problem problem.yaml stepwise

Run the HTTP service:

	stratsel serve --addr :5809

To see all the options run:

	stratsel --help

*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"

	"bitbucket.org/stratsel/stratsel/sampler"
	"bitbucket.org/stratsel/stratsel/server"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("stratsel")
var formatter = logging.MustStringFormatter(`%{message}`)

// modules are the loggers configured by --loglevel.
var modules = []string{"stratsel", "dist", "polytope", "sampler", "encompass", "checkpoint", "server"}

// command-line options
var (
	// application
	app = kingpin.New("stratsel", "sampling and integration over convex polytopes").Version(version)

	// input
	problemF = app.Flag("problem", "problem definition file (YAML or JSON)").ExistingFile()

	// technical
	seed         = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	showProgress = app.Flag("progress", "show progress bar").Bool()
	startSearch  = app.Flag("start-search", "starting point search if none is given "+
		"(random: rejection sampling, optimize: fall back to interior point optimization)").
		Default("random").Enum("random", "optimize")

	// output
	outLogF  = app.Flag("log", "write log to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()

	// commands
	insideCmd       = app.Command("inside", "test whether points X are inside the polytope")
	countSamplesCmd = app.Command("count-samples", "count points X inside the polytope")
	startCmd        = app.Command("start", "find a point inside the polytope")

	sampleCmd  = app.Command("sample", "Gibbs sampling from beta distributions truncated to the polytope")
	sampleOutF = sampleCmd.Flag("out", "write samples to a TSV file (.gz to compress), stdout by default").String()
	samplePlot = sampleCmd.Flag("plot", "write a trace plot to a PNG file").String()
	sampleHist = sampleCmd.Flag("hist", "write parameter histograms to PNG files PREFIX_pN.png").PlaceHolder("PREFIX").String()

	hitAndRunCmd  = app.Command("hitandrun", "hit-and-run sampling from the uniform distribution over the polytope")
	hitAndRunOutF = hitAndRunCmd.Flag("out", "write samples to a TSV file (.gz to compress), stdout by default").String()
	hitAndRunPlot = hitAndRunCmd.Flag("plot", "write a trace plot to a PNG file").String()
	hitAndRunHist = hitAndRunCmd.Flag("hist", "write parameter histograms to PNG files PREFIX_pN.png").PlaceHolder("PREFIX").String()

	countCmd = app.Command("count", "estimate the polytope mass by direct Monte Carlo counting")

	stepwiseCmd       = app.Command("stepwise", "estimate the polytope mass by stepwise counting")
	checkpointF       = stepwiseCmd.Flag("checkpoint", "checkpoint database to save and resume finished blocks").String()
	checkpointSeconds = stepwiseCmd.Flag("checkpoint-seconds", "minimal time between checkpoints").Default("60").Float64()

	serveCmd = app.Command("serve", "run the HTTP service")
	addr     = serveCmd.Flag("addr", "listening address").Default(server.DefaultAddr).String()
)

// setupLogging configures the backend and levels; the returned
// function closes the log file.
func setupLogging() (func(), error) {
	logging.SetFormatter(formatter)

	closer := func() {}
	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("error creating log file: %w", err)
		}
		closer = func() { f.Close() }
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		closer()
		return nil, err
	}
	for _, m := range modules {
		logging.SetLevel(level, m)
	}
	return closer, nil
}

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	closeLog, err := setupLogging()
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	// signals stop the computation, partial results are reported
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := &CallSummary{
		Version:     version,
		CommandLine: os.Args,
		Seed:        *seed,
		RunID:       uuid.NewString(),
		Command:     cmd,
	}
	log.Debugf("Run id: %s", summary.RunID)

	startTime := time.Now()
	if cmd == serveCmd.FullCommand() {
		err = server.New(*addr).ListenAndServe(ctx)
	} else {
		summary.Result, err = run(ctx, cmd, newSettings(), sampler.NewRand(uint64(*seed)))
	}
	if err != nil {
		log.Fatal(err)
	}
	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.TotalTime = deltaT.Seconds()

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			if err := os.WriteFile(*jsonF, j, 0666); err != nil {
				log.Error("Error creating json output file:", err)
			}
		}
	}
}
