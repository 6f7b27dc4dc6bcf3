package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/op/go-logging"

	"bitbucket.org/stratsel/stratsel/config"
	"bitbucket.org/stratsel/stratsel/encompass"
	"bitbucket.org/stratsel/stratsel/sampler"
)

func init() {
	for _, m := range modules {
		logging.SetLevel(logging.ERROR, m)
	}
}

// orderProblem is p1 <= p2 <= p3 with data.
const orderProblem = `
A:
  - [1, -1, 0]
  - [0, 1, -1]
  - [-1, 0, 0]
  - [0, 0, 1]
b: [0, 0, 0, 1]
k: [2, 5, 8]
n: [10, 10, 10]
M: [2000]
steps: [1, 2]
X: [[0.1, 0.2, 0.3], [0.3, 0.2, 0.1]]
`

func testSettings(tst *testing.T, problem string) (*settings, *bytes.Buffer) {
	dir := tst.TempDir()
	fn := filepath.Join(dir, "problem.yaml")
	if err := os.WriteFile(fn, []byte(problem), 0600); err != nil {
		tst.Fatal(err)
	}
	out := &bytes.Buffer{}
	return &settings{problemF: fn, startSearch: "random", out: out, checkpointSeconds: 60}, out
}

func TestInside(tst *testing.T) {
	s, out := testSettings(tst, orderProblem)
	res, err := run(context.Background(), insideCmd.FullCommand(), s, sampler.NewRand(1))
	if err != nil {
		tst.Fatal(err)
	}
	in := res.([]bool)
	if !in[0] || in[1] {
		tst.Error("Wrong membership:", in)
	}
	if out.String() != "true\nfalse\n" {
		tst.Errorf("Wrong output: %q", out.String())
	}

	s, out = testSettings(tst, orderProblem)
	res, err = run(context.Background(), countSamplesCmd.FullCommand(), s, sampler.NewRand(1))
	if err != nil {
		tst.Fatal(err)
	}
	if res.(int) != 1 || strings.TrimSpace(out.String()) != "1" {
		tst.Error("Wrong count:", res, out.String())
	}
}

func TestStart(tst *testing.T) {
	s, out := testSettings(tst, orderProblem)
	res, err := run(context.Background(), startCmd.FullCommand(), s, sampler.NewRand(2))
	if err != nil {
		tst.Fatal(err)
	}
	x := res.([]float64)
	if x[0] > x[1] || x[1] > x[2] {
		tst.Error("Start point outside of the polytope:", x)
	}
	if len(strings.Split(strings.TrimSpace(out.String()), "\t")) != 3 {
		tst.Error("Wrong output:", out.String())
	}
}

func TestSample(tst *testing.T) {
	s, out := testSettings(tst, orderProblem)
	res, err := run(context.Background(), sampleCmd.FullCommand(), s, sampler.NewRand(3))
	if err != nil {
		tst.Fatal(err)
	}
	sum := res.(*SampleSummary)
	if sum.Samples != 2000 {
		tst.Error("Wrong number of samples:", sum.Samples)
	}
	if !(sum.Summary.Mean[0] < sum.Summary.Mean[1] && sum.Summary.Mean[1] < sum.Summary.Mean[2]) {
		tst.Error("Means are not ordered:", sum.Summary.Mean)
	}
	// header and one line per sample
	if lines := strings.Count(out.String(), "\n"); lines != 2001 {
		tst.Error("Wrong number of lines:", lines)
	}
}

func TestHitAndRunFiles(tst *testing.T) {
	s, _ := testSettings(tst, orderProblem)
	dir := tst.TempDir()
	s.outF = filepath.Join(dir, "samples.tsv.gz")
	s.plot = filepath.Join(dir, "trace.png")
	s.hist = filepath.Join(dir, "hist")
	if _, err := run(context.Background(), hitAndRunCmd.FullCommand(), s, sampler.NewRand(4)); err != nil {
		tst.Fatal(err)
	}
	for _, fn := range []string{s.outF, s.plot, s.hist + "_p3.png"} {
		if _, err := os.Stat(fn); err != nil {
			tst.Error("Missing output:", err)
		}
	}
}

func TestStepwiseCheckpoint(tst *testing.T) {
	s, out := testSettings(tst, orderProblem)
	s.checkpointF = filepath.Join(tst.TempDir(), "checkpoint.db")
	res, err := run(context.Background(), stepwiseCmd.FullCommand(), s, sampler.NewRand(5))
	if err != nil {
		tst.Fatal(err)
	}
	first := res.(*encompass.Stepwise)
	if len(first.Count) != 3 || first.Integral <= 0 {
		tst.Error("Wrong stepwise result:", first)
	}
	if !strings.Contains(out.String(), "Stepwise encompassing") {
		tst.Error("No result table:", out.String())
	}

	// finished blocks are read from the checkpoint
	s.out = &bytes.Buffer{}
	res, err = run(context.Background(), stepwiseCmd.FullCommand(), s, sampler.NewRand(6))
	if err != nil {
		tst.Fatal(err)
	}
	if second := res.(*encompass.Stepwise); second.Integral != first.Integral {
		tst.Error("Checkpoint was not used:", first.Integral, second.Integral)
	}
}

func TestCount(tst *testing.T) {
	s, out := testSettings(tst, orderProblem)
	res, err := run(context.Background(), countCmd.FullCommand(), s, sampler.NewRand(7))
	if err != nil {
		tst.Fatal(err)
	}
	if c := res.(*encompass.Count); c.M != 2000 {
		tst.Error("Wrong number of samples:", c.M)
	}
	if !strings.Contains(out.String(), "2,000") {
		tst.Error("No result table:", out.String())
	}
}

func TestMissingProblem(tst *testing.T) {
	s := &settings{out: &bytes.Buffer{}}
	if _, err := run(context.Background(), countCmd.FullCommand(), s, sampler.NewRand(1)); err == nil {
		tst.Error("Expected an error without a problem file")
	}
}

func TestStepwiseKey(tst *testing.T) {
	s, _ := testSettings(tst, orderProblem)
	p, err := s.problem()
	if err != nil {
		tst.Fatal(err)
	}
	key, err := stepwiseKey(p)
	if err != nil {
		tst.Fatal(err)
	}
	same, _ := stepwiseKey(p)
	if string(key) != string(same) {
		tst.Error("Key is not stable")
	}

	burnin := 100
	changes := []func(q *config.Problem){
		func(q *config.Problem) { q.Batch = 17 },
		func(q *config.Problem) { q.Burnin = &burnin },
		func(q *config.Problem) { q.Start = []float64{0.1, 0.2, 0.3} },
		func(q *config.Problem) { q.Steps = []int{1} },
	}
	for i, change := range changes {
		q := *p
		change(&q)
		other, err := stepwiseKey(&q)
		if err != nil {
			tst.Fatal(err)
		}
		if string(other) == string(key) {
			tst.Errorf("Change %d does not change the key", i)
		}
	}
}

// A changed starting point does not resume an old checkpoint.
func TestStepwiseCheckpointChangedStart(tst *testing.T) {
	s, _ := testSettings(tst, orderProblem)
	s.checkpointF = filepath.Join(tst.TempDir(), "checkpoint.db")
	res, err := run(context.Background(), stepwiseCmd.FullCommand(), s, sampler.NewRand(5))
	if err != nil {
		tst.Fatal(err)
	}
	first := res.(*encompass.Stepwise)

	moved, _ := testSettings(tst, orderProblem+"start: [0.1, 0.2, 0.3]\n")
	moved.checkpointF = s.checkpointF
	res, err = run(context.Background(), stepwiseCmd.FullCommand(), moved, sampler.NewRand(6))
	if err != nil {
		tst.Fatal(err)
	}
	if second := res.(*encompass.Stepwise); second.Integral == first.Integral {
		tst.Error("Checkpoint of another start point was resumed:", second.Integral)
	}
}
