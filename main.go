package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aSeaFood/STER/params"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// Files read from the data directory and written to the output directory.
const (
	relationsFile = "relations.txt"
	embeddingFile = "w2v.txt"
	vocabFile     = "vocab.json"
	runsFile      = "runs.db"
	epochLogFile  = "training_log.csv"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ster: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ster",
		Usage: "distilled sequence-to-sequence relation triplet extraction",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "device", Value: "cpu", Usage: "cpu, or cpu:N to process N samples of a batch in parallel"},
			&cli.Int64Flag{Name: "seed", Value: 1023, Usage: "random seed"},
			&cli.StringFlag{Name: "data", Value: "data", Usage: "input data directory"},
			&cli.StringFlag{Name: "out", Value: "out", Usage: "output directory for models, logs and predictions"},
			&cli.StringFlag{Name: "config", Usage: "YAML file overriding the default hyper-parameters"},
		},
		Commands: []*cli.Command{
			{
				Name:  "train",
				Usage: "build the vocabulary and train the student and both teachers",
				Action: func(c *cli.Context) error {
					e, err := newEnv(c, "training.log")
					if err != nil {
						return err
					}
					defer e.close()
					return runTrain(e)
				},
			},
			{
				Name:  "test",
				Usage: "decode the test split with saved checkpoints and score the predictions",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "epoch", Usage: "snapshot epoch to load, 0 for the best checkpoints"},
					&cli.IntFlag{Name: "mode", Value: 1, Usage: "1 for full match, any other value for head-word match"},
				},
				Action: func(c *cli.Context) error {
					e, err := newEnv(c, "test.log")
					if err != nil {
						return err
					}
					defer e.close()
					return runTest(e, c.Int("epoch"), c.Int("mode"))
				},
			},
			{
				Name:      "score",
				Usage:     "score a prediction file against a reference triplet file",
				ArgsUsage: "<reference> <prediction>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "mode", Value: 1, Usage: "1 for full match, any other value for head-word match"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return errors.New("score needs a reference file and a prediction file")
					}
					return runScore(c.App.Writer, filepath.Join(c.String("data"), relationsFile), c.Args().Get(0), c.Args().Get(1), c.Int("mode"))
				},
			},
			{
				Name:  "extract",
				Usage: "extract triplets from sentences typed at a prompt with the student model",
				Action: func(c *cli.Context) error {
					e, err := newEnv(c, "")
					if err != nil {
						return err
					}
					defer e.close()
					return runExtract(e)
				},
			},
			{
				Name:  "history",
				Usage: "print the recorded epochs and test results of a run",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "run", Usage: "run name, the latest run when empty"},
					&cli.BoolFlag{Name: "list", Usage: "only list the recorded runs"},
				},
				Action: func(c *cli.Context) error {
					return runHistory(c.App.Writer, filepath.Join(c.String("out"), runsFile), c.String("run"), c.Bool("list"))
				},
			},
		},
	}
}

// env is what every command needs from the global flags.
type env struct {
	cfg     params.TrainingConfig
	seed    int64
	dataDir string
	outDir  string
	workers int
	log     *zap.Logger
	close   func()
}

func newEnv(c *cli.Context, logName string) (*env, error) {
	cfg, err := params.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	workers, err := parseDevice(c.String("device"))
	if err != nil {
		return nil, err
	}
	outDir := c.String("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create output directory")
	}
	logger, closeLog, err := newLogger(outDir, logName)
	if err != nil {
		return nil, err
	}
	e := &env{
		cfg:     cfg,
		seed:    c.Int64("seed"),
		dataDir: c.String("data"),
		outDir:  outDir,
		workers: workers,
		log:     logger,
		close:   closeLog,
	}
	logger.Info("starting",
		zap.String("command", c.Command.Name),
		zap.Strings("args", os.Args[1:]),
		zap.Int("workers", workers),
		zap.String("encoder", string(cfg.Encoder)),
		zap.String("attention", string(cfg.Attention)),
		zap.Int("max_src_len", cfg.MaxSrcLen),
		zap.Int("max_trg_len", cfg.MaxTrgLen),
		zap.Float64("drop_rate", cfg.DropRate),
		zap.Int("layers", cfg.Layers))
	return e, nil
}

// parseDevice accepts "cpu" (one worker) and "cpu:N".
func parseDevice(s string) (int, error) {
	name, n, found := strings.Cut(s, ":")
	if name != "cpu" {
		return 0, errors.Errorf("unsupported device %q", s)
	}
	if !found {
		return 1, nil
	}
	workers, err := strconv.Atoi(n)
	if err != nil || workers < 1 {
		return 0, errors.Errorf("device %q: worker count must be a positive integer", s)
	}
	return workers, nil
}
