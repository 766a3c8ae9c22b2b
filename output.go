package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aSeaFood/STER/storage"
	"github.com/aSeaFood/STER/storage/sqlite/zombiezen"
	"github.com/pkg/errors"
)

// asciiPlot draws a crude vertical bar chart of values (0..1).
func asciiPlot(w io.Writer, values []float64) {
	const height = 10
	n := len(values)
	if n == 0 {
		fmt.Fprintln(w, "no data to plot")
		return
	}
	for row := height; row >= 1; row-- {
		threshold := float64(row) / float64(height)
		var line strings.Builder
		for _, v := range values {
			if v >= threshold {
				line.WriteString("█")
			} else {
				line.WriteString(" ")
			}
		}
		fmt.Fprintln(w, line.String())
	}
	fmt.Fprintln(w, strings.Repeat("─", n))
	// epoch marks every 5 columns
	var axis strings.Builder
	for i := range values {
		if i%5 == 0 {
			axis.WriteString(strconv.Itoa((i + 1) % 10))
		} else {
			axis.WriteString(" ")
		}
	}
	fmt.Fprintln(w, axis.String())
}

// epochLog appends one CSV row per variant and epoch.
type epochLog struct {
	f *os.File
	w *csv.Writer
}

func newEpochLog(path string) (*epochLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create epoch log")
	}
	l := &epochLog{f: f, w: csv.NewWriter(f)}
	l.w.Write([]string{"epoch", "variant", "loss", "seq_p", "seq_r", "seq_f", "triplet_f1", "best"})
	return l, nil
}

func (l *epochLog) Write(r storage.EpochRecord) error {
	l.w.Write([]string{
		strconv.Itoa(r.Epoch),
		r.Variant,
		strconv.FormatFloat(r.Loss, 'f', 4, 64),
		strconv.FormatFloat(r.SeqP, 'f', 4, 64),
		strconv.FormatFloat(r.SeqR, 'f', 4, 64),
		strconv.FormatFloat(r.SeqF, 'f', 4, 64),
		strconv.FormatFloat(r.TripletF1, 'f', 3, 64),
		strconv.FormatBool(r.Best),
	})
	l.w.Flush()
	return l.w.Error()
}

func (l *epochLog) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}

// runHistory prints the runs recorded in the store at dbPath.
func runHistory(w io.Writer, dbPath, run string, list bool) error {
	if _, err := os.Stat(dbPath); err != nil {
		return errors.Wrap(err, "run store")
	}
	store, pool, err := zombiezen.Open(dbPath)
	if err != nil {
		return err
	}
	defer pool.Close()

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	if list {
		for _, r := range runs {
			fmt.Fprintln(w, r)
		}
		return nil
	}
	if run == "" {
		if len(runs) == 0 {
			fmt.Fprintln(w, "no runs recorded")
			return nil
		}
		run = runs[len(runs)-1]
	}
	return printRun(w, store, run)
}

func printRun(w io.Writer, store storage.RunReader, run string) error {
	epochs, err := store.Epochs(run)
	if err != nil {
		return err
	}
	tests, err := store.Tests(run)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "run %s\n", run)
	var stu []float64
	if len(epochs) > 0 {
		fmt.Fprintf(w, "%6s %5s %9s %7s %7s %7s %7s\n", "epoch", "model", "loss", "seq_p", "seq_r", "seq_f", "trip_f")
		for _, r := range epochs {
			mark := ""
			if r.Best {
				mark = " *"
			}
			fmt.Fprintf(w, "%6d %5s %9.4f %7.4f %7.4f %7.4f %7.3f%s\n", r.Epoch, r.Variant, r.Loss, r.SeqP, r.SeqR, r.SeqF, r.TripletF1, mark)
			if r.Variant == "stu" {
				stu = append(stu, r.SeqF)
			}
		}
	}
	if len(tests) > 0 {
		fmt.Fprintf(w, "%5s %6s %5s %6s %6s %6s %6s %6s %6s\n", "model", "epoch", "mode", "corr", "pred", "gold", "P", "R", "F1")
		for _, r := range tests {
			fmt.Fprintf(w, "%5s %6d %5d %6d %6d %6d %6.3f %6.3f %6.3f\n", r.Variant, r.Epoch, r.Mode, r.Correct, r.Predicted, r.Reference, r.Precision, r.Recall, r.F1)
		}
	}
	if len(stu) > 0 {
		fmt.Fprintln(w, "student dev sequence F1 per epoch")
		asciiPlot(w, stu)
	}
	return nil
}
