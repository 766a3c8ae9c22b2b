package main

import (
	"fmt"
	"strings"

	"github.com/aSeaFood/STER/IO"
	"github.com/aSeaFood/STER/batch"
	"github.com/aSeaFood/STER/params"
	"github.com/aSeaFood/STER/scoring"
	"github.com/aSeaFood/STER/seq2seq"
	"github.com/c-bata/go-prompt"
)

var extractCommands = []prompt.Suggest{
	{Text: "exit", Description: "leave the prompt"},
}

func extractCompleter(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(extractCommands, d.GetWordBeforeCursor(), true)
}

// runExtract reads tokenised sentences from a prompt and prints the triplets
// the student model extracts. Typed sentences have no dependency parse, so
// graph encoders only see self loops.
func runExtract(e *env) error {
	ctx, err := loadContext(e)
	if err != nil {
		return err
	}
	if err := IO.CheckFiles(seq2seq.CheckpointPath(e.outDir, params.Student, 0)); err != nil {
		return err
	}
	m, err := loadModel(e, ctx, params.Student, 0)
	if err != nil {
		return err
	}
	runner, err := seq2seq.NewRunner(1)
	if err != nil {
		return err
	}
	defer runner.Release()

	fmt.Println("Type a tokenised sentence. Type 'exit' to quit.")
	var history []string
	for id := 1; ; id++ {
		in := strings.TrimSpace(prompt.Input("> ", extractCompleter,
			prompt.OptionTitle("ster extract"),
			prompt.OptionPrefixTextColor(prompt.Yellow),
			prompt.OptionHistory(history),
		))
		if in == "exit" {
			return nil
		}
		if in == "" {
			continue
		}
		history = append(history, in)
		words := strings.Fields(in)
		if len(words) > e.cfg.MaxSrcLen {
			words = words[:e.cfg.MaxSrcLen]
		}
		line, err := extractLine(m, runner, ctx, IO.NewSentence(id, words))
		if err != nil {
			return err
		}
		printTriplets(line, ctx)
	}
}

// extractLine decodes a single sample and returns its prediction line.
func extractLine(m *seq2seq.Model, r *seq2seq.Runner, ctx *params.Context, s IO.Sample) (string, error) {
	b, err := batch.Encode([]IO.Sample{s}, ctx, m.Config, false)
	if err != nil {
		return "", err
	}
	preds, attns := m.DecodeBatch(r, b)
	words := scoring.PredWords(preds[0], attns[0], s.ViewWords(m.Variant), ctx.Words, m.Config.CopyDecoding())
	return scoring.Line(words), nil
}

func printTriplets(line string, ctx *params.Context) {
	var res scoring.Result
	triplets := scoring.ParsePrediction(line, ctx.IsRelation, &res)
	if len(triplets) == 0 {
		fmt.Printf("no triplets (raw: %q)\n", line)
		return
	}
	for _, t := range triplets {
		fmt.Printf("  %s ; %s ; %s\n", t.E1, t.E2, t.Rel)
	}
}
