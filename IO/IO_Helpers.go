package IO

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/aSeaFood/STER/params"
	"github.com/pkg/errors"
)

type vocabJSON struct {
	Words []string `json:"words"`
	Chars []string `json:"chars"`
}

// ExportVocabJSON persists the word and char vocabularies. Ids are the
// positions in each list.
func ExportVocabJSON(path string, words, chars *params.Vocabulary) error {
	f, err := os.Create(path)
	if err != nil {
		return &FileError{Path: path, Err: err}
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(vocabJSON{Words: words.IDToToken, Chars: chars.IDToToken}); err != nil {
		return &FileError{Path: path, Err: err}
	}
	return nil
}

// ImportVocabJSON loads a snapshot written by ExportVocabJSON.
func ImportVocabJSON(path string) (*params.Vocabulary, *params.Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &FileError{Path: path, Err: err}
	}
	defer f.Close()
	var data vocabJSON
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return nil, nil, &FileError{Path: path, Err: err}
	}
	words := params.NewVocabulary(data.Words...)
	chars := params.NewVocabulary(data.Chars...)
	if words.Len() != len(data.Words) || chars.Len() != len(data.Chars) {
		return nil, nil, &FileError{Path: path, Err: errors.New("vocabulary snapshot repeats a token")}
	}
	for _, v := range []*params.Vocabulary{words, chars} {
		if err := v.Check(); err != nil {
			return nil, nil, &FileError{Path: path, Err: err}
		}
	}
	if words.Len() <= params.EosID || words.IDToToken[params.EosID] != params.EosToken {
		return nil, nil, &FileError{Path: path, Err: errors.New("word vocabulary is missing its reserved tokens")}
	}
	return words, chars, nil
}

// ReadLines returns every line of path without the trailing newline.
func ReadLines(path string) ([]string, error) {
	lines, err := readLines(path, 0)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	return lines, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// CheckFiles returns a FileError for the first path that does not exist.
func CheckFiles(paths ...string) error {
	for _, p := range paths {
		if !fileExists(p) {
			return &FileError{Path: p, Err: os.ErrNotExist}
		}
	}
	return nil
}

// readLines reads up to 'limit' lines (0 = no limit).
func readLines(p string, limit int) ([]string, error) {
	out := make([]string, 0, 4096)
	err := eachLine(p, func(line string) error {
		out = append(out, line)
		if limit > 0 && len(out) >= limit {
			return io.EOF
		}
		return nil
	})
	return out, err
}

// eachLine streams the lines of p through fn. fn returning io.EOF stops the
// scan without an error.
func eachLine(p string, fn func(line string) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 1<<20) // 1MB
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			if line[len(line)-1] == '\n' {
				line = line[:len(line)-1]
			}
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			if ferr := fn(line); ferr != nil {
				if ferr == io.EOF {
					return nil
				}
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
