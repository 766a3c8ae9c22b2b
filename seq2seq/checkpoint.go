package seq2seq

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aSeaFood/STER/params"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CheckpointError reports a checkpoint that cannot be read into a model.
type CheckpointError struct {
	Path string
	Msg  string
	Err  error
}

func (e *CheckpointError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("checkpoint %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("checkpoint %s: %s", e.Path, e.Msg)
}

func (e *CheckpointError) Unwrap() error { return e.Err }

// modelData is the gob layout of a checkpoint: every parameter in
// Model.Params order with its Adam moments.
type modelData struct {
	Fingerprint string
	Epoch       int
	AdamT       int
	Params      []paramData
}

type paramData struct {
	Name string
	R, C int
	W    []float64
	M, V []float64
}

// CheckpointPath is <dir>/<variant>_model.gob, or the per-epoch snapshot
// <dir>/<variant>_model.epNNN.gob when epoch > 0.
func CheckpointPath(dir string, v params.Variant, epoch int) string {
	if epoch > 0 {
		return filepath.Join(dir, fmt.Sprintf("%s_model.ep%03d.gob", v, epoch))
	}
	return filepath.Join(dir, fmt.Sprintf("%s_model.gob", v))
}

// Save writes the model weights, Adam moments and step counter. The file is
// written next to path and renamed into place.
func (m *Model) Save(path string, epoch, adamT int) error {
	data := modelData{Fingerprint: m.Fingerprint(), Epoch: epoch, AdamT: adamT}
	for _, p := range m.Params() {
		r, c := p.W.Dims()
		data.Params = append(data.Params, paramData{
			Name: p.Name,
			R:    r,
			C:    c,
			W:    append([]float64(nil), mat.DenseCopyOf(p.W).RawMatrix().Data...),
			M:    append([]float64(nil), mat.DenseCopyOf(p.M).RawMatrix().Data...),
			V:    append([]float64(nil), mat.DenseCopyOf(p.V).RawMatrix().Data...),
		})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return errors.Wrapf(err, "encode checkpoint %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "write checkpoint %s", path)
	}
	return errors.Wrapf(os.Rename(tmp, path), "write checkpoint %s", path)
}

// Load reads a checkpoint written by Save into m. The architecture must
// match exactly. It returns the saved epoch and Adam step counter.
func (m *Model) Load(path string) (epoch, adamT int, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, &CheckpointError{Path: path, Msg: "read", Err: err}
	}
	var data modelData
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&data); err != nil {
		return 0, 0, &CheckpointError{Path: path, Msg: "decode", Err: err}
	}
	if data.Fingerprint != m.Fingerprint() {
		return 0, 0, &CheckpointError{Path: path, Msg: fmt.Sprintf("architecture mismatch (have %q, file %q)", m.Fingerprint(), data.Fingerprint)}
	}
	ps := m.Params()
	if len(data.Params) != len(ps) {
		return 0, 0, &CheckpointError{Path: path, Msg: fmt.Sprintf("parameter count mismatch (have %d, file %d)", len(ps), len(data.Params))}
	}
	for i, p := range ps {
		pd := data.Params[i]
		r, c := p.W.Dims()
		if pd.Name != p.Name || pd.R != r || pd.C != c || len(pd.W) != r*c {
			return 0, 0, &CheckpointError{Path: path, Msg: fmt.Sprintf("parameter %d: have %s %dx%d, file %s %dx%d", i, p.Name, r, c, pd.Name, pd.R, pd.C)}
		}
	}
	for i, p := range ps {
		pd := data.Params[i]
		r, c := p.W.Dims()
		p.W.Copy(mat.NewDense(r, c, pd.W))
		p.M.Zero()
		p.V.Zero()
		if len(pd.M) == r*c && len(pd.V) == r*c {
			p.M.Copy(mat.NewDense(r, c, pd.M))
			p.V.Copy(mat.NewDense(r, c, pd.V))
		}
		p.ZeroGrad()
	}
	return data.Epoch, data.AdamT, nil
}
