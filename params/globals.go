package params

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Reserved word tokens. Their ids never change between runs.
const (
	PadToken = "<PAD>"
	UnkToken = "<UNK>"
	SosToken = "<SOS>"
	EosToken = "<EOS>"

	PadID = 0
	UnkID = 1
	SosID = 2
	EosID = 3
)

// Triplet separators, also reserved in the char vocabulary.
const (
	TripletSep = "|"
	FieldSep   = ";"

	CharPadID  = 0
	CharUnkID  = 1
	CharSemiID = 2
	CharPipeID = 3
)

// EncoderType selects the sentence encoder.
type EncoderType string

const (
	EncoderLSTM    EncoderType = "LSTM"
	EncoderGCN     EncoderType = "GCN"
	EncoderLSTMGCN EncoderType = "LSTM-GCN"
)

// AttentionType selects how the decoder builds its context vector.
type AttentionType string

const (
	AttentionNone    AttentionType = "None"
	AttentionUnigram AttentionType = "Unigram"
	AttentionNGram   AttentionType = "N-Gram"
)

type TrainingConfig struct {
	// Model sizes
	WordEmbedDim    int `yaml:"word_embed_dim"` // also encoder/decoder width
	CharEmbedDim    int `yaml:"char_embed_dim"`
	CharFeatureSize int `yaml:"char_feature_size"`
	ConvFilterSize  int `yaml:"conv_filter_size"`
	MaxWordLen      int `yaml:"max_word_len"`
	Layers          int `yaml:"layers"`     // BiLSTM layers
	GCNLayers       int `yaml:"gcn_layers"` // graph convolution layers
	NGram           int `yaml:"ngram"`      // attention scales for N-Gram

	Encoder   EncoderType   `yaml:"encoder"`
	Attention AttentionType `yaml:"attention"`
	CopyOn    bool          `yaml:"copy_on"`
	DropRate  float64       `yaml:"drop_rate"`

	// Data
	MaxSrcLen   int `yaml:"max_src_len"`
	MaxTrgLen   int `yaml:"max_trg_len"`
	MinWordFreq int `yaml:"min_word_freq"`
	BatchSize   int `yaml:"batch_size"`

	// Optimization
	MaxEpochs    int     `yaml:"max_epochs"`
	UpdateFreq   int     `yaml:"update_freq"`
	LearningRate float64 `yaml:"learning_rate"`
	AdamBeta1    float64 `yaml:"adam_beta1"`
	AdamBeta2    float64 `yaml:"adam_beta2"`
	AdamEps      float64 `yaml:"adam_eps"`
	GradClip     float64 `yaml:"grad_clip"` // <=0 disables

	// Distillation
	DistillWarmup int     `yaml:"distill_warmup"` // epochs of plain NLL for the student
	Tea1Weight    float64 `yaml:"tea1_weight"`
	Tea2Weight    float64 `yaml:"tea2_weight"`

	// Model selection
	Patience        int `yaml:"patience"`          // epochs without a better student dev F1
	SaveEpochNumber int `yaml:"save_epoch_number"` // snapshot every N epochs (0 = never)
}

// DefaultConfig returns the settings the published results were trained with.
func DefaultConfig() TrainingConfig {
	return TrainingConfig{
		WordEmbedDim:    300,
		CharEmbedDim:    50,
		CharFeatureSize: 50,
		ConvFilterSize:  3,
		MaxWordLen:      10,
		Layers:          2,
		GCNLayers:       3,
		NGram:           3,

		Encoder:   EncoderLSTM,
		Attention: AttentionUnigram,
		CopyOn:    true,
		DropRate:  0.5,

		MaxSrcLen:   100,
		MaxTrgLen:   50,
		MinWordFreq: 2,
		BatchSize:   32,

		MaxEpochs:    100,
		UpdateFreq:   1,
		LearningRate: 0.0002,
		AdamBeta1:    0.9,
		AdamBeta2:    0.999,
		AdamEps:      1e-8,
		GradClip:     10.0,

		DistillWarmup: 5,
		Tea1Weight:    0.6,
		Tea2Weight:    0.7,

		Patience:        10,
		SaveEpochNumber: 0,
	}
}

// LoadConfig overlays the YAML document at path onto DefaultConfig.
// An empty path returns the defaults.
func LoadConfig(path string) (TrainingConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (c TrainingConfig) Validate() error {
	switch {
	case c.WordEmbedDim <= 0 || c.WordEmbedDim%2 != 0:
		return errors.Errorf("word_embed_dim must be a positive even number, got %d", c.WordEmbedDim)
	case c.CharEmbedDim <= 0 || c.CharFeatureSize <= 0:
		return errors.New("char_embed_dim and char_feature_size must be positive")
	case c.ConvFilterSize <= 0:
		return errors.Errorf("conv_filter_size must be positive, got %d", c.ConvFilterSize)
	case c.MaxWordLen <= 0:
		return errors.Errorf("max_word_len must be positive, got %d", c.MaxWordLen)
	case c.Layers <= 0:
		return errors.Errorf("layers must be positive, got %d", c.Layers)
	case c.MaxSrcLen <= 0 || c.MaxTrgLen <= 0:
		return errors.New("max_src_len and max_trg_len must be positive")
	case c.BatchSize <= 0:
		return errors.Errorf("batch_size must be positive, got %d", c.BatchSize)
	case c.UpdateFreq <= 0:
		return errors.Errorf("update_freq must be positive, got %d", c.UpdateFreq)
	case c.DropRate < 0 || c.DropRate >= 1:
		return errors.Errorf("drop_rate must be in [0,1), got %g", c.DropRate)
	}
	switch c.Encoder {
	case EncoderLSTM:
	case EncoderGCN, EncoderLSTMGCN:
		if c.GCNLayers <= 0 {
			return errors.Errorf("gcn_layers must be positive for encoder %s", c.Encoder)
		}
	default:
		return errors.Errorf("unknown encoder %q", c.Encoder)
	}
	switch c.Attention {
	case AttentionNone, AttentionUnigram:
	case AttentionNGram:
		if c.NGram <= 0 {
			return errors.Errorf("ngram must be positive, got %d", c.NGram)
		}
	default:
		return errors.Errorf("unknown attention %q", c.Attention)
	}
	return nil
}

// CopyDecoding reports whether an emitted <UNK> is replaced by the attended
// source word. Mean-pooled context has no attention position to copy from.
func (c TrainingConfig) CopyDecoding() bool {
	return c.CopyOn && c.Attention != AttentionNone
}

// CharWidth is the number of char slots one word occupies in a char sequence.
func (c TrainingConfig) CharWidth() int {
	return c.MaxWordLen + c.ConvFilterSize - 1
}
