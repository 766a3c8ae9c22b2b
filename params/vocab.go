package params

import "github.com/pkg/errors"

// Vocabulary maps tokens to dense ids and back.
type Vocabulary struct {
	TokenToID map[string]int
	IDToToken []string
}

// NewVocabulary returns a vocabulary holding the reserved tokens at ids 0..n-1.
func NewVocabulary(reserved ...string) *Vocabulary {
	v := &Vocabulary{TokenToID: make(map[string]int, len(reserved))}
	for _, tok := range reserved {
		v.Add(tok)
	}
	return v
}

// NewWordVocabulary returns a vocabulary with <PAD>, <UNK>, <SOS>, <EOS>.
func NewWordVocabulary() *Vocabulary {
	return NewVocabulary(PadToken, UnkToken, SosToken, EosToken)
}

// NewCharVocabulary returns a vocabulary with <PAD>, <UNK>, ';', '|'.
func NewCharVocabulary() *Vocabulary {
	return NewVocabulary(PadToken, UnkToken, FieldSep, TripletSep)
}

// Add returns the id of tok, appending it if it is new.
func (v *Vocabulary) Add(tok string) int {
	if id, ok := v.TokenToID[tok]; ok {
		return id
	}
	id := len(v.IDToToken)
	v.TokenToID[tok] = id
	v.IDToToken = append(v.IDToToken, tok)
	return id
}

func (v *Vocabulary) ID(tok string) (int, bool) {
	id, ok := v.TokenToID[tok]
	return id, ok
}

// Lookup returns the id of tok or the <UNK> id.
func (v *Vocabulary) Lookup(tok string) int {
	if id, ok := v.TokenToID[tok]; ok {
		return id
	}
	return UnkID
}

func (v *Vocabulary) Token(id int) string {
	if id < 0 || id >= len(v.IDToToken) {
		return UnkToken
	}
	return v.IDToToken[id]
}

func (v *Vocabulary) Len() int { return len(v.IDToToken) }

// Check verifies the two maps agree with each other.
func (v *Vocabulary) Check() error {
	if len(v.TokenToID) != len(v.IDToToken) {
		return errors.Errorf("vocabulary has %d tokens but %d ids", len(v.TokenToID), len(v.IDToToken))
	}
	for id, tok := range v.IDToToken {
		if got, ok := v.TokenToID[tok]; !ok || got != id {
			return errors.Errorf("vocabulary token %q: id %d does not round trip", tok, id)
		}
	}
	return nil
}

// Context bundles the vocabularies and the closed relation set shared by the
// batch encoder, the models and the scorer. It is read-only once built.
type Context struct {
	Words     *Vocabulary
	Chars     *Vocabulary
	Relations []string
	relSet    map[string]struct{}
}

func NewContext(words, chars *Vocabulary, relations []string) *Context {
	set := make(map[string]struct{}, len(relations))
	for _, r := range relations {
		set[r] = struct{}{}
	}
	return &Context{Words: words, Chars: chars, Relations: relations, relSet: set}
}

func (c *Context) IsRelation(s string) bool {
	_, ok := c.relSet[s]
	return ok
}
