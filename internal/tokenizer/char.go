package tokenizer

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-json"
)

// UnknownToken is the placeholder reserved at id 0 for characters that were
// not present in the training corpus.
const UnknownToken = "[UNK]"

const unknownID = 0

var ErrUnknownID = errors.New("tokenizer: id out of vocabulary range")

// CharTokenizer maps single characters to dense integer ids and back.
// Id 0 is the unknown token; corpus characters occupy [1, VocabSize).
type CharTokenizer struct {
	runeToID map[rune]int
	idToRune []rune
}

// NewCharTokenizer builds the vocabulary from every distinct rune in text,
// ordered by code point.
func NewCharTokenizer(text string) *CharTokenizer {
	set := make(map[rune]struct{})
	for _, r := range text {
		set[r] = struct{}{}
	}
	runes := make([]rune, 0, len(set))
	for r := range set {
		runes = append(runes, r)
	}
	slices.Sort(runes)
	return newFromSorted(runes)
}

func newFromSorted(runes []rune) *CharTokenizer {
	runeToID := make(map[rune]int, len(runes))
	for i, r := range runes {
		runeToID[r] = i + 1
	}
	return &CharTokenizer{
		runeToID: runeToID,
		idToRune: runes,
	}
}

// VocabSize returns the number of ids including the unknown token.
func (t *CharTokenizer) VocabSize() int {
	return len(t.idToRune) + 1
}

// UnknownID returns the id of the unknown token.
func (t *CharTokenizer) UnknownID() int {
	return unknownID
}

// Chars returns a copy of the vocabulary characters in id order (id 1 first).
func (t *CharTokenizer) Chars() []rune {
	return slices.Clone(t.idToRune)
}

// ID returns the id of r, or the unknown id when r is not in the vocabulary.
func (t *CharTokenizer) ID(r rune) int {
	if id, ok := t.runeToID[r]; ok {
		return id
	}
	return unknownID
}

// Char returns the text for id. The unknown id yields UnknownToken.
func (t *CharTokenizer) Char(id int) (string, error) {
	if id == unknownID {
		return UnknownToken, nil
	}
	if id < 0 || id > len(t.idToRune) {
		return "", fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return string(t.idToRune[id-1]), nil
}

// Encode converts every rune of text to its id.
func (t *CharTokenizer) Encode(text string) ([]int, error) {
	ids := make([]int, 0, len(text))
	for _, r := range text {
		ids = append(ids, t.ID(r))
	}
	return ids, nil
}

// Decode converts ids back to text.
func (t *CharTokenizer) Decode(ids []int) (string, error) {
	var b strings.Builder
	b.Grow(len(ids))
	for _, id := range ids {
		s, err := t.Char(id)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

type charVocabJSON struct {
	Unknown string   `json:"unknown"`
	Chars   []string `json:"chars"`
}

// MarshalJSON encodes the vocabulary as its ordered character list.
func (t *CharTokenizer) MarshalJSON() ([]byte, error) {
	chars := make([]string, len(t.idToRune))
	for i, r := range t.idToRune {
		chars[i] = string(r)
	}
	return json.Marshal(charVocabJSON{Unknown: UnknownToken, Chars: chars})
}

// UnmarshalJSON restores a vocabulary written by MarshalJSON.
func (t *CharTokenizer) UnmarshalJSON(data []byte) error {
	var v charVocabJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	runes := make([]rune, 0, len(v.Chars))
	for i, s := range v.Chars {
		rs := []rune(s)
		if len(rs) != 1 {
			return fmt.Errorf("vocab entry %d: expected one character, got %q", i, s)
		}
		if i > 0 && rs[0] <= runes[i-1] {
			return fmt.Errorf("vocab entry %d: characters must be strictly ascending", i)
		}
		runes = append(runes, rs[0])
	}
	*t = *newFromSorted(runes)
	return nil
}

// Save writes the vocabulary to path as JSON.
func (t *CharTokenizer) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode vocab: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadCharTokenizer reads a vocabulary written by Save.
func LoadCharTokenizer(path string) (*CharTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t := &CharTokenizer{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse vocab %s: %w", path, err)
	}
	return t, nil
}
