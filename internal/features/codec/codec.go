package codec

// Text <-> felt conversion for wave messages.
// One code point per felt. On the wire the message is a Cairo Array<felt252>:
// element count first, then the code points.

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/NethermindEth/juno/core/felt"
)

// MetadataPrefix - words in front of the message in every wave event
const MetadataPrefix = 2

// InvalidEncodingMarker is shown instead of a message that cannot be decoded
const InvalidEncodingMarker = "<invalid encoding>"

var ErrInvalidEncoding = errors.New("invalid encoding")

// Encode maps every code point of message to its integer value
func Encode(message string) []*big.Int {
	words := make([]*big.Int, 0, utf8.RuneCountInString(message))
	for _, r := range message {
		words = append(words, big.NewInt(int64(r)))
	}
	return words
}

// EncodeCalldata - decimal calldata with the length prefix, "hi" -> ["2","104","105"]
func EncodeCalldata(message string) []string {
	words := Encode(message)
	calldata := make([]string, 0, len(words)+1)
	calldata = append(calldata, fmt.Sprintf("%d", len(words)))
	for _, w := range words {
		calldata = append(calldata, w.String())
	}
	return calldata
}

// EncodeFelts - same payload as EncodeCalldata, as field elements
func EncodeFelts(message string) []*felt.Felt {
	words := Encode(message)
	felts := make([]*felt.Felt, 0, len(words)+1)
	felts = append(felts, new(felt.Felt).SetUint64(uint64(len(words))))
	for _, w := range words {
		felts = append(felts, new(felt.Felt).SetUint64(w.Uint64()))
	}
	return felts
}

// Decode skips MetadataPrefix words and turns the rest back into text.
// Fewer words than the prefix decode to the empty message.
func Decode(words []*big.Int) (string, error) {
	if len(words) <= MetadataPrefix {
		return "", nil
	}

	var sb strings.Builder
	for i, w := range words[MetadataPrefix:] {
		r, err := wordToRune(w)
		if err != nil {
			return "", fmt.Errorf("word %d: %w", i+MetadataPrefix, err)
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}

// DecodeOrMarker never fails, undecodable payloads become InvalidEncodingMarker
func DecodeOrMarker(words []*big.Int) string {
	message, err := Decode(words)
	if err != nil {
		return InvalidEncodingMarker
	}
	return message
}

func wordToRune(w *big.Int) (rune, error) {
	if w == nil || w.Sign() < 0 || !w.IsInt64() || w.Int64() > unicode.MaxRune {
		return 0, ErrInvalidEncoding
	}
	r := rune(w.Int64())
	if !utf8.ValidRune(r) {
		return 0, ErrInvalidEncoding
	}
	return r, nil
}

// ParseWord parses a felt given as 0x-prefixed hex or decimal
func ParseWord(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty word: %w", ErrInvalidEncoding)
	}

	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = n.SetString(s[2:], 16)
	} else {
		_, ok = n.SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("parse word %q: %w", s, ErrInvalidEncoding)
	}
	return n, nil
}

// ParseWords - ParseWord for every element
func ParseWords(raw []string) ([]*big.Int, error) {
	words := make([]*big.Int, 0, len(raw))
	for _, s := range raw {
		w, err := ParseWord(s)
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, nil
}
