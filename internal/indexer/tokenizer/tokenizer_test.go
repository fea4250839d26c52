package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acme = "We are Acme and we make things."

func TestTokenizeOrdinal(t *testing.T) {
	tok := New(WithStemming(false))
	tokens, err := tok.Tokenize(acme)
	require.NoError(t, err)

	assert.Equal(t, []Token{
		{Term: "we", Position: 0},
		{Term: "acme", Position: 1},
		{Term: "we", Position: 2},
		{Term: "make", Position: 3},
		{Term: "things", Position: 4},
	}, tokens)
}

func TestTokenizeOffset(t *testing.T) {
	tok := New(WithStemming(false), WithUnit(UnitOffset))
	tokens, err := tok.Tokenize(acme)
	require.NoError(t, err)

	assert.Equal(t, []Token{
		{Term: "we", Position: 0},
		{Term: "acme", Position: 7},
		{Term: "we", Position: 16},
		{Term: "make", Position: 19},
		{Term: "things", Position: 24},
	}, tokens)
}

func TestTokenizeKeepsStopWordsWhenDisabled(t *testing.T) {
	tok := New(WithStemming(false), WithStopWords(false))
	tokens, err := tok.Tokenize("the cat and the hat")
	require.NoError(t, err)

	terms := make([]string, 0, len(tokens))
	for _, tk := range tokens {
		terms = append(terms, tk.Term)
	}
	assert.Equal(t, []string{"the", "cat", "and", "the", "hat"}, terms)
}

func TestTokenizeStems(t *testing.T) {
	tok := New()
	tokens, err := tok.Tokenize("Cats connected things")
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, "cat", tokens[0].Term)
	assert.Equal(t, "connect", tokens[1].Term)
	assert.Equal(t, "thing", tokens[2].Term)
}

func TestTokenizeDropsShortAndPunctuation(t *testing.T) {
	tok := New(WithStemming(false))
	tokens, err := tok.Tokenize("x -- y 2024 !!")
	require.NoError(t, err)
	assert.Equal(t, []Token{{Term: "2024", Position: 0}}, tokens)
}

func TestTokenizeEmpty(t *testing.T) {
	tokens, err := New().Tokenize("")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestPositionsNonDecreasing(t *testing.T) {
	text := "Distributed search engines process queries across multiple shards; each shard keeps its own inverted index."
	for _, unit := range []Unit{UnitOrdinal, UnitOffset} {
		t.Run(unit.String(), func(t *testing.T) {
			tokens, err := New(WithUnit(unit)).Tokenize(text)
			require.NoError(t, err)
			require.NotEmpty(t, tokens)
			for i := 1; i < len(tokens); i++ {
				assert.Greater(t, tokens[i].Position, tokens[i-1].Position)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tok := New()
	assert.Equal(t, "cat", tok.Normalize("  Cats "))
	assert.Equal(t, "", tok.Normalize("the"))
	assert.Equal(t, "", tok.Normalize("a"))
}

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit("offset")
	require.NoError(t, err)
	assert.Equal(t, UnitOffset, u)
	_, err = ParseUnit("rune")
	assert.Error(t, err)
}

func BenchmarkTokenize(b *testing.B) {
	tok := New()
	text := "Information retrieval systems combine tokenization, stemming, and stop word removal to normalize text into searchable terms."
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		if _, err := tok.Tokenize(text); err != nil {
			b.Fatal(err)
		}
	}
}
