package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_KeyOrder(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{"b": 1, "a": []any{true, nil, "x"}, "c": 1.5})
	require.NoError(t, err)

	assert.Equal(t, `{"a":[true,null,"x"],"b":1,"c":1.5}`, string(out))
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes to surrogates 0xD83D 0xDE00, which sort before U+FB01
	// in UTF-16 but after it in UTF-8.
	out, err := MarshalCanonical(map[string]any{"ﬁ": 1, "\U0001F600": 2})
	require.NoError(t, err)

	assert.Equal(t, "{\"\U0001F600\":2,\"ﬁ\":1}", string(out))
}

func TestMarshalCanonical_Strings(t *testing.T) {
	out, err := MarshalCanonical("<a&b>\n\"q\" ")
	require.NoError(t, err)

	assert.Equal(t, "\"<a&b>\\n\\\"q\\\" \"", string(out))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	decomposed, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	composed, err := MarshalCanonical("\u00e9")
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestHash_StructuralIdentity(t *testing.T) {
	a := Call("sum", Ref("t", "x"))
	b := Call("sum", Ref("t", "x"))
	c := Call("sum", Ref("t", "y"))

	assert.Equal(t, Hash(a), Hash(b))
	assert.NotEqual(t, Hash(a), Hash(c))
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestHash_LiteralTypesDiffer(t *testing.T) {
	assert.NotEqual(t, Hash(Lit(int64(3))), Hash(Lit(3.0)))
	assert.NotEqual(t, Hash(Lit("3")), Hash(Lit(int64(3))))
}

func TestHashWithDomain_Separation(t *testing.T) {
	data := []byte(`{"a":1}`)

	assert.NotEqual(t, HashWithDomain(DomainFormula, data), HashWithDomain(DomainQuery, data))
	assert.Len(t, HashWithDomain(DomainFormula, data), 64)
}
