package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	Name  string
	Count uint32
	Tags  []string
}

func TestEncodeDecode(t *testing.T) {
	r := require.New(t)
	in := fixture{Name: "bookmarks", Count: 7, Tags: []string{"a", "b"}}

	buf, err := Encode(&in)
	r.NoError(err)

	var out fixture
	r.NoError(Decode(buf, &out))
	r.Equal(in, out)
}

func TestEncodeToDecodeFrom(t *testing.T) {
	r := require.New(t)
	in := fixture{Name: "stream", Tags: []string{"t"}}

	var buf bytes.Buffer
	n, err := EncodeTo(&buf, &in)
	r.NoError(err)
	r.Equal(buf.Len(), n)

	var out fixture
	m, err := DecodeFrom(&buf, &out)
	r.NoError(err)
	r.Equal(n, m)
	r.Equal(in, out)
}

func TestDecodeTruncated(t *testing.T) {
	buf, err := Encode(&fixture{Name: "whole", Tags: []string{"x"}})
	require.NoError(t, err)

	var out fixture
	require.Error(t, Decode(buf[:len(buf)-3], &out))
}

func TestMustEncode(t *testing.T) {
	require.NotEmpty(t, MustEncode(&fixture{Name: "x"}))
}
