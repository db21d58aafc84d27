package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marksync/marksync/codec"
	"github.com/marksync/marksync/types"
)

func TestMessageTypeString(t *testing.T) {
	require.Equal(t, "HANDSHAKE_INIT", MsgHandshakeInit.String())
	require.Equal(t, "SYNC_REQUEST", MsgSyncRequest.String())
	require.Equal(t, "MessageType(99)", MessageType(99).String())
}

func TestSharePayloadRoundtrip(t *testing.T) {
	r := require.New(t)
	in := SharePayload{
		Source: "Chrome",
		Bookmarks: []Bookmark{
			{
				ID:         "b1",
				URL:        "https://example.com",
				Title:      "Example",
				FolderPath: []string{"Work", "Projects"},
				Browser:    "Chrome",
				ModifiedAt: 1700000000123,
			},
		},
	}
	buf, err := codec.Encode(&in)
	r.NoError(err)

	var out SharePayload
	r.NoError(codec.Decode(buf, &out))
	r.Equal(in, out)
}

func TestModelConversionKeepsMillis(t *testing.T) {
	r := require.New(t)
	orig := types.Bookmark{
		ID:         "b1",
		URL:        "https://example.com",
		Title:      "Example",
		FolderPath: []string{"Work"},
		Browser:    types.BrowserFirefox,
		ModifiedAt: time.UnixMilli(1700000000123),
	}
	back := FromWire(ToWire(orig))
	r.Equal(orig.ID, back.ID)
	r.Equal(orig.URL, back.URL)
	r.Equal(orig.FolderPath, back.FolderPath)
	r.Equal(orig.Browser, back.Browser)
	r.True(orig.ModifiedAt.Equal(back.ModifiedAt))

	all := FromWireAll(ToWireAll([]types.Bookmark{orig, orig}))
	r.Len(all, 2)
}

func TestFramerRoundtrip(t *testing.T) {
	r := require.New(t)
	var buf bytes.Buffer
	f := NewFramer(&buf, 1<<20)

	r.NoError(f.WriteFrame([]byte("first")))
	r.NoError(f.WriteFrame([]byte("second")))

	got, err := f.ReadFrame()
	r.NoError(err)
	r.Equal([]byte("first"), got)
	got, err = f.ReadFrame()
	r.NoError(err)
	r.Equal([]byte("second"), got)
}

func TestFramerRejectsOversizedFrame(t *testing.T) {
	r := require.New(t)
	var buf bytes.Buffer
	writer := NewFramer(&buf, 1<<20)
	r.NoError(writer.WriteFrame(make([]byte, 2048)))

	reader := NewFramer(&buf, 1024)
	_, err := reader.ReadFrame()
	r.Error(err)
}
