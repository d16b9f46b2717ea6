package eventstream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_CarriesPartialRecordsAcrossChunks(t *testing.T) {
	var d Decoder

	assert.Empty(t, d.Feed([]byte(`data: {"type":"st`)))
	assert.Equal(t, 17, d.Pending())

	recs := d.Feed([]byte("art\"}\n\ndata: {\"type\":\"llm_done\"}\n"))
	require.Equal(t, []string{`data: {"type":"start"}`}, recs)

	recs = d.Feed([]byte("\n"))
	require.Equal(t, []string{`data: {"type":"llm_done"}`}, recs)
	assert.Zero(t, d.Pending())
}

func TestDecoder_MultibyteSplitAcrossChunks(t *testing.T) {
	var d Decoder
	raw := []byte("data: {\"type\":\"start\",\"message\":\"开始处理...\"}\n\n")

	var recs []string
	for i := range raw {
		recs = append(recs, d.Feed(raw[i:i+1])...)
	}
	require.Len(t, recs, 1)

	ev, err := ParseEvent(recs[0])
	require.NoError(t, err)
	assert.Equal(t, "开始处理...", ev.Message)
}

func TestReader_OneByteAtATime(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Event{Type: "start"}))
	require.NoError(t, Encode(&buf, Event{Type: "llm_receiving", Chunks: 5}))
	require.NoError(t, Encode(&buf, Event{Type: "complete", HTML: "<p>Hello</p>"}))

	r := NewReader(iotest.OneByteReader(&buf))
	var types []string
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		ev, err := ParseEvent(rec)
		require.NoError(t, err)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"start", "llm_receiving", "complete"}, types)
	assert.Greater(t, r.Reads(), 3)
}

func TestReader_DropsUnterminatedTail(t *testing.T) {
	r := NewReader(strings.NewReader("data: {\"type\":\"start\"}\n\ndata: {\"type\":\"complete\"}"))

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, `data: {"type":"start"}`, rec)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_PropagatesTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewReader(iotest.ErrReader(boom))

	_, err := r.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		record  string
		want    Event
		wantErr error
	}{
		{"full complete", `data: {"type":"complete","html":"<p>x</p>"}`, Event{Type: "complete", HTML: "<p>x</p>"}, nil},
		{"no space after marker", `data:{"type":"llm_receiving","chunks":15}`, Event{Type: "llm_receiving", Chunks: 15}, nil},
		{"bare json", `{"type":"error","message":"读取Word文档失败"}`, Event{}, ErrNotData},
		{"comment line", `: keep-alive`, Event{}, ErrNotData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent(tt.record)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestParseEvent_MalformedJSON(t *testing.T) {
	_, err := ParseEvent(`data: {"type":`)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotData)
	assert.Contains(t, err.Error(), "failed to decode event")
}
