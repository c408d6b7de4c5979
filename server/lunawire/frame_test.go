package lunawire

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	in := ExecuteRequest{ID: 42, SQL: "SELECT * FROM users;"}
	require.NoError(t, WriteFrame(&buf, in))

	var out ExecuteRequest
	require.NoError(t, ReadFrame(&buf, &out))
	require.Equal(t, in, out)
}

func TestFrameMultipleSequential(t *testing.T) {
	var buf bytes.Buffer
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, WriteFrame(&buf, ExecuteRequest{ID: i, SQL: "x;"}))
	}
	for i := uint64(1); i <= 3; i++ {
		var out ExecuteRequest
		require.NoError(t, ReadFrame(&buf, &out))
		require.Equal(t, i, out.ID)
	}
}

func TestFrameRejectsOversizeAndGarbage(t *testing.T) {
	// a header claiming a frame larger than the cap is refused before any
	// allocation
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
	var out ExecuteRequest
	err := ReadFrame(bytes.NewReader(hdr[:]), &out)
	require.ErrorContains(t, err, "frame too large")

	// zero-length frames are malformed
	binary.BigEndian.PutUint32(hdr[:], 0)
	err = ReadFrame(bytes.NewReader(hdr[:]), &out)
	require.ErrorContains(t, err, "empty frame")

	// valid length prefix, invalid JSON payload
	var buf bytes.Buffer
	payload := "not json"
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	buf.Write(hdr[:])
	buf.WriteString(payload)
	err = ReadFrame(&buf, &out)
	require.ErrorContains(t, err, "bad json")

	// oversized writes are refused too
	err = WriteFrame(&buf, ExecuteRequest{SQL: strings.Repeat("a", MaxFrameSize)})
	require.ErrorContains(t, err, "too large")
}
