package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutputBuffer(t *testing.T) {
	ob := NewOutputBuffer(3)
	require.Empty(t, ob.GetRecent())

	ob.Add("a")
	ob.Add("b")
	require.Equal(t, []string{"a", "b"}, ob.GetRecent())

	ob.Add("c")
	ob.Add("d")
	ob.Add("e")
	require.Equal(t, []string{"c", "d", "e"}, ob.GetRecent())
}
