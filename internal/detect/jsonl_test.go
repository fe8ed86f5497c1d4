package detect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLDetector(t *testing.T) {
	t.Parallel()

	t.Run("parses detections by frame", func(t *testing.T) {
		t.Parallel()
		input := strings.Join([]string{
			`{"frame":0,"class":"player","x1":10,"y1":20,"x2":40,"y2":90,"confidence":0.91}`,
			`{"frame":0,"class":"ball","x1":500,"y1":500,"x2":512,"y2":512,"confidence":0.55}`,
			`{"frame":1,"class":"referee","x1":100,"y1":100,"x2":130,"y2":170,"confidence":0.80}`,
		}, "\n")

		d, err := NewJSONLDetector(strings.NewReader(input))
		require.NoError(t, err)

		frame0, err := d.Detect(0)
		require.NoError(t, err)
		require.Len(t, frame0, 2)
		assert.Equal(t, ClassPlayer, frame0[0].Class)
		assert.Equal(t, ClassBall, frame0[1].Class)
		assert.Equal(t, 0.91, frame0[0].Confidence)

		frame1, err := d.Detect(1)
		require.NoError(t, err)
		require.Len(t, frame1, 1)
		assert.Equal(t, ClassReferee, frame1[0].Class)

		assert.Equal(t, 1, d.MaxFrame())
	})

	t.Run("empty frame returns empty slice without error", func(t *testing.T) {
		t.Parallel()
		d, err := NewJSONLDetector(strings.NewReader(""))
		require.NoError(t, err)

		dets, err := d.Detect(42)
		require.NoError(t, err)
		assert.Empty(t, dets)
		assert.Equal(t, -1, d.MaxFrame())
	})

	t.Run("malformed lines counted not fatal", func(t *testing.T) {
		t.Parallel()
		input := strings.Join([]string{
			`{"frame":0,"class":"player","x1":10,"y1":20,"x2":40,"y2":90,"confidence":0.9}`,
			`{this is not json`,
			`{"frame":0,"class":"player","x1":50,"y1":20,"x2":80,"y2":90,"confidence":0.8}`,
		}, "\n")

		d, err := NewJSONLDetector(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, 1, d.MalformedLines)

		dets, _ := d.Detect(0)
		assert.Len(t, dets, 2)
	})

	t.Run("degenerate boxes dropped and counted", func(t *testing.T) {
		t.Parallel()
		input := strings.Join([]string{
			`{"frame":0,"class":"player","x1":40,"y1":20,"x2":10,"y2":90,"confidence":0.9}`,
			`{"frame":0,"class":"player","x1":10,"y1":20,"x2":10,"y2":90,"confidence":0.9}`,
		}, "\n")

		d, err := NewJSONLDetector(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, 2, d.DroppedBoxes)

		dets, _ := d.Detect(0)
		assert.Empty(t, dets)
	})

	t.Run("unknown class counted separately", func(t *testing.T) {
		t.Parallel()
		input := `{"frame":0,"class":"mascot","x1":10,"y1":20,"x2":40,"y2":90,"confidence":0.9}`

		d, err := NewJSONLDetector(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, 1, d.UnknownClasses)
	})
}
