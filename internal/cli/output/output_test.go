package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_ModeResolution(t *testing.T) {
	var out, errOut bytes.Buffer

	assert.Equal(t, ModeMarkdown, NewRendererWithTTY(&out, &errOut, false, ModeAuto).Mode())
	assert.Equal(t, ModeText, NewRendererWithTTY(&out, &errOut, true, ModeAuto).Mode())
	assert.Equal(t, ModeJSON, NewRendererWithTTY(&out, &errOut, true, ModeJSON).Mode())
	assert.Equal(t, ModeMarkdown, NewRendererWithTTY(&out, &errOut, false, "").Mode())

	// A buffer is never a terminal.
	assert.False(t, NewRenderer(&out, &errOut, ModeAuto).IsTTY())
}

func TestRenderer_Markdown(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeMarkdown)

	r.Header(2, "Load")
	r.StatusLine("GAME", "success", "3 rows")
	r.StatusLine("SACK", "skipped", "")
	r.Success("done")
	r.Warning("2 warnings")

	assert.Equal(t, "## Load\n\n- ✓ GAME (3 rows)\n- - SACK\n**done**\n", out.String())
	assert.Equal(t, "**2 warnings**\n", errOut.String())
}

func TestRenderer_PlainTextWithoutTTY(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeText)

	r.Header(1, "Summary")
	r.Success("ok")
	r.Error("boom")

	assert.Equal(t, "Summary\n✓ ok\n", out.String())
	assert.Equal(t, "✗ boom\n", errOut.String())
	assert.NotContains(t, out.String(), "\x1b[")
}

func TestRenderer_JSON(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &out, false, ModeJSON)
	require.NoError(t, r.JSON(map[string]int{"loaded": 9}))
	assert.JSONEq(t, `{"loaded":9}`, out.String())
}

func TestRenderRows(t *testing.T) {
	cols := []string{"off", "n", "note"}
	rows := [][]any{{"NE", int64(3), nil}, {"DAL", int64(2), "a,b"}}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderRows(&buf, cols, rows, FormatTable))
		s := buf.String()
		assert.Contains(t, s, "NE")
		assert.Contains(t, s, "NULL")
		assert.True(t, strings.HasSuffix(s, "(2 rows)\n"))
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderRows(&buf, cols, rows, FormatMarkdown))
		assert.Contains(t, buf.String(), "| NE |")
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderRows(&buf, cols, rows, FormatCSV))
		assert.Equal(t, "off,n,note\nNE,3,\nDAL,2,\"a,b\"\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderRows(&buf, cols, rows, FormatJSON))
		assert.JSONEq(t, `[{"off":"NE","n":3,"note":null},{"off":"DAL","n":2,"note":"a,b"}]`, buf.String())
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderRows(&buf, cols, nil, FormatTable))
		assert.Equal(t, "(0 rows)\n", buf.String())
	})

	t.Run("unknown", func(t *testing.T) {
		require.Error(t, RenderRows(&bytes.Buffer{}, cols, rows, "xml"))
	})
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NULL", FormatValue(nil))
	assert.Equal(t, "abc", FormatValue([]byte("abc")))
	assert.Equal(t, "2000-09-03", FormatValue(time.Date(2000, 9, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "1.5", FormatValue(1.5))
}
