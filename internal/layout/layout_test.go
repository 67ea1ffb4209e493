package layout

import (
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioOpts = Options{FontSize: 12, LineSpacing: 1.2, Mode: ModePlain}

func cjk(n int) string {
	const sample = "梯度下降算法通过迭代更新参数使损失函数逐步减小"
	src := []rune(sample)
	out := make([]rune, n)
	for i := range out {
		out[i] = src[i%len(src)]
	}
	return string(out)
}

func TestColumnsGeometry(t *testing.T) {
	rects := Columns(400, 600, 3, scenarioOpts, 0)
	require.Len(t, rects, 3)

	// Right region spans 425..1175 with three 236.67pt slots.
	assert.InDelta(t, 433, rects[0].X0, 0.01)
	assert.InDelta(t, 1167, rects[2].X1, 0.01)
	for i, r := range rects {
		assert.InDelta(t, 220.67, r.Width(), 0.01, "column %d", i)
		assert.Equal(t, 40.0, r.Y0)
		assert.Equal(t, 560.0, r.Y1)
		assert.Equal(t, 1069, r.Capacity)
	}
	assert.InDelta(t, 36, rects[1].X0-rects[0].X1, 0.01, "spacing plus both paddings")

	t.Run("fewer columns use the first slots", func(t *testing.T) {
		two := Columns(400, 600, 2, scenarioOpts, 0)
		require.Len(t, two, 2)
		assert.Equal(t, rects[0], two[0])
		assert.Equal(t, rects[1], two[1])
	})

	t.Run("continuation offset", func(t *testing.T) {
		cont := Columns(400, 600, 1, scenarioOpts, HeaderBand)
		assert.Equal(t, 64.0, cont[0].Y0)
		assert.Less(t, cont[0].Capacity, rects[0].Capacity)
	})

	t.Run("rich mode bottom margin is clamped", func(t *testing.T) {
		small := Columns(400, 600, 1, Options{FontSize: 8, LineSpacing: 1, Mode: ModeMarkdown}, 0)
		assert.Equal(t, 600.0-40-16, small[0].Y1)

		large := Columns(400, 600, 1, Options{FontSize: 30, LineSpacing: 1.5, Mode: ModeMarkdown}, 0)
		assert.Equal(t, 600.0-40-36, large[0].Y1)

		mid := Columns(400, 600, 1, Options{FontSize: 16, LineSpacing: 1.2, Mode: ModeMarkdown}, 0)
		assert.InDelta(t, 600.0-40-24, mid[0].Y1, 1e-9)
	})
}

func TestCapacity(t *testing.T) {
	assert.Equal(t, 1069, Capacity(220.67, 520, scenarioOpts))

	rich := scenarioOpts
	rich.Mode = ModeMarkdown
	assert.Equal(t, 908, Capacity(220.67, 520, rich))

	assert.Equal(t, 0, Capacity(0, 100, scenarioOpts))
}

func TestChooseColumns(t *testing.T) {
	t.Run("short text is one column at any size", func(t *testing.T) {
		for _, fs := range []float64{4, 12, 20, 48, 96} {
			opts := Options{FontSize: fs, LineSpacing: 1.2, Mode: ModePlain}
			assert.Equal(t, 1, ChooseColumns(400, 600, 500, opts), "font %v", fs)
			assert.Equal(t, 1, PlanPage(400, 600, cjk(500), opts).Columns)
		}
	})

	cases := []struct {
		chars int
		want  int
	}{
		{501, 1},
		{1069, 1},
		{1070, 2},
		{2138, 2},
		{2139, 3},
		{3000, 3},
		{50000, 3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ChooseColumns(400, 600, tc.chars, scenarioOpts), "%d chars", tc.chars)
	}
}

func TestPartition(t *testing.T) {
	t.Run("proportional with exact remainder", func(t *testing.T) {
		text := cjk(3000)
		plan := PlanPage(400, 600, text, scenarioOpts)

		require.Equal(t, 3, plan.Columns)
		assert.False(t, plan.Overflow())
		assert.Equal(t, 1000, utf8.RuneCountInString(plan.Segments[0]))
		assert.Equal(t, 1000, utf8.RuneCountInString(plan.Segments[1]))
		assert.Equal(t, 1000, utf8.RuneCountInString(plan.Segments[2]))
		assert.Equal(t, text, plan.Text())
	})

	t.Run("cuts after a late separator", func(t *testing.T) {
		rects := []ColumnRect{{Capacity: 100}, {Capacity: 100}}
		text := []rune(strings.Repeat("a", 90) + "。" + strings.Repeat("b", 109))

		segs, lefts := Partition(text, rects)
		assert.Equal(t, 91, utf8.RuneCountInString(segs[0]))
		assert.True(t, strings.HasSuffix(segs[0], "。"))
		assert.Equal(t, []string{"", ""}, lefts)
	})

	t.Run("ignores an early separator", func(t *testing.T) {
		rects := []ColumnRect{{Capacity: 100}, {Capacity: 100}}
		text := []rune(strings.Repeat("a", 50) + " " + strings.Repeat("b", 149))

		segs, _ := Partition(text, rects)
		assert.Equal(t, 100, utf8.RuneCountInString(segs[0]))
	})

	t.Run("overflow defers remainder from last column", func(t *testing.T) {
		text := cjk(10000)
		plan := PlanPage(400, 600, text, scenarioOpts)

		require.Equal(t, 3, plan.Columns)
		assert.True(t, plan.Overflow())
		assert.Equal(t, 1069, utf8.RuneCountInString(plan.Segments[0]))
		assert.Equal(t, 1069, utf8.RuneCountInString(plan.Segments[1]))
		assert.Empty(t, plan.Segments[2])
		assert.Equal(t, 10000-2*1069, utf8.RuneCountInString(plan.Leftovers[2]))
		assert.Equal(t, text, plan.Text())
	})

	t.Run("single column keeps the text", func(t *testing.T) {
		plan := PlanPage(100, 100, cjk(400), Options{FontSize: 40, Mode: ModePlain})
		require.Equal(t, 1, plan.Columns)
		assert.Equal(t, cjk(400), plan.Segments[0])
		assert.False(t, plan.Overflow())
	})

	t.Run("reconstruction", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(1, 2))
		alphabet := []rune("ab cd，。\n!?学习算法xyz ")
		for trial := 0; trial < 200; trial++ {
			n := rng.IntN(12000)
			buf := make([]rune, n)
			for i := range buf {
				buf[i] = alphabet[rng.IntN(len(alphabet))]
			}
			text := string(buf)
			opts := Options{
				FontSize:    float64(8 + rng.IntN(20)),
				LineSpacing: 1 + rng.Float64(),
				Mode:        []RenderMode{ModePlain, ModeMarkdown}[rng.IntN(2)],
			}
			plan := PlanPage(float64(200+rng.IntN(600)), float64(300+rng.IntN(700)), text, opts)
			require.Equal(t, text, plan.Text(), "trial %d", trial)
		}
	})
}

func TestFit(t *testing.T) {
	m := EstimateMeasurer{}

	t.Run("scenario column leftover is the unused suffix", func(t *testing.T) {
		plan := PlanPage(400, 600, cjk(3000), scenarioOpts)
		rect := plan.Rects[0]

		fit := Fit(plan.Segments[0], rect.Width(), rect.Height(), scenarioOpts, m)

		// 18 wide runes per line, 36 lines.
		require.Len(t, fit.Lines, 36)
		assert.Equal(t, 648, fit.Consumed)
		seg := []rune(plan.Segments[0])
		assert.Equal(t, string(seg[648:]), fit.Leftover)
		assert.NotEmpty(t, fit.Leftover)
	})

	t.Run("wraps at spaces", func(t *testing.T) {
		opts := Options{FontSize: 10, LineSpacing: 1.2, Mode: ModePlain}
		// 5.5pt per rune: 60pt holds 10 runes.
		fit := Fit("alpha beta gamma delta", 60, 100, opts, m)

		var texts []string
		for _, l := range fit.Lines {
			texts = append(texts, l.Text)
		}
		assert.Equal(t, []string{"alpha beta", "gamma", "delta"}, texts)
		assert.Empty(t, fit.Leftover)
	})

	t.Run("breaks long words", func(t *testing.T) {
		opts := Options{FontSize: 10, LineSpacing: 1, Mode: ModePlain}
		fit := Fit(strings.Repeat("x", 25), 56, 100, opts, m)
		require.Len(t, fit.Lines, 3)
		assert.Equal(t, strings.Repeat("x", 10), fit.Lines[0].Text)
		assert.Equal(t, strings.Repeat("x", 5), fit.Lines[2].Text)
	})

	t.Run("keeps blank lines", func(t *testing.T) {
		opts := Options{FontSize: 10, LineSpacing: 1, Mode: ModePlain}
		fit := Fit("a\n\nb", 100, 100, opts, m)
		require.Len(t, fit.Lines, 3)
		assert.Equal(t, "", fit.Lines[1].Text)
	})

	t.Run("leftover reconstructs", func(t *testing.T) {
		opts := Options{FontSize: 10, LineSpacing: 1.2, Mode: ModePlain}
		text := strings.Repeat("word 学 ", 200)
		fit := Fit(text, 80, 60, opts, m)

		require.NotEmpty(t, fit.Leftover)
		consumed := string([]rune(text)[:fit.Consumed])
		assert.Equal(t, text, consumed+fit.Leftover)
		assert.Len(t, fit.Lines, MaxLines(60, opts))
	})

	t.Run("box shorter than a line", func(t *testing.T) {
		fit := Fit("abc", 100, 5, Options{FontSize: 10}, m)
		assert.Empty(t, fit.Lines)
		assert.Equal(t, "abc", fit.Leftover)
	})
}

func TestParseRenderMode(t *testing.T) {
	for in, want := range map[string]RenderMode{
		"":            ModeMarkdown,
		"Markdown":    ModeMarkdown,
		"text":        ModePlain,
		"plain":       ModePlain,
		"empty_right": ModeEmptyRight,
	} {
		got, err := ParseRenderMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseRenderMode("html")
	assert.Error(t, err)
}

func TestWide(t *testing.T) {
	assert.True(t, Wide('学'))
	assert.True(t, Wide('，'))
	assert.False(t, Wide('a'))
	assert.Equal(t, 12.0, EstimateMeasurer{}.Advance('学', 12, StyleRegular))
	assert.InDelta(t, 6.6, EstimateMeasurer{}.Advance('a', 12, StyleRegular), 1e-9)
}
