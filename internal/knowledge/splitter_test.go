package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aichat/backend-go/internal/errors"
)

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter()

	chunks, err := s.Split("", StrategyTokenOverlap, 500, 50)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = s.Split("   \n\t  ", StrategyParagraph, 500, 50)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitUnknownStrategy(t *testing.T) {
	s := NewSplitter()

	_, err := s.Split("some text", SplitStrategy("BOGUS"), 500, 50)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestParseStrategy(t *testing.T) {
	strategy, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyParagraph, strategy)

	strategy, err = ParseStrategy("token_overlap")
	require.NoError(t, err)
	assert.Equal(t, StrategyTokenOverlap, strategy)

	strategy, err = ParseStrategy("paragraph")
	require.NoError(t, err)
	assert.Equal(t, StrategyParagraph, strategy)

	strategy, err = ParseStrategy(" SENTENCE ")
	require.NoError(t, err)
	assert.Equal(t, StrategySentence, strategy)

	_, err = ParseStrategy("bogus")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSplitTokenOverlapShortText(t *testing.T) {
	s := NewSplitter()

	chunks, err := s.Split("short text", StrategyTokenOverlap, 500, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"short text"}, chunks)
}

func TestSplitTokenOverlap(t *testing.T) {
	s := NewSplitter()

	chunks, err := s.Split("one two three", StrategyTokenOverlap, 11, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	// 第一块在空格处回退切分，第二块从上一块末尾回退overlap个字符开始
	assert.Equal(t, "one two", chunks[0])
	assert.Equal(t, "two three", chunks[1])
}

func TestSplitTokenOverlapCoversWholeText(t *testing.T) {
	s := NewSplitter()
	text := strings.Repeat("abcdefghij", 10)

	chunks, err := s.Split(text, StrategyTokenOverlap, 30, 5)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// 首尾必须覆盖原文两端
	assert.True(t, strings.HasPrefix(text, chunks[0]))
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 30)
		assert.Contains(t, text, chunk)
	}
}

func TestSplitTokenOverlapTerminatesOnPathologicalOverlap(t *testing.T) {
	s := NewSplitter()

	// overlap大于块大小时起点仍须前进
	chunks, err := s.Split(strings.Repeat("x", 30), StrategyTokenOverlap, 5, 10)
	require.NoError(t, err)
	assert.Len(t, chunks, 6)
}

func TestSplitParagraph(t *testing.T) {
	s := NewSplitter()

	chunks, err := s.Split("A.\nB.\n\nC.", StrategyParagraph, 500, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.", "B.", "C."}, chunks)
}

func TestSplitParagraphTrimsWhitespace(t *testing.T) {
	s := NewSplitter()

	chunks, err := s.Split("  first paragraph  \r\n\r\n  second paragraph  ", StrategyParagraph, 500, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"first paragraph", "second paragraph"}, chunks)
}

func TestSplitSentence(t *testing.T) {
	s := NewSplitter()

	chunks, err := s.Split("你好。Hello world! Is it done? Yes.", StrategySentence, 500, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"你好。", "Hello world!", "Is it done?", "Yes."}, chunks)
}

func TestSplitSentenceFallsBackToParagraph(t *testing.T) {
	s := NewSplitter()

	// 没有句末标点时回落到段落切分
	chunks, err := s.Split("no punctuation here\nsecond line", StrategySentence, 500, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"no punctuation here", "second line"}, chunks)
}

func TestSplitParagraphTokenOverlapBridges(t *testing.T) {
	s := NewSplitter()

	chunks, err := s.Split("alpha beta\ngamma delta", StrategyParagraphTokenOverlap, 500, 4)
	require.NoError(t, err)
	// 段落之间插入衔接块：上一段尾部 + 下一段首块
	assert.Equal(t, []string{"alpha beta", "beta gamma delta", "gamma delta"}, chunks)
}

func TestSplitParagraphTokenOverlapBridgeTruncated(t *testing.T) {
	s := NewSplitter()

	chunks, err := s.Split("aaaa\nbbbb", StrategyParagraphTokenOverlap, 6, 4)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "aaaa", chunks[0])
	// 衔接块超过chunkSize时截断
	assert.Equal(t, "aaaa b", chunks[1])
	assert.Equal(t, "bbbb", chunks[2])
}

func TestSplitDefaultsApplied(t *testing.T) {
	s := NewSplitter()

	text := strings.Repeat("word ", 200)
	chunks, err := s.Split(text, StrategyTokenOverlap, 0, -1)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), DefaultChunkSize)
	}
}
