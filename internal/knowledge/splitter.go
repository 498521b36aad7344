package knowledge

import (
	"regexp"
	"strings"

	apperrors "github.com/aichat/backend-go/internal/errors"
)

// SplitStrategy 切分策略
type SplitStrategy string

const (
	// StrategyTokenOverlap 按固定大小切分，支持重叠
	StrategyTokenOverlap SplitStrategy = "TOKEN_OVERLAP"
	// StrategyParagraph 按段落切分（以换行符为分隔）
	StrategyParagraph SplitStrategy = "PARAGRAPH"
	// StrategySentence 按句子切分（以中英文句末标点为分隔）
	StrategySentence SplitStrategy = "SENTENCE"
	// StrategyParagraphTokenOverlap 先按段落再按固定大小切分，段落间生成衔接块
	StrategyParagraphTokenOverlap SplitStrategy = "PARAGRAPH_TOKEN_OVERLAP"
)

// 默认配置
const (
	DefaultChunkSize   = 500
	DefaultOverlapSize = 50
)

var (
	lineBreakPattern = regexp.MustCompile(`\r?\n`)
	sentencePattern  = regexp.MustCompile(`[^.!?。！？]+[.!?。！？]+`)
)

// ParseStrategy 解析策略名，空串回落到PARAGRAPH
func ParseStrategy(name string) (SplitStrategy, error) {
	switch SplitStrategy(strings.ToUpper(strings.TrimSpace(name))) {
	case "":
		return StrategyParagraph, nil
	case StrategyTokenOverlap:
		return StrategyTokenOverlap, nil
	case StrategyParagraph:
		return StrategyParagraph, nil
	case StrategySentence:
		return StrategySentence, nil
	case StrategyParagraphTokenOverlap:
		return StrategyParagraphTokenOverlap, nil
	default:
		return "", apperrors.NewUnknownStrategyError(name)
	}
}

// Splitter 文档切分器
type Splitter struct{}

// NewSplitter 创建文档切分器
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Split 按指定策略切分文本
//
// chunkSize为每个块的目标大小（字符数），overlapSize为重叠大小，
// 非正值回落到默认配置。空白文本返回空切片。
func (s *Splitter) Split(text string, strategy SplitStrategy, chunkSize, overlapSize int) ([]string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlapSize < 0 {
		overlapSize = DefaultOverlapSize
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	switch strategy {
	case StrategyTokenOverlap:
		return splitByTokenWithOverlap([]rune(text), chunkSize, overlapSize), nil
	case StrategyParagraph:
		return splitByParagraph(text), nil
	case StrategySentence:
		return splitBySentence(text), nil
	case StrategyParagraphTokenOverlap:
		return splitByParagraphWithTokenOverlap(text, chunkSize, overlapSize), nil
	default:
		return nil, apperrors.NewUnknownStrategyError(string(strategy))
	}
}

// splitByTokenWithOverlap 按固定大小切分，支持重叠
//
// 切点尽量落在空格处避免切断单词：仅当回退后的切点仍超过块长一半时生效。
// 每轮起点必须严格前进，否则直接跳到本块末尾，保证循环终止。
func splitByTokenWithOverlap(runes []rune, chunkSize, overlapSize int) []string {
	if len(runes) <= chunkSize {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		// 尝试在单词边界处切分
		if end < len(runes) {
			if lastSpace := lastIndexSpace(runes, end); lastSpace > start && lastSpace-start > chunkSize/2 {
				end = lastSpace
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		next := end - overlapSize
		if next < 0 {
			next = 0
		}
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// lastIndexSpace 从from位置向前查找空格
func lastIndexSpace(runes []rune, from int) int {
	if from >= len(runes) {
		from = len(runes) - 1
	}
	for i := from; i >= 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}

// splitByParagraph 按段落切分，空行被丢弃
func splitByParagraph(text string) []string {
	var chunks []string
	for _, paragraph := range lineBreakPattern.Split(text, -1) {
		if p := strings.TrimSpace(paragraph); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks
}

// splitBySentence 按句子切分，无句末标点时回落到段落切分
func splitBySentence(text string) []string {
	var sentences []string
	for _, match := range sentencePattern.FindAllString(text, -1) {
		if s := strings.TrimSpace(match); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return splitByParagraph(text)
	}
	return sentences
}

// splitByParagraphWithTokenOverlap 先按段落再按固定大小切分
//
// 相邻段落之间插入一个衔接块：上一段的尾部拼接下一段的首块，
// 超出chunkSize时截断，保留跨段上下文。
func splitByParagraphWithTokenOverlap(text string, chunkSize, overlapSize int) []string {
	var result []string
	var prevTail []rune
	for _, paragraph := range lineBreakPattern.Split(text, -1) {
		p := strings.TrimSpace(paragraph)
		if p == "" {
			continue
		}
		runes := []rune(p)
		chunks := splitByTokenWithOverlap(runes, chunkSize, overlapSize)
		if prevTail != nil && len(chunks) > 0 {
			merged := []rune(strings.TrimSpace(string(prevTail) + " " + chunks[0]))
			if len(merged) > chunkSize {
				merged = merged[:chunkSize]
			}
			result = append(result, string(merged))
		}
		result = append(result, chunks...)
		if len(runes) > overlapSize {
			prevTail = runes[len(runes)-overlapSize:]
		} else {
			prevTail = runes
		}
	}
	return result
}
