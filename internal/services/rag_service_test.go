package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aichat/backend-go/internal/errors"
	"github.com/aichat/backend-go/internal/knowledge"
)

type fakeSearcher struct {
	matches  []knowledge.SearchMatch
	err      error
	calls    int
	lastTopK int
}

func (f *fakeSearcher) SearchInMultiple(ctx context.Context, knowledgeBaseIDs []uint, userID uint, query string, topK int) ([]knowledge.SearchMatch, error) {
	f.calls++
	f.lastTopK = topK
	return f.matches, f.err
}

func TestRetrieveMapsMatches(t *testing.T) {
	searcher := &fakeSearcher{matches: []knowledge.SearchMatch{
		{
			DocumentID: 11,
			Content:    "Go语言于2009年发布。",
			Score:      0.92,
			Metadata:   map[string]interface{}{"knowledgeBaseTitle": "编程语言"},
		},
		{
			DocumentID: 12,
			Content:    "没有元数据的文档",
			Score:      0.80,
		},
	}}
	svc := NewRagService(searcher, nil, 0, 3)

	docs, err := svc.Retrieve(context.Background(), 1, []uint{3}, "Go发布时间", 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, uint(11), docs[0].DocumentID)
	assert.Equal(t, "编程语言", docs[0].KnowledgeBaseTitle)
	assert.Equal(t, "未知知识库", docs[1].KnowledgeBaseTitle)
	assert.Equal(t, 3, searcher.lastTopK)
}

func TestRetrieveEmptyInputs(t *testing.T) {
	searcher := &fakeSearcher{}
	svc := NewRagService(searcher, nil, 0, 3)

	docs, err := svc.Retrieve(context.Background(), 1, nil, "query", 3)
	require.NoError(t, err)
	assert.Nil(t, docs)

	docs, err = svc.Retrieve(context.Background(), 1, []uint{1}, "   ", 3)
	require.NoError(t, err)
	assert.Nil(t, docs)

	assert.Zero(t, searcher.calls)
}

func TestRetrieveOwnershipErrorPropagates(t *testing.T) {
	searcher := &fakeSearcher{err: apperrors.NewAccessDeniedError("知识库")}
	svc := NewRagService(searcher, nil, 0, 3)

	_, err := svc.Retrieve(context.Background(), 1, []uint{9}, "query", 3)
	require.Error(t, err)
	assert.True(t, apperrors.IsAccessDenied(err))
}

func TestRetrieveDegradesOnSearchFailure(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("milvus unavailable")}
	svc := NewRagService(searcher, nil, 0, 3)

	docs, err := svc.Retrieve(context.Background(), 1, []uint{3}, "query", 3)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestTruncateSnippet(t *testing.T) {
	short := "短内容\r\n换行保留"
	assert.Equal(t, "短内容\n换行保留", truncateSnippet(short))

	long := strings.Repeat("长", 250)
	got := truncateSnippet(long)
	assert.Equal(t, 200, len([]rune(strings.TrimSuffix(got, "..."))))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestBuildRagMetadata(t *testing.T) {
	assert.Empty(t, BuildRagMetadata(nil))

	docs := []RetrievedDocument{
		{DocumentID: 5, Content: "完整内容", Snippet: "截断内容", KnowledgeBaseTitle: "手册", Score: 0.9},
	}
	metadata := BuildRagMetadata(docs)
	assert.Contains(t, metadata, `"ragDocs"`)
	assert.Contains(t, metadata, `"documentId":5`)
	assert.Contains(t, metadata, `"content":"截断内容"`)
	// 完整内容与得分不写入元数据
	assert.NotContains(t, metadata, "完整内容")
	assert.NotContains(t, metadata, `"score"`)
}

func TestBuildContextFromDocuments(t *testing.T) {
	docs := []RetrievedDocument{
		{Content: "第一篇"},
		{Content: "第二篇"},
	}
	got := BuildContextFromDocuments(docs)
	assert.Equal(t, "【文档1】\n第一篇\n\n【文档2】\n第二篇", got)
	assert.Empty(t, BuildContextFromDocuments(nil))
}
