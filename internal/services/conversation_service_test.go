package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "github.com/aichat/backend-go/internal/errors"
	"github.com/aichat/backend-go/internal/models"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func conversationRow(id string, userID uint) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "user_id", "title", "last_message_at", "created_at", "updated_at"}).
		AddRow(id, userID, "新对话", now, now, now)
}

func TestValidateOwnershipOK(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewConversationService(db)

	mock.ExpectQuery(`SELECT \* FROM "conversations" WHERE id = \$1 AND user_id = \$2`).
		WithArgs("conv-1", uint(1), 1).
		WillReturnRows(conversationRow("conv-1", 1))

	require.NoError(t, svc.ValidateOwnership(context.Background(), "conv-1", 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateOwnershipDenied(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewConversationService(db)

	mock.ExpectQuery(`SELECT \* FROM "conversations" WHERE id = \$1 AND user_id = \$2`).
		WithArgs("conv-1", uint(2), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := svc.ValidateOwnership(context.Background(), "conv-1", 2)
	require.Error(t, err)
	assert.True(t, apperrors.IsAccessDenied(err))
}

func TestCreateConversationDefaultTitle(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewConversationService(db)

	mock.ExpectExec(`INSERT INTO "conversations"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	conv, err := svc.CreateConversation(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Equal(t, "新对话", conv.Title)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, uint(1), conv.UserID)
}

func TestRecentMessagesChronological(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewConversationService(db)

	now := time.Now()
	// 倒序查询：最新在前
	rows := sqlmock.NewRows([]string{"id", "conversation_id", "user_id", "role", "content", "model", "metadata", "status", "created_at"}).
		AddRow(2, "conv-1", 1, models.RoleAssistant, "回答", "deepseek-chat", "", "completed", now).
		AddRow(1, "conv-1", 1, models.RoleUser, "问题", "", "", "completed", now.Add(-time.Minute))
	mock.ExpectQuery(`SELECT \* FROM "messages" WHERE conversation_id = \$1 ORDER BY created_at DESC`).
		WithArgs("conv-1", 10).
		WillReturnRows(rows)

	messages, err := svc.RecentMessages(context.Background(), "conv-1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "问题", messages[0].Content)
	assert.Equal(t, "回答", messages[1].Content)
}

func TestListMessagesParsesRagMetadata(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewConversationService(db)

	mock.ExpectQuery(`SELECT \* FROM "conversations" WHERE id = \$1 AND user_id = \$2`).
		WithArgs("conv-1", uint(1), 1).
		WillReturnRows(conversationRow("conv-1", 1))

	metadata := `{"ragDocs":[{"documentId":7,"content":"片段","knowledgeBaseTitle":"手册"}]}`
	rows := sqlmock.NewRows([]string{"id", "conversation_id", "user_id", "role", "content", "model", "metadata", "status", "created_at"}).
		AddRow(1, "conv-1", 1, models.RoleUser, "问题", "", "", "completed", time.Now()).
		AddRow(2, "conv-1", 1, models.RoleAssistant, "回答", "deepseek-chat", metadata, "completed", time.Now())
	mock.ExpectQuery(`SELECT \* FROM "messages" WHERE conversation_id = \$1 ORDER BY created_at ASC`).
		WithArgs("conv-1").
		WillReturnRows(rows)

	views, err := svc.ListMessages(context.Background(), "conv-1", 1)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Empty(t, views[0].RagDocs)
	require.Len(t, views[1].RagDocs, 1)
	assert.Equal(t, uint(7), views[1].RagDocs[0].DocumentID)
	assert.Equal(t, "手册", views[1].RagDocs[0].KnowledgeBaseTitle)
}
