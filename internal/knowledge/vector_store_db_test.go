package knowledge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func mustJSON(t *testing.T, vec []float32) string {
	t.Helper()
	data, err := json.Marshal(vec)
	require.NoError(t, err)
	return string(data)
}

func TestDatabaseVectorStoreSearchOrdersByScore(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewDatabaseVectorStore(db)

	rows := sqlmock.NewRows([]string{"id", "knowledge_base_id", "content", "embedding", "metadata"}).
		AddRow(1, 7, "orthogonal doc", mustJSON(t, []float32{0, 1, 0}), "").
		AddRow(2, 7, "exact match doc", mustJSON(t, []float32{1, 0, 0}), `{"source":"text"}`).
		AddRow(3, 7, "diagonal doc", mustJSON(t, []float32{1, 1, 0}), "")

	mock.ExpectQuery(`SELECT id, knowledge_base_id, content, embedding, metadata FROM "vector_documents"`).
		WillReturnRows(rows)

	matches, err := store.Search(context.Background(), VectorSearchRequest{
		KnowledgeBaseIDs: []uint{7},
		QueryEmbedding:   []float32{1, 0, 0},
		Limit:            2,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, uint(2), matches[0].DocumentID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, "text", matches[0].Metadata["source"])

	assert.Equal(t, uint(3), matches[1].DocumentID)
	assert.InDelta(t, 0.7071, matches[1].Score, 1e-3)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseVectorStoreSearchSkipsCorruptEmbeddings(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewDatabaseVectorStore(db)

	rows := sqlmock.NewRows([]string{"id", "knowledge_base_id", "content", "embedding", "metadata"}).
		AddRow(1, 7, "broken", "not-json", "").
		AddRow(2, 7, "fine", mustJSON(t, []float32{1, 0}), "")

	mock.ExpectQuery(`SELECT id, knowledge_base_id, content, embedding, metadata FROM "vector_documents"`).
		WillReturnRows(rows)

	matches, err := store.Search(context.Background(), VectorSearchRequest{
		KnowledgeBaseIDs: []uint{7},
		QueryEmbedding:   []float32{1, 0},
		Limit:            5,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint(2), matches[0].DocumentID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseVectorStoreSearchEmptyInputs(t *testing.T) {
	db, _ := newMockDB(t)
	store := NewDatabaseVectorStore(db)

	matches, err := store.Search(context.Background(), VectorSearchRequest{
		KnowledgeBaseIDs: []uint{7},
	})
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = store.Search(context.Background(), VectorSearchRequest{
		QueryEmbedding: []float32{1, 0},
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDatabaseVectorStoreUpsert(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewDatabaseVectorStore(db)

	mock.ExpectExec(`UPDATE "vector_documents" SET "embedding"`).
		WithArgs(mustJSON(t, []float32{0.5, 0.5}), uint(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	vectorID, err := store.Upsert(context.Background(), VectorRecord{
		DocumentID:      42,
		KnowledgeBaseID: 7,
		Content:         "some chunk",
		Embedding:       []float32{0.5, 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, "db_42", vectorID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseVectorStoreUpsertRejectsEmptyEmbedding(t *testing.T) {
	db, _ := newMockDB(t)
	store := NewDatabaseVectorStore(db)

	_, err := store.Upsert(context.Background(), VectorRecord{DocumentID: 1})
	assert.Error(t, err)
}

func TestDatabaseVectorStoreDeleteByKnowledgeBase(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewDatabaseVectorStore(db)

	mock.ExpectExec(`DELETE FROM "vector_documents"`).
		WithArgs(uint(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := store.DeleteByKnowledgeBase(context.Background(), 7)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
