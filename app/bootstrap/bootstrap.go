package bootstrap

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aichat/backend-go/internal/config"
	"github.com/aichat/backend-go/internal/database"
	"github.com/aichat/backend-go/internal/kafka"
	"github.com/aichat/backend-go/internal/knowledge"
	"github.com/aichat/backend-go/internal/logger"
	"github.com/aichat/backend-go/internal/repository"
	"github.com/aichat/backend-go/internal/services"
)

// App 持有共享服务与退出时需要清理的资源
type App struct {
	DB    *gorm.DB
	Redis *redis.Client

	VectorService       *services.VectorService
	RagService          *services.RagService
	ConversationService *services.ConversationService
	ChatStreamService   *services.ChatStreamService
	MetricsService      *services.MetricsService

	cleanupTasks []func() error
}

// Init 初始化配置、日志、数据库与各项服务
//
// Redis、Kafka、Elasticsearch、Milvus均为可选组件，不可用时降级并告警，
// 只有Postgres是硬依赖。
func Init() (*App, error) {
	// .env缺失不致命
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if err := logger.InitLogger(); err != nil {
		return nil, err
	}
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.AppConfig

	db, err := database.InitDB()
	if err != nil {
		return nil, err
	}
	app := &App{DB: db}
	app.cleanupTasks = append(app.cleanupTasks, database.CloseDB)

	if cfg.Redis.Enabled {
		client, err := database.InitRedis()
		if err != nil {
			logger.Warn("redis unavailable, retrieval cache disabled", zap.Error(err))
		} else {
			app.Redis = client
			app.cleanupTasks = append(app.cleanupTasks, database.CloseRedis)
		}
	}

	if cfg.Kafka.Enabled {
		if err := kafka.InitProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
			logger.Warn("kafka unavailable, turn events disabled", zap.Error(err))
		} else {
			app.cleanupTasks = append(app.cleanupTasks, func() error {
				if producer := kafka.GetProducer(); producer != nil {
					return producer.Close()
				}
				return nil
			})
		}
	}

	var history services.HistoryIndexer = &services.NoopHistoryIndexer{}
	if cfg.Elasticsearch.Enabled {
		indexer, err := services.NewChatHistoryService(
			cfg.Elasticsearch.Addresses,
			cfg.Elasticsearch.Username,
			cfg.Elasticsearch.Password,
			cfg.Elasticsearch.Index,
		)
		if err != nil {
			logger.Warn("elasticsearch unavailable, history indexing disabled", zap.Error(err))
		} else {
			history = indexer
		}
	}

	embedder := knowledge.NewEmbedderFromConfig(
		cfg.Knowledge.Embedding.Provider,
		cfg.Knowledge.Embedding.APIKey,
		cfg.Knowledge.Embedding.BaseURL,
		cfg.Knowledge.Embedding.Model,
		cfg.Knowledge.Embedding.Dimension,
	)

	var store knowledge.VectorStore
	if cfg.Knowledge.VectorStore.Provider == "milvus" {
		milvusStore, err := knowledge.NewMilvusVectorStore(knowledge.MilvusOptions{
			Address:    cfg.Knowledge.VectorStore.Milvus.Address,
			Username:   cfg.Knowledge.VectorStore.Milvus.Username,
			Password:   cfg.Knowledge.VectorStore.Milvus.Password,
			Collection: cfg.Knowledge.VectorStore.Milvus.Collection,
			Database:   cfg.Knowledge.VectorStore.Milvus.Database,
			VectorSize: cfg.Knowledge.Embedding.Dimension,
		})
		if err != nil {
			logger.Warn("milvus unavailable, falling back to database vector store", zap.Error(err))
			store = knowledge.NewDatabaseVectorStore(db)
		} else {
			store = milvusStore
		}
	} else {
		store = knowledge.NewDatabaseVectorStore(db)
	}

	repo := repository.NewKnowledgeBaseRepository(db)
	app.VectorService = services.NewVectorService(db, repo, embedder, store)
	app.RagService = services.NewRagService(
		app.VectorService,
		app.Redis,
		time.Duration(cfg.Redis.TTL)*time.Second,
		cfg.Knowledge.TopK,
	)
	app.ConversationService = services.NewConversationService(db)
	app.ChatStreamService = services.NewChatStreamService(
		app.ConversationService,
		app.RagService,
		services.NewProviderRouter(cfg.Chat),
		history,
		cfg.Chat,
	)
	app.MetricsService = services.NewMetricsService()

	logger.Info("application bootstrapped",
		zap.String("env", cfg.Server.Env),
		zap.String("vector_store", cfg.Knowledge.VectorStore.Provider),
		zap.String("embedding", cfg.Knowledge.Embedding.Provider))
	return app, nil
}

// Shutdown 按初始化的逆序释放资源
func (a *App) Shutdown() {
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			logger.Error("cleanup task failed", zap.Error(err))
		}
	}
	logger.Sync()
}
