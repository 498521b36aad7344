package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/aichat/backend-go/internal/logger"
)

// Producer Kafka生产者
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// TurnMessage 一轮完成的对话，供下游分析消费
type TurnMessage struct {
	ConversationID string    `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	Model          string    `json:"model"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	RagDocCount    int       `json:"rag_doc_count"`
	Timestamp      time.Time `json:"timestamp"`
}

var globalProducer *Producer

// InitProducer 初始化Kafka生产者
func InitProducer(brokers []string, topic string) error {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	globalProducer = &Producer{
		producer: producer,
		topic:    topic,
	}

	logger.Info("kafka producer initialized", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return nil
}

// GetProducer 获取全局生产者实例
func GetProducer() *Producer {
	return globalProducer
}

// SendMessage 发送消息到Kafka
func (p *Producer) SendMessage(msg *TurnMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka生产者未初始化")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d-%s", msg.UserID, msg.ConversationID)),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("user_id"),
				Value: []byte(fmt.Sprintf("%d", msg.UserID)),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(kafkaMsg)
	if err != nil {
		logger.Error("failed to send kafka message", zap.Error(err))
		return fmt.Errorf("发送消息失败: %w", err)
	}

	logger.Debug("kafka message sent",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("conversation_id", msg.ConversationID))

	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// SendTurnMessage 发送完成的对话轮次，Kafka未配置时静默跳过
func SendTurnMessage(conversationID string, userID uint, model, role, content string, ragDocCount int) error {
	producer := GetProducer()
	if producer == nil {
		return nil
	}

	msg := &TurnMessage{
		ConversationID: conversationID,
		UserID:         userID,
		Model:          model,
		Role:           role,
		Content:        content,
		RagDocCount:    ragDocCount,
		Timestamp:      time.Now(),
	}

	return producer.SendMessage(msg)
}
