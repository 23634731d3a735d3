package queue

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tokmz/scatter/pkg/chat"
	"github.com/tokmz/scatter/pkg/logger"
)

// PendingMessage 一条待投递消息
type PendingMessage struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;index:idx_pending_user" json:"user_id"`
	Payload   string    `gorm:"type:text;not null" json:"payload"` // chat.Record 的 JSON
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 设置表名
func (PendingMessage) TableName() string {
	return "scatter_pending_messages"
}

// DatabaseQueue 基于 GORM 的离线队列，按自增 ID 保证 FIFO
type DatabaseQueue struct {
	db         *gorm.DB
	maxPerUser int
}

// NewDatabaseQueue 创建数据库离线队列，migrate 为 true 时自动建表
func NewDatabaseQueue(db *gorm.DB, maxPerUser int, migrate bool) (*DatabaseQueue, error) {
	if migrate {
		if err := db.AutoMigrate(&PendingMessage{}); err != nil {
			return nil, ErrStore.WithMessage("failed to migrate pending messages").WithError(err)
		}
	}
	return &DatabaseQueue{db: db, maxPerUser: maxPerUser}, nil
}

// Push 入队，超出上限时删除最早的记录
func (q *DatabaseQueue) Push(ctx context.Context, user chat.UserID, p chat.Payload) error {
	data, err := json.Marshal(p.Record())
	if err != nil {
		return ErrEncode.WithError(err)
	}

	err = q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := PendingMessage{UserID: uint64(user), Payload: string(data)}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if q.maxPerUser <= 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&PendingMessage{}).Where("user_id = ?", uint64(user)).Count(&count).Error; err != nil {
			return err
		}
		over := int(count) - q.maxPerUser
		if over <= 0 {
			return nil
		}

		var oldest []uint64
		if err := tx.Model(&PendingMessage{}).
			Where("user_id = ?", uint64(user)).
			Order("id ASC").
			Limit(over).
			Pluck("id", &oldest).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", oldest).Delete(&PendingMessage{}).Error
	})
	if err != nil {
		return ErrStore.WithError(err)
	}
	return nil
}

// Drain 出队全部消息
func (q *DatabaseQueue) Drain(ctx context.Context, user chat.UserID) ([]chat.Payload, error) {
	var rows []PendingMessage
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", uint64(user)).Order("id ASC").Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		// 只删除已读出的记录，并发入队的新消息留到下次
		last := rows[len(rows)-1].ID
		return tx.Where("user_id = ? AND id <= ?", uint64(user), last).Delete(&PendingMessage{}).Error
	})
	if err != nil {
		return nil, ErrStore.WithError(err)
	}

	raw := make([]string, len(rows))
	for i, row := range rows {
		raw[i] = row.Payload
	}
	return decodeAll(raw)
}

// Len 队列长度
func (q *DatabaseQueue) Len(ctx context.Context, user chat.UserID) (int, error) {
	var count int64
	err := q.db.WithContext(ctx).Model(&PendingMessage{}).Where("user_id = ?", uint64(user)).Count(&count).Error
	if err != nil {
		return 0, ErrStore.WithError(err)
	}
	return int(count), nil
}

// Purge 删除 before 之前入队的记录
func (q *DatabaseQueue) Purge(ctx context.Context, before time.Time) (int64, error) {
	res := q.db.WithContext(ctx).Where("created_at < ?", before).Delete(&PendingMessage{})
	if res.Error != nil {
		return 0, ErrStore.WithError(res.Error)
	}
	return res.RowsAffected, nil
}

// RunPurge 按 ttl 定期清理过期记录，阻塞到 ctx 结束
// 清理周期为 ttl 的一半，最短 1 分钟
func (q *DatabaseQueue) RunPurge(ctx context.Context, ttl time.Duration, log logger.Logger) {
	interval := max(ttl/2, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := q.Purge(ctx, now.Add(-ttl))
			if err != nil {
				log.Warn("purge undelivered messages failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged expired undelivered messages", zap.Int64("count", n))
			}
		}
	}
}
