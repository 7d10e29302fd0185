package comments

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const keyPrefix = "order_comments_"

// Store persists one opaque value per key.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
}

// logKey is the store key holding the comment log of an order.
func logKey(orderID uint) string {
	return fmt.Sprintf("%s%d", keyPrefix, orderID)
}

// Option is a named value in the portal option table.
type Option struct {
	Name  string `gorm:"column:name;primaryKey;size:191"`
	Value string `gorm:"column:value;type:text;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Option) TableName() string {
	return "portal_options"
}

// OptionStore keeps values in the relational option table.
type OptionStore struct {
	db *gorm.DB
}

// NewOptionStore constructs an option table store.
func NewOptionStore(db *gorm.DB) (*OptionStore, error) {
	if db == nil {
		return nil, errors.New("comments: database handle is required")
	}
	return &OptionStore{db: db}, nil
}

func (s *OptionStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var option Option
	err := s.db.WithContext(ctx).Where("name = ?", key).Take(&option).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(option.Value), true, nil
}

func (s *OptionStore) Save(ctx context.Context, key string, value []byte) error {
	option := Option{Name: key, Value: string(value)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&option).Error
}

// RedisStore keeps values as plain redis strings without expiry.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore constructs a redis backed store.
func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("comments: redis client is required")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}
