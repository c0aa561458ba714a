package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Merchant struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	Email     string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"`
	IsActive  bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Merchant) TableName() string {
	return "merchants"
}

func NewMerchant(name, email string) (*Merchant, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, fmt.Errorf("%w: 商户名称不能为空", ErrInvalidArgument)
	}
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: 邮箱格式不正确", ErrInvalidArgument)
	}
	now := time.Now()
	return &Merchant{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     strings.ToLower(email),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (m *Merchant) Deactivate() {
	m.IsActive = false
	m.UpdatedAt = time.Now()
}

func (m *Merchant) Activate() {
	m.IsActive = true
	m.UpdatedAt = time.Now()
}
