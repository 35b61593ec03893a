package models

import "github.com/google/uuid"

// NewID 生成唯一ID
func NewID() string {
	return uuid.New().String()
}

// ShortID 生成8位随机标识
func ShortID() string {
	return uuid.New().String()[:8]
}
