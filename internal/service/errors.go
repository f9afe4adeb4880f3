package service

import "errors"

var (
	// ErrSessionExists 表示同一连接 ID 被重复注册。
	ErrSessionExists = errors.New("session already exists for connection")
	// ErrNoTransport 表示协调器在绑定传输层之前就收到了消息。
	ErrNoTransport = errors.New("coordinator has no transport attached")
)
