package mq

import "errors"

var (
	// ErrNoChannel — AMQP канал недоступен (соединение восстанавливается).
	ErrNoChannel = errors.New("mq: no channel available")

	// ErrConnectionClosed — соединение закрыто через Close.
	ErrConnectionClosed = errors.New("mq: connection closed")

	// ErrPermanent — сообщение нельзя обработать повторно; уходит в DLQ без requeue.
	ErrPermanent = errors.New("mq: permanent failure")
)
