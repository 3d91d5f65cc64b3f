package mq

import "errors"

var (
	// ErrNoChannel — канал недоступен (соединение закрыто или переподключается).
	ErrNoChannel = errors.New("no channel available")

	// ErrUnknownMessageType — тип сообщения не поддерживается обработчиком.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrRejected — сообщение не может быть обработано и не должно
	// возвращаться в очередь.
	ErrRejected = errors.New("message rejected")
)
