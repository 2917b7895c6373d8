package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room has not been initialized.
	ErrRoomNotFound = errors.New("room not found")
	// ErrQuestionSetNotFound indicates the question content could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrConnectionClosed is returned when sending to a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)
