package models

import "errors"

var (
	ErrSessionNotFound  = errors.New("video session not found")
	ErrSessionEnded     = errors.New("video session already ended")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrNotParticipant   = errors.New("user is not a participant of this session")
	ErrOutsideJoinGap   = errors.New("outside the allowed join window")
	ErrRoomCodeCollided = errors.New("room code already in use")
)
