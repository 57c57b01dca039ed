package services

import (
	"errors"

	"comunitarr/internal/models"
)

var (
	ErrNotFound     = models.ErrNotFound
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrOutOfStock   = errors.New("out of stock")
	ErrUnknownUser  = errors.New("unknown user")
)
