package storage

import "errors"

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrCharacterNotFound = errors.New("character not found")
	ErrGhostNotFound     = errors.New("ghost not found")
	ErrVehicleNotFound   = errors.New("vehicle not found")
	ErrDuplicateName     = errors.New("name already taken")
	ErrInsufficientFunds = errors.New("insufficient funds")

	UnexpectedDatabaseError = errors.New("unexpected database error")
)
