package domain

import "errors"

var (
	// ErrMissingToken: el evento no trae identificador de token.
	ErrMissingToken = errors.New("event has no token identifier")
	// ErrUnknownToken: el token no pertenece a ningún instrumento registrado.
	ErrUnknownToken = errors.New("unknown token")
	// ErrInvalidLevel: precio fuera de (0,1) o tamaño negativo.
	ErrInvalidLevel = errors.New("invalid book level")
	// ErrNoBook: todavía no hay libro para el instrumento.
	ErrNoBook = errors.New("no book for instrument")
)
