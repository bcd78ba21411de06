package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe (o no es válido, en el ledger).
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (ej: username o jti duplicado).
	ErrConflict = errors.New("conflict")

	// ErrNoDatabase indica que no hay base de datos configurada.
	ErrNoDatabase = errors.New("no database configured")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
