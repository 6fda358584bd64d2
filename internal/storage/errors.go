// Package storage implements the manifest, description, and content
// engine: the layer that turns an opened row store and a derived Mixer
// into a keyed, encrypted table store.
package storage

import "fmt"

// StorageError is returned for every recoverable storage-layer condition:
// missing table, duplicate key, non-empty import target, tables-limit
// exceeded, malformed DBID, record not found. Grounded on the teacher's
// plain sentinel-error style (kryptco-kr/error.go) but kept as a struct,
// rather than bare fmt.Errorf values, so KeyCheckError can embed it and
// callers can still errors.As either kind independently.
type StorageError struct {
	Message string
	Cause   error
}

func NewStorageError(message string) *StorageError {
	return &StorageError{Message: message}
}

func WrapStorageError(message string, cause error) *StorageError {
	return &StorageError{Message: message, Cause: cause}
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("storage: %s", e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// KeyCheckError is returned exclusively by CheckKey on digest mismatch;
// callers translate it to "incorrect password".
type KeyCheckError struct {
	*StorageError
}

func NewKeyCheckError() *KeyCheckError {
	return &KeyCheckError{StorageError: NewStorageError("incorrect database key")}
}

// Unwrap exposes the embedded *StorageError so errors.As matches either
// type.
func (e *KeyCheckError) Unwrap() error {
	return e.StorageError
}

// TableNotExistError names the missing table, mirroring description.py's
// TableNotExist(table_name).
type TableNotExistError struct {
	*StorageError
	Table string
}

func NewTableNotExistError(table string) *TableNotExistError {
	return &TableNotExistError{
		StorageError: NewStorageError(fmt.Sprintf("table %q does not exist", table)),
		Table:        table,
	}
}

// Unwrap exposes the embedded *StorageError so errors.As matches either
// type.
func (e *TableNotExistError) Unwrap() error {
	return e.StorageError
}
