package model

import "github.com/selfmemory/engine/internal/memerr"

func errInvalidContext(msg string) error {
	return memerr.New(memerr.KindValidation, "task context: %s", msg)
}

func errInvalid(msg string, args ...any) error {
	return memerr.New(memerr.KindValidation, msg, args...)
}
