package store

import "errors"

var (
	errCollectionRequired = errors.New("collection is required")
	errEntityIDRequired   = errors.New("entity ID is required")
	errDimensionMismatch  = errors.New("embedding vectors have mismatched dimensions")
	errVectorDataTooShort = errors.New("embedding buffer is truncated")
	errSkillNameRequired  = errors.New("skill name is required")
	errWatchUnsupported   = errors.New("change watching requires a disk-backed store")
)
