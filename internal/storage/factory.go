package storage

import "github.com/leandroasilva/lmcs-db/internal/errs"

// New constructs the backend named by storageType ("memory", "json",
// "binary", "aol") against cfg. storageType is case-sensitive and
// matches the Config.StorageType values spec.md §6 defines.
func New(storageType string, cfg Config) (Storage, error) {
	switch storageType {
	case "memory":
		return NewMemoryStorage(cfg), nil
	case "json":
		return NewJSONStorage(cfg), nil
	case "binary":
		return NewBinaryStorage(cfg), nil
	case "aol":
		return NewAOLStorage(cfg), nil
	default:
		return nil, errs.NewValidation("storage.unknown_type", "unknown storage type: "+storageType)
	}
}
