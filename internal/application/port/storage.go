package port

import "context"

// FileStorage persists uploaded documents under opaque relative keys. The
// engine never embeds file content in the request record, only these keys.
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
	GetFullPath(relativePath string) string
}
