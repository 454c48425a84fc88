package preview

import (
	"fmt"
	"os"
	"strings"
)

// resource is a fetched page image held in a temp file.
type resource struct {
	path string
	size int64
}

func extFor(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".img"
	}
}

func allocate(dir, contentType string, data []byte) (*resource, error) {
	f, err := os.CreateTemp(dir, "docflow-preview-*"+extFor(contentType))
	if err != nil {
		return nil, fmt.Errorf("create preview file: %w", err)
	}
	n, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(f.Name())
		if werr != nil {
			return nil, fmt.Errorf("write preview file: %w", werr)
		}
		return nil, fmt.Errorf("close preview file: %w", cerr)
	}
	return &resource{path: f.Name(), size: int64(n)}, nil
}

func (r *resource) release() error {
	if r == nil {
		return nil
	}
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
