package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nkiryanov/graphtoken/internal/apperrors"
	"github.com/nkiryanov/graphtoken/internal/models"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// TokenRepo keeps the token as pretty-printed JSON file
type TokenRepo struct {
	path string
	mu   sync.RWMutex
}

func NewTokenRepo(path string) *TokenRepo {
	return &TokenRepo{path: path}
}

func (r *TokenRepo) Path() string {
	return r.path
}

func (r *TokenRepo) Load(ctx context.Context) (models.TokenRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return models.TokenRecord{}, apperrors.ErrTokenNotFound
	case err != nil:
		return models.TokenRecord{}, fmt.Errorf("%w: read %s. Err: %v", apperrors.ErrPersistenceFailed, r.path, err)
	}

	token, err := models.ParseTokenRecord(data)
	if err != nil {
		return token, fmt.Errorf("%w: decode %s. Err: %v", apperrors.ErrPersistenceFailed, r.path, err)
	}

	return token, nil
}

// Save writes to a temp file in the same directory and renames it over the old one
// So readers never see a half written token
func (r *TokenRepo) Save(ctx context.Context, token models.TokenRecord) error {
	buf := &bytes.Buffer{}
	if err := json.Indent(buf, token.Raw, "", "  "); err != nil {
		return fmt.Errorf("%w: encode token. Err: %v", apperrors.ErrPersistenceFailed, err)
	}
	buf.WriteByte('\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("%w: create directory %s. Err: %v", apperrors.ErrPersistenceFailed, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: create temp file. Err: %v", apperrors.ErrPersistenceFailed, err)
	}
	defer os.Remove(tmp.Name()) // nolint:errcheck

	_, err = tmp.Write(buf.Bytes())
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), filePerm)
	}
	if err != nil {
		return fmt.Errorf("%w: write temp file. Err: %v", apperrors.ErrPersistenceFailed, err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("%w: replace %s. Err: %v", apperrors.ErrPersistenceFailed, r.path, err)
	}

	return nil
}
