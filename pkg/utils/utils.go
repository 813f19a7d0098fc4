package utils

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"InventoryVision/internal/entity"

	"github.com/oklog/ulid/v2"
)

type IUtils interface {
	NewULIDFromTimestamp(t time.Time) (string, error)
	ReadUpload(file *multipart.FileHeader) (entity.Upload, error)
}

type utils struct{}

func New() IUtils {
	return &utils{}
}

func (u *utils) NewULIDFromTimestamp(t time.Time) (string, error) {
	ms := ulid.Timestamp(t)
	entropy := ulid.Monotonic(rand.Reader, 0)

	id, err := ulid.New(ms, entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// ReadUpload reads a multipart file part into memory along with its name and
// declared content type.
func (u *utils) ReadUpload(file *multipart.FileHeader) (entity.Upload, error) {
	if file == nil {
		return entity.Upload{}, errors.New("no file uploaded")
	}

	f, err := file.Open()
	if err != nil {
		return entity.Upload{}, fmt.Errorf("open %s: %w", file.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return entity.Upload{}, fmt.Errorf("read %s: %w", file.Filename, err)
	}

	return entity.Upload{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
