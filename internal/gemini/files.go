// files.go — адаптер Files API к доменной модели asset.
package gemini

import (
	"context"

	"github.com/bigkaa/codetrace/internal/domain/asset"
)

// Files — доступ к Files API в терминах asset.Asset.
type Files struct {
	client *Client
}

// Files возвращает адаптер Files API.
func (c *Client) Files() *Files {
	return &Files{client: c}
}

// Create загружает файл и возвращает снимок ассета из ответа сервиса.
func (f *Files) Create(ctx context.Context, filePath, displayName, mimeType string) (*asset.Asset, error) {
	file, err := f.client.UploadFile(ctx, filePath, displayName, mimeType)
	if err != nil {
		return nil, err
	}
	return toAsset(file), nil
}

// Get запрашивает актуальное состояние ассета.
func (f *Files) Get(ctx context.Context, name string) (*asset.Asset, error) {
	file, err := f.client.GetFile(ctx, name)
	if err != nil {
		return nil, err
	}
	return toAsset(file), nil
}

// Delete удаляет ассет.
func (f *Files) Delete(ctx context.Context, name string) error {
	return f.client.DeleteFile(ctx, name)
}

func toAsset(file *File) *asset.Asset {
	return &asset.Asset{
		Name:        file.Name,
		DisplayName: file.DisplayName,
		MimeType:    file.MimeType,
		URI:         file.URI,
		State:       asset.ParseState(file.State),
		RawState:    file.State,
	}
}
