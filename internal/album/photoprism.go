package album

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/subtitle-stitcher/internal/photoprism"
)

// Uploader is the part of the PhotoPrism client the sink uses.
type Uploader interface {
	UploadFile(ctx context.Context, filePath string) (string, error)
	ProcessUpload(ctx context.Context, uploadToken string, albumUIDs []string) error
}

// PhotoPrismSink uploads finished files into a PhotoPrism album.
type PhotoPrismSink struct {
	client   Uploader
	albumUID string
}

// NewPhotoPrismSink creates a sink adding uploads to albumUID. An empty
// albumUID leaves uploads in the library without an album.
func NewPhotoPrismSink(client Uploader, albumUID string) *PhotoPrismSink {
	return &PhotoPrismSink{client: client, albumUID: albumUID}
}

// ConnectPhotoPrism opens a PhotoPrism session and returns a sink for it.
func ConnectPhotoPrism(ctx context.Context, url, username, password, albumUID string) (*PhotoPrismSink, error) {
	pp, err := photoprism.NewPhotoPrism(ctx, url, username, password)
	if err != nil {
		return nil, classifyRemote(err)
	}
	if albumUID != "" {
		album, err := pp.GetAlbum(ctx, albumUID)
		if err != nil {
			_ = pp.Logout(ctx)
			if photoprism.IsNotFoundError(err) {
				return nil, fmt.Errorf("%w: no such album %s", ErrStorageFailure, albumUID)
			}
			return nil, classifyRemote(fmt.Errorf("album %s: %w", albumUID, err))
		}
		slog.Info("connected to PhotoPrism album", "album", album.Title, "uid", album.UID, "photos", album.PhotoCount)
	}
	return NewPhotoPrismSink(pp, albumUID), nil
}

// Save uploads path and processes it into the album. The returned location
// is the album UID (or "library" when none).
func (s *PhotoPrismSink) Save(ctx context.Context, path string) (string, error) {
	token, err := s.client.UploadFile(ctx, path)
	if err != nil {
		return "", classifyRemote(err)
	}

	var albums []string
	if s.albumUID != "" {
		albums = []string{s.albumUID}
	}
	if err := s.client.ProcessUpload(ctx, token, albums); err != nil {
		return "", classifyRemote(err)
	}

	location := s.albumUID
	if location == "" {
		location = "library"
	}
	slog.Info("uploaded to PhotoPrism", "album", location, "token", token)
	return location, nil
}

// Close logs out of PhotoPrism when the client holds a session.
func (s *PhotoPrismSink) Close(ctx context.Context) error {
	if l, ok := s.client.(interface{ Logout(context.Context) error }); ok {
		return l.Logout(ctx)
	}
	return nil
}

func classifyRemote(err error) error {
	if photoprism.IsPermissionError(err) {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}
