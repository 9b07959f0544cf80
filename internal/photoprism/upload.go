package photoprism

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var errNoUserUID = errors.New("user UID not available")

// UploadFile stores a file in the user's upload folder and returns the
// token that ProcessUpload imports it with.
func (pp *PhotoPrism) UploadFile(ctx context.Context, filePath string) (string, error) {
	if pp.userUID == "" {
		return "", errNoUserUID
	}

	file, err := os.Open(filePath) //nolint:gosec // composite output path
	if err != nil {
		return "", fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", filepath.Base(filePath))
	if err != nil {
		return "", fmt.Errorf("could not create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("could not copy file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("could not close writer: %w", err)
	}

	token := strconv.FormatInt(time.Now().UnixNano(), 10)
	resp, err := pp.do(ctx, http.MethodPost, &body, writer.FormDataContentType(), "users", pp.userUID, "upload", token)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	resp.Body.Close()
	return token, nil
}

// ProcessUpload imports the files uploaded under token, adding them to
// albumUIDs.
func (pp *PhotoPrism) ProcessUpload(ctx context.Context, token string, albumUIDs []string) error {
	if pp.userUID == "" {
		return errNoUserUID
	}
	options := struct {
		Albums []string `json:"albums,omitempty"`
	}{Albums: albumUIDs}
	return sendJSON(ctx, pp, http.MethodPut, options, "users", pp.userUID, "upload", token)
}
