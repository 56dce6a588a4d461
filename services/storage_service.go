package services

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// StorageService wraps Cloudinary for photo storage. Upload returns a
// durable URL plus the public ID used as the deletion handle.
type StorageService struct {
	cld *cloudinary.Cloudinary
}

func NewStorageService() (*StorageService, error) {
	cld, err := cloudinary.NewFromURL(os.Getenv("CLOUDINARY_URL"))
	if err != nil {
		return nil, fmt.Errorf("cloudinary configuration error: %w", err)
	}
	return &StorageService{cld: cld}, nil
}

// UploadPhoto stores a gallery photo and returns (url, publicID).
func (s *StorageService) UploadPhoto(ctx context.Context, file io.Reader, publicID string) (string, string, error) {
	result, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:         "kindled/photos",
		PublicID:       publicID,
		Transformation: "c_limit,w_800,h_800,q_auto",
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: photo upload failed: %v", ErrUpstream, err)
	}
	return result.SecureURL, result.PublicID, nil
}

// DeletePhoto removes a stored photo. Deleting an already-deleted handle is
// not an error.
func (s *StorageService) DeletePhoto(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	result, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("%w: photo delete failed: %v", ErrUpstream, err)
	}
	if result.Result != "ok" && result.Result != "not found" {
		return fmt.Errorf("%w: photo delete returned %q", ErrUpstream, result.Result)
	}
	return nil
}
