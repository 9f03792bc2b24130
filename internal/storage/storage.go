// Package storage turns stored content locations into URLs a player can
// fetch.
package storage

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// Locator resolves a content location. Absolute http(s) URLs are returned
// unchanged; anything else is treated as an object key.
type Locator interface {
	Locate(location string) (string, error)
}

type LocalLocator struct {
	baseURL string
}

// NewLocalLocator serves keys relative to baseURL, typically the static
// file route of this server.
func NewLocalLocator(baseURL string) *LocalLocator {
	return &LocalLocator{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (l *LocalLocator) Locate(location string) (string, error) {
	if absolute(location) {
		return location, nil
	}
	key := strings.TrimPrefix(location, "/")
	if l.baseURL == "" {
		return "/" + key, nil
	}
	return l.baseURL + "/" + key, nil
}

type SpacesLocator struct {
	client     *s3.S3
	bucket     string
	cdnURL     string
	presignTTL time.Duration
}

// NewSpacesLocator resolves keys against a DigitalOcean Spaces bucket. With
// a CDN URL keys map onto it directly; without one a presigned GET is
// issued.
func NewSpacesLocator(endpoint, region, bucket, cdnURL, accessKey, secretKey string) (*SpacesLocator, error) {
	config := &aws.Config{
		Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
		Endpoint:         aws.String(endpoint),
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(false),
	}

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SpacesLocator{
		client:     s3.New(sess),
		bucket:     bucket,
		cdnURL:     strings.TrimSuffix(cdnURL, "/"),
		presignTTL: time.Hour,
	}, nil
}

func (s *SpacesLocator) Locate(location string) (string, error) {
	if absolute(location) {
		return location, nil
	}
	key := strings.TrimPrefix(location, "/")
	if s.cdnURL != "" {
		return s.cdnURL + "/" + key, nil
	}
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	signed, err := req.Presign(s.presignTTL)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return signed, nil
}

func absolute(location string) bool {
	u, err := url.Parse(location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ContentType guesses the MIME type a receiver needs from the file name.
func ContentType(filename string) string {
	if u, err := url.Parse(filename); err == nil && u.Path != "" {
		filename = u.Path
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".avi":
		return "video/x-msvideo"
	case ".mov":
		return "video/quicktime"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".aac":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
