package objectstore

import (
	"fmt"
	"strings"
)

// Config holds S3-compatible object storage settings for profile images.
// Object storage is optional; it is disabled when Bucket is empty.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool

	// PublicBaseURL prefixes object keys in the URLs stored on the user.
	// When empty the URL is derived from the endpoint or the AWS host.
	PublicBaseURL string
	KeyPrefix     string
}

// Enabled reports whether a bucket is configured
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// Validate checks an enabled configuration
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Region == "" {
		return fmt.Errorf("object storage region is required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("object storage access key and secret key must be set together")
	}
	return nil
}

// objectURL returns the public URL for key
func (c Config) objectURL(key string) string {
	switch {
	case c.PublicBaseURL != "":
		return strings.TrimRight(c.PublicBaseURL, "/") + "/" + key
	case c.Endpoint != "" && c.UsePathStyle:
		return strings.TrimRight(c.Endpoint, "/") + "/" + c.Bucket + "/" + key
	case c.Endpoint != "":
		return strings.TrimRight(c.Endpoint, "/") + "/" + key
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.Bucket, c.Region, key)
	}
}
