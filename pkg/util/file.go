package util

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

var nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// MaxFilenameTagLength is how much of a prompt survives into a filename
const MaxFilenameTagLength = 50

/**
* Replaces every character outside [a-zA-Z0-9] with an underscore and truncates the result
* @param tag string the prompt or label to sanitize
* @return string a filesystem safe tag of at most MaxFilenameTagLength characters
 */
func SanitizeFilenameTag(tag string) string {
	s := nonAlphaNumeric.ReplaceAllString(tag, "_")
	if len(s) > MaxFilenameTagLength {
		s = s[:MaxFilenameTagLength]
	}
	return s
}

// WriteTimestampedImage writes data to dir/<sanitized tag>_<unix ms>.png and returns the path.
// If a file with that name already exists the timestamp is bumped until one doesn't.
func WriteTimestampedImage(dir, tag string, data []byte, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory %s: %w", dir, err)
	}
	base := SanitizeFilenameTag(tag)
	ms := now.UnixMilli()
	for {
		path := filepath.Join(dir, base+"_"+strconv.FormatInt(ms, 10)+".png")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if os.IsExist(err) {
			ms++
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create image file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to write image file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close image file: %w", err)
		}
		return path, nil
	}
}

// ReadNonEmptyFile returns the content of a regular, non-empty file
func ReadNonEmptyFile(path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("image file not found at path: %s", path)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty or invalid image buffer for file: %s", path)
	}
	return data, nil
}

// RemoveDirContents deletes every entry directly inside dir.
// It carries on past failures and returns them all.
func RemoveDirContents(dir string) []error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []error{err}
	}
	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

/**
* Determine the mime type of a raster image from its magic number
* @param content []byte raw image bytes
* @return string the mime type such as image/png, image/jpeg etc
* @return error if the format is not recognised
 */
func DetermineImageMIMEType(content []byte) (string, error) {
	if len(content) < 4 {
		return "", fmt.Errorf("content too short to determine file type")
	}
	switch {
	// PNG signature: 89 50 4E 47 (‰PNG)
	case bytes.HasPrefix(content, []byte{0x89, 0x50, 0x4E, 0x47}):
		return "image/png", nil
	// GIF signature: 47 49 46 38 (GIF8)
	case bytes.HasPrefix(content, []byte("GIF8")):
		return "image/gif", nil
	// JPEG signature: FF D8 FF
	case bytes.HasPrefix(content, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg", nil
	// WebP: RIFF....WEBP
	case len(content) >= 12 && bytes.HasPrefix(content, []byte("RIFF")) && string(content[8:12]) == "WEBP":
		return "image/webp", nil
	}
	return "", fmt.Errorf("couldn't determine the image type")
}
