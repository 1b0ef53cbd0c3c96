package util

import (
	"errors"
	"io/fs"
	"os"
)

// partialSuffixes are the side files yt-dlp and youtube-dl leave next to the
// output while downloading.
var partialSuffixes = []string{"", ".part", ".ytdl"}

// RemoveArtifact deletes path and any partial download files next to it.
// Missing files are not an error, so it is safe to call more than once.
func RemoveArtifact(path string) error {
	if path == "" {
		return nil
	}
	var errs []error
	for _, s := range partialSuffixes {
		if err := os.Remove(path + s); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
