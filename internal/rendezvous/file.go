package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileChannel backs the mailbox with a directory on a shared mount
// (typically NFS attached by the provisioning layer). Writes go through a
// temp file and rename so readers never observe a partially written
// credential from this writer; a torn write by the transport itself is
// caught by the reader-side grammar validation.
type FileChannel struct {
	root string
}

// NewFileChannel returns a channel rooted at the shared mount path.
func NewFileChannel(mountPath string) *FileChannel {
	return &FileChannel{root: mountPath}
}

// Publish implements Channel. The epoch artifact records the publish count
// and time so a stale credential can be recognized by operators; readers do
// not enforce it.
func (c *FileChannel) Publish(ctx context.Context, joinCommand, clusterInfo string) error {
	if err := c.available(); err != nil {
		return err
	}

	previous, _ := os.ReadFile(filepath.Join(c.root, EpochArtifact))
	artifacts := map[string]string{
		JoinCommandArtifact: joinCommand + "\n",
		ClusterInfoArtifact: clusterInfo + "\n",
		EpochArtifact:       nextEpoch(string(previous)) + "\n",
	}
	for name, content := range artifacts {
		if err := c.writeAtomic(name, content); err != nil {
			return &UnavailableError{Backend: "file", Err: err}
		}
	}
	return nil
}

// TryRead implements Channel.
func (c *FileChannel) TryRead(ctx context.Context) (string, bool, error) {
	if err := c.available(); err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(filepath.Join(c.root, JoinCommandArtifact))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, &UnavailableError{Backend: "file", Err: err}
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

func (c *FileChannel) available() error {
	info, err := os.Stat(c.root)
	if err != nil {
		return &UnavailableError{Backend: "file", Err: fmt.Errorf("shared mount %s: %w", c.root, err)}
	}
	if !info.IsDir() {
		return &UnavailableError{Backend: "file", Err: fmt.Errorf("shared mount %s is not a directory", c.root)}
	}
	return nil
}

func (c *FileChannel) writeAtomic(name, content string) error {
	tmp, err := os.CreateTemp(c.root, name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filepath.Join(c.root, name))
}
