package assembly

import (
	"archive/tar"
	"path/filepath"
	"time"

	"dockwatch/fs"

	"github.com/pkg/errors"
)

// Archiver packages changed assembly entries into tar archives that can be
// pushed into a running container.
type Archiver struct {
	fs     fs.FileSystem
	outDir string
}

func NewArchiver(filesystem fs.FileSystem, outDir string) *Archiver {
	return &Archiver{
		fs:     filesystem,
		outDir: outDir,
	}
}

// PackageChangedFiles writes the change set into a tar archive, entries named
// relative to the assembly dir so they unpack in place under the container's
// base dir. Returns the archive path.
func (a *Archiver) PackageChangedFiles(set ChangeSet, targetName string) (string, error) {
	if len(set.Entries) == 0 {
		return "", errors.Errorf("no changed files to package for %s", targetName)
	}

	archivePath := filepath.Join(a.outDir, targetName+"-changed-files.tar")
	out, err := a.fs.Create(archivePath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create archive %s", archivePath)
	}
	defer out.Close()

	tw := tar.NewWriter(out)
	now := time.Now()

	for _, entry := range set.Entries {
		content, err := a.fs.ReadFile(filepath.Join(set.Dir, entry))
		if err != nil {
			return "", errors.Wrapf(err, "failed to read changed file %s", entry)
		}

		header := &tar.Header{
			Name:    filepath.ToSlash(entry),
			Mode:    0644,
			Size:    int64(len(content)),
			ModTime: now,
		}
		if err := tw.WriteHeader(header); err != nil {
			return "", errors.Wrapf(err, "failed to write archive header for %s", entry)
		}
		if _, err := tw.Write(content); err != nil {
			return "", errors.Wrapf(err, "failed to write archive entry %s", entry)
		}
	}

	if err := tw.Close(); err != nil {
		return "", errors.Wrap(err, "failed to finalize archive")
	}

	return archivePath, nil
}
