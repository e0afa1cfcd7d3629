// Package bundle unpacks and packs lens archives.
// A lens archive is a zip file with a .lns or .zip extension holding an
// optional lens.json descriptor and textures/ and shaders/ directories.
package bundle

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Extensions lists the recognized archive extensions in discovery order.
var Extensions = []string{".lns", ".zip"}

var IGNORE_FILES = regexp.MustCompile(`^(|.*/)((#|\.#)[^/]*|[^/]*~)$`)

// ErrPackageNotFound is returned when the archive path does not exist.
var ErrPackageNotFound = errors.New("lens package not found")

// UnsafePathError reports an archive entry that would land outside the
// extraction directory.
type UnsafePathError struct {
	Entry  string
	Target string // symlink target, empty for regular entries
}

func (e *UnsafePathError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("archive symlink escapes extraction directory: %s -> %s", e.Entry, e.Target)
	}
	return fmt.Sprintf("archive entry escapes extraction directory: %s", e.Entry)
}

// Package is one lens archive being converted.
// Root is owned by a single conversion and never shared.
type Package struct {
	Name        string // archive base name without extension
	ArchivePath string
	Root        string // extraction directory
}

// PackageName derives the package name from an archive path.
func PackageName(archivePath string) string {
	base := filepath.Base(archivePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsArchive reports whether the path has a recognized archive extension.
func IsArchive(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Extract unpacks archivePath into outputRoot/<name> and returns the package.
// Every entry is checked before anything is written, so an unsafe archive
// leaves no partial output behind.
func Extract(archivePath, outputRoot string) (*Package, error) {
	if _, err := os.Stat(archivePath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, archivePath)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", archivePath, err)
	}

	// With GODEBUG=zipinsecurepath=0 the reader comes back alongside
	// ErrInsecurePath; checkEntry reports the offending entry instead.
	zipReader, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer zipReader.Close()

	pkg := &Package{
		Name:        PackageName(archivePath),
		ArchivePath: archivePath,
		Root:        filepath.Join(outputRoot, PackageName(archivePath)),
	}

	absRoot, err := filepath.Abs(pkg.Root)
	if err != nil {
		return nil, err
	}
	symlinks := symlinkEntries(zipReader.File)
	for _, f := range zipReader.File {
		if err := checkEntry(f, absRoot, symlinks); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(pkg.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", pkg.Root, err)
	}
	root, err := os.OpenRoot(pkg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", pkg.Root, err)
	}
	defer root.Close()
	for _, f := range zipReader.File {
		if err := extractZipFile(f, root); err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}

	return pkg, nil
}

// symlinkEntries returns the cleaned names of the archive's symlink entries.
func symlinkEntries(files []*zip.File) map[string]bool {
	links := map[string]bool{}
	for _, f := range files {
		if f.Mode()&os.ModeSymlink != 0 {
			links[path.Clean(f.Name)] = true
		}
	}
	return links
}

// checkEntry validates an entry name and, for symlinks, its target.
// Neither may climb above the root or pass through another symlink entry,
// since the links are created on disk before later entries are written.
func checkEntry(f *zip.File, absRoot string, symlinks map[string]bool) error {
	name := filepath.FromSlash(f.Name)
	if filepath.IsAbs(name) || strings.HasPrefix(f.Name, "/") || filepath.VolumeName(name) != "" {
		return &UnsafePathError{Entry: f.Name}
	}
	absTarget := filepath.Join(absRoot, name)
	if !isWithinDir(absTarget, absRoot) || !walkArchivePath(nil, f.Name, symlinks) {
		return &UnsafePathError{Entry: f.Name}
	}
	if f.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	link := filepath.ToSlash(readSymlinkTarget(f))
	if filepath.IsAbs(filepath.FromSlash(link)) || strings.HasPrefix(link, "/") {
		return &UnsafePathError{Entry: f.Name, Target: link}
	}
	resolved := filepath.Join(filepath.Dir(absTarget), filepath.FromSlash(link))
	if !isWithinDir(resolved, absRoot) {
		return &UnsafePathError{Entry: f.Name, Target: link}
	}
	dir := path.Dir(path.Clean(f.Name))
	var base []string
	if dir != "." {
		base = strings.Split(dir, "/")
	}
	if !walkArchivePath(base, link, symlinks) {
		return &UnsafePathError{Entry: f.Name, Target: link}
	}
	return nil
}

// walkArchivePath resolves the slash path rel from the directory base one
// element at a time. It reports false when the walk climbs above the root
// or steps through a symlink entry before the last element.
func walkArchivePath(base []string, rel string, symlinks map[string]bool) bool {
	parts := append([]string(nil), base...)
	elems := strings.Split(rel, "/")
	for i, elem := range elems {
		switch elem {
		case "", ".":
			continue
		case "..":
			if len(parts) == 0 {
				return false
			}
			parts = parts[:len(parts)-1]
			continue
		}
		parts = append(parts, elem)
		if i < len(elems)-1 && symlinks[strings.Join(parts, "/")] {
			return false
		}
	}
	return true
}

// extractZipFile extracts a single file, directory or symlink from ZIP.
// All writes go through root, which refuses to follow links out of it.
func extractZipFile(f *zip.File, root *os.Root) error {
	if filepath.IsAbs(filepath.FromSlash(f.Name)) || strings.HasPrefix(f.Name, "/") {
		return &UnsafePathError{Entry: f.Name}
	}
	clean := path.Clean(f.Name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return &UnsafePathError{Entry: f.Name}
	}
	targetPath := filepath.FromSlash(clean)

	if f.FileInfo().IsDir() {
		return root.MkdirAll(targetPath, 0755)
	}

	if dir := filepath.Dir(targetPath); dir != "." {
		if err := root.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if f.Mode()&os.ModeSymlink != 0 {
		return extractSymlink(f, root, clean)
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	outFile, err := root.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer outFile.Close()

	_, err = io.Copy(outFile, rc)
	return err
}

// extractSymlink extracts a symlink from ZIP. name is the cleaned slash path.
func extractSymlink(f *zip.File, root *os.Root, name string) error {
	linkTarget := filepath.FromSlash(readSymlinkTarget(f))
	if filepath.IsAbs(linkTarget) {
		return &UnsafePathError{Entry: f.Name, Target: linkTarget}
	}
	resolved := path.Clean(path.Join(path.Dir(name), filepath.ToSlash(linkTarget)))
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return &UnsafePathError{Entry: f.Name, Target: linkTarget}
	}

	targetPath := filepath.FromSlash(name)
	root.Remove(targetPath)
	return root.Symlink(linkTarget, targetPath)
}

// isWithinDir checks if absPath is within absDir
func isWithinDir(absPath, absDir string) bool {
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Pack writes the contents of sourceDir into a new lens archive.
func Pack(sourceDir, archivePath string) error {
	outFile, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer outFile.Close()

	zipWriter := zip.NewWriter(outFile)
	if err := addDirToZip(zipWriter, sourceDir, ""); err != nil {
		zipWriter.Close()
		return fmt.Errorf("failed to add files to archive: %w", err)
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return outFile.Close()
}

// addDirToZip recursively adds directory contents to ZIP, preserving relative symlinks
func addDirToZip(zipWriter *zip.Writer, sourceDir, basePath string) error {
	absSourceDir, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path of source: %w", err)
	}

	return filepath.Walk(sourceDir, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || IGNORE_FILES.MatchString(filepath.ToSlash(filePath)) {
			return nil
		}

		relPath, err := filepath.Rel(sourceDir, filePath)
		if err != nil {
			return err
		}
		zipPath := filepath.ToSlash(filepath.Join(basePath, relPath))

		linfo, err := os.Lstat(filePath)
		if err != nil {
			return err
		}

		if linfo.Mode()&os.ModeSymlink != 0 {
			return addSymlinkToZip(zipWriter, filePath, zipPath, absSourceDir)
		}

		return addRegularFileToZip(zipWriter, filePath, zipPath, linfo.Mode())
	})
}

// addRegularFileToZip adds a regular file to the ZIP archive with mode preservation
func addRegularFileToZip(zipWriter *zip.Writer, filePath, zipPath string, mode fs.FileMode) error {
	header := &zip.FileHeader{
		Name:   zipPath,
		Method: zip.Deflate,
	}
	header.SetMode(mode)

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(writer, file)
	return err
}

// addSymlinkToZip adds a symlink to the ZIP archive
func addSymlinkToZip(zipWriter *zip.Writer, filePath, zipPath, absSourceDir string) error {
	target, err := os.Readlink(filePath)
	if err != nil {
		return fmt.Errorf("failed to read symlink %s: %w", filePath, err)
	}

	if filepath.IsAbs(target) {
		return fmt.Errorf("absolute symlink not allowed: %s -> %s", filePath, target)
	}

	if err := validateSymlinkTarget(filePath, target, absSourceDir); err != nil {
		return err
	}

	header := &zip.FileHeader{
		Name:   zipPath,
		Method: zip.Store,
	}
	header.SetMode(os.ModeSymlink | 0777)

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = writer.Write([]byte(filepath.ToSlash(target)))
	return err
}

// validateSymlinkTarget ensures a symlink target stays within the source root
func validateSymlinkTarget(symlinkPath, target, absSourceDir string) error {
	resolvedTarget := filepath.Join(filepath.Dir(symlinkPath), target)

	absTarget, err := filepath.Abs(resolvedTarget)
	if err != nil {
		return fmt.Errorf("failed to resolve symlink target: %w", err)
	}

	if !isWithinDir(absTarget, absSourceDir) {
		return fmt.Errorf("symlink escapes lens directory: %s -> %s (resolves to %s)", symlinkPath, target, absTarget)
	}

	return nil
}

// FileInfo contains metadata about an archived file.
type FileInfo struct {
	Name          string      `json:"name" yaml:"name"`                                         // File path within archive
	Size          uint64      `json:"size" yaml:"size"`                                         // Uncompressed size
	IsSymlink     bool        `json:"symlink,omitempty" yaml:"symlink,omitempty"`               // True if this is a symlink
	SymlinkTarget string      `json:"symlinkTarget,omitempty" yaml:"symlink_target,omitempty"` // Target path if symlink
	Mode          fs.FileMode `json:"mode" yaml:"mode"`                                         // File mode (permissions)
}

// List returns the entries of a lens archive without extracting it.
func List(archivePath string) ([]FileInfo, error) {
	zipReader, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, archivePath)
		}
		return nil, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer zipReader.Close()

	return listFilesWithInfoFromReader(&zipReader.Reader), nil
}

// ReadFile returns the contents of one regular file entry. A missing entry
// yields an error matching fs.ErrNotExist.
func ReadFile(archivePath, name string) ([]byte, error) {
	zipReader, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, archivePath)
		}
		return nil, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer zipReader.Close()

	for _, f := range zipReader.File {
		if f.Name != name || f.FileInfo().IsDir() || f.Mode()&os.ModeSymlink != 0 {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s in %s: %w", name, archivePath, fs.ErrNotExist)
}

// listFilesWithInfoFromReader extracts file info from a zip.Reader.
func listFilesWithInfoFromReader(zipReader *zip.Reader) []FileInfo {
	files := make([]FileInfo, 0, len(zipReader.File))
	for _, f := range zipReader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		info := FileInfo{Name: f.Name, Size: f.UncompressedSize64, Mode: f.Mode()}
		if f.Mode()&os.ModeSymlink != 0 {
			info.IsSymlink = true
			info.SymlinkTarget = readSymlinkTarget(f)
		}
		files = append(files, info)
	}
	return files
}

// readSymlinkTarget reads the target path from a symlink zip entry.
// Returns empty string if the target cannot be read.
func readSymlinkTarget(f *zip.File) string {
	rc, err := f.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()
	targetBytes, err := io.ReadAll(rc)
	if err != nil {
		return ""
	}
	return string(targetBytes)
}
