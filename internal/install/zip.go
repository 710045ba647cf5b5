package install

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/csound-plugins/risset/internal/errors"
)

func isGlobPattern(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// extractMatching extracts archive members matching the given patterns
// into destDir and returns their local paths. A pattern is either a
// concrete member path or a glob; a glob matching a folder entry
// extracts the whole folder.
func extractMatching(zipPath string, patterns []string, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "could not open archive %s", zipPath)
	}
	defer r.Close()

	var out []string
	for _, pattern := range patterns {
		if !isGlobPattern(pattern) {
			f := findMember(&r.Reader, pattern)
			if f == nil {
				return nil, errors.Newf(errors.KindIO, "no member %s in archive %s", pattern, zipPath)
			}
			extracted, err := extractMember(f, destDir)
			if err != nil {
				return nil, err
			}
			out = append(out, extracted)
			continue
		}
		for _, f := range r.File {
			name := f.Name
			if strings.HasSuffix(name, "/") {
				folder := strings.TrimSuffix(name, "/")
				if ok, _ := path.Match(pattern, folder); ok {
					extracted, err := extractFolder(&r.Reader, folder, destDir)
					if err != nil {
						return nil, err
					}
					out = append(out, extracted)
				}
				continue
			}
			ok, err := path.Match(pattern, name)
			if err != nil {
				return nil, errors.Wrapf(err, errors.KindInvalidArgument, "invalid pattern %s", pattern)
			}
			if ok {
				extracted, err := extractMember(f, destDir)
				if err != nil {
					return nil, err
				}
				out = append(out, extracted)
			}
		}
	}
	return out, nil
}

// extractArchiveFile extracts a single member from the archive and
// returns its local path.
func extractArchiveFile(zipPath, member, destDir string) (string, error) {
	out, err := extractMatching(zipPath, []string{member}, destDir)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

func findMember(r *zip.Reader, name string) *zip.File {
	for _, f := range r.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// extractFolder extracts every member below folder into destDir, so that
// destDir ends up holding the folder itself. A pre-existing destination
// folder is replaced.
func extractFolder(r *zip.Reader, folder, destDir string) (string, error) {
	dest := filepath.Join(destDir, path.Base(folder))
	if err := os.RemoveAll(dest); err != nil {
		return "", errors.Wrapf(err, errors.KindIO, "could not replace %s", dest)
	}
	prefix := folder + "/"
	parent := path.Dir(folder)
	found := false
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, prefix) {
			continue
		}
		found = true
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		rel := f.Name
		if parent != "." {
			rel = strings.TrimPrefix(f.Name, parent+"/")
		}
		if _, err := extractMemberAs(f, destDir, rel); err != nil {
			return "", err
		}
	}
	if !found {
		return "", errors.Newf(errors.KindIO, "folder %s is empty or missing in the archive", folder)
	}
	return dest, nil
}

func extractMember(f *zip.File, destDir string) (string, error) {
	return extractMemberAs(f, destDir, f.Name)
}

func extractMemberAs(f *zip.File, destDir, rel string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", errors.Newf(errors.KindSchema, "unsafe path %s in archive", f.Name)
	}
	dest := filepath.Join(destDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errors.Wrapf(err, errors.KindIO, "could not create %s", filepath.Dir(dest))
	}
	rc, err := f.Open()
	if err != nil {
		return "", errors.Wrapf(err, errors.KindIO, "could not read %s from archive", f.Name)
	}
	defer rc.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindIO, "could not create %s", dest)
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return "", errors.Wrapf(err, errors.KindIO, "could not extract %s", f.Name)
	}
	return dest, nil
}
