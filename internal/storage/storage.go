package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"projectmarket/internal/domain"
)

// PathPrefix is the URL prefix under which stored artifacts are served.
const PathPrefix = "/uploads/"

const sniffLen = 3072

// ArchiveTypes is the content allow list used when a policy names none.
var ArchiveTypes = []string{"application/zip"}

// Policy is the accepted-format policy for uploaded artifacts.
type Policy struct {
	MaxBytes   int64
	Extensions []string
	MIMETypes  []string
}

// Upload is an artifact as received from a client.
type Upload struct {
	Name         string
	DeclaredType string
	Body         io.Reader
}

// Stored describes an artifact written to the store.
type Stored struct {
	Name       string `json:"name"`
	StoredName string `json:"stored_name"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	MIME       string `json:"mime"`
}

// Accepts reports whether the file name or declared type is on the allow list.
func (p Policy) Accepts(name, declared string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range p.Extensions {
		if ext != "" && strings.EqualFold(ext, allowed) {
			return true
		}
	}
	declared = strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	for _, allowed := range p.MIMETypes {
		if declared != "" && strings.EqualFold(declared, allowed) {
			return true
		}
	}
	return false
}

// Sniff checks that the leading bytes are an archive and returns the detected type.
func (p Policy) Sniff(head []byte) (string, error) {
	if len(head) == 0 {
		return "", domain.Validationf("file is empty")
	}
	types := p.MIMETypes
	if len(types) == 0 {
		types = ArchiveTypes
	}
	m := mimetype.Detect(head)
	for cur := m; cur != nil; cur = cur.Parent() {
		for _, allowed := range types {
			if cur.Is(allowed) {
				return m.String(), nil
			}
		}
	}
	return "", domain.Validationf("file content is %s, expected an archive", m.String())
}

func (p Policy) tooLarge() error {
	return domain.Validationf("file exceeds the %s upload limit", humanize.IBytes(uint64(p.MaxBytes)))
}

// Store writes artifacts under Dir.
type Store struct {
	Dir    string
	Policy Policy
}

func New(dir string, policy Policy) (Store, error) {
	if dir == "" {
		return Store{}, errors.New("upload dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Store{}, fmt.Errorf("create upload dir: %w", err)
	}
	return Store{Dir: dir, Policy: policy}, nil
}

// Save validates up against the policy and streams it to disk. Nothing is left
// on disk when validation fails.
func (s Store) Save(up Upload) (Stored, error) {
	name := cleanName(up.Name)
	if name == "" {
		return Stored{}, domain.Validationf("file name required")
	}
	if !s.Policy.Accepts(name, up.DeclaredType) {
		return Stored{}, domain.Validationf("only %s archives are accepted", strings.Join(s.Policy.Extensions, ", "))
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(up.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Stored{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	detected, err := s.Policy.Sniff(head)
	if err != nil {
		return Stored{}, err
	}

	stored := uuid.New().String() + "-" + name
	full := filepath.Join(s.Dir, stored)
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Stored{}, fmt.Errorf("create artifact: %w", err)
	}
	body := io.MultiReader(bytes.NewReader(head), up.Body)
	written, err := io.Copy(f, io.LimitReader(body, s.Policy.MaxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(full)
		return Stored{}, fmt.Errorf("write artifact: %w", err)
	}
	if s.Policy.MaxBytes > 0 && written > s.Policy.MaxBytes {
		_ = os.Remove(full)
		return Stored{}, s.Policy.tooLarge()
	}
	return Stored{
		Name:       name,
		StoredName: stored,
		Path:       path.Join(PathPrefix, stored),
		Size:       written,
		MIME:       detected,
	}, nil
}

// Remove deletes a stored artifact; a missing file is not an error.
func (s Store) Remove(st Stored) error {
	if st.StoredName == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.Dir, st.StoredName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Resolve maps a served path back to a file on disk.
func (s Store) Resolve(servedPath string) (string, bool) {
	name := strings.TrimPrefix(servedPath, PathPrefix)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", false
	}
	return filepath.Join(s.Dir, name), true
}

func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == '/' {
			return -1
		}
		return r
	}, name)
}
