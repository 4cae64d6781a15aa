package capability

import (
	"bytes"
	"os"
	"path/filepath"
)

// grantedMarker is the content of a grant file that grants full access.
const grantedMarker = "granted"

// Static returns a Provider that always answers v.
func Static(v bool) Provider {
	return ProviderFunc(func() bool { return v })
}

// GrantFileProvider reports full access when the marker file at Path exists
// and contains "granted". The user toggles the grant outside the keyboard,
// so the file is written by the host side, never by the extension.
type GrantFileProvider struct {
	Path string
}

// HasFullAccess reads the marker. Any error means no full access.
func (p GrantFileProvider) HasFullAccess() bool {
	if p.Path == "" {
		return false
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return false
	}
	return string(bytes.TrimSpace(data)) == grantedMarker
}

// Grant writes the marker at path.
func Grant(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(grantedMarker+"\n"), 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Revoke removes the marker at path. Revoking twice is not an error.
func Revoke(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
