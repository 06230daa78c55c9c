package secure

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
)

// LoadDocument reads and decrypts a JSON document into out. A missing file,
// an unreadable envelope or unparsable JSON leaves out untouched so callers
// start from their default value; decode problems are logged loudly because
// they usually mean a wrong master key or a corrupted file.
func LoadDocument(path string, key []byte, out interface{}) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("secure: read %s: %v", path, err)
		}
		return
	}
	if len(data) == 0 {
		return
	}

	plaintext, err := Decrypt(data, key)
	if err != nil {
		log.Printf("secure: cannot decrypt %s, falling back to defaults: %v", path, err)
		return
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		log.Printf("secure: invalid JSON in %s, falling back to defaults: %v", path, err)
	}
}

// SaveDocument encrypts v as JSON and writes it atomically.
func SaveDocument(path string, key []byte, v interface{}) error {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return err
	}
	envelope, err := Encrypt(plaintext, key)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, envelope)
}

// WriteFileAtomic writes data through a temp file in the target directory and
// renames it into place, so a crash never leaves a truncated document.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// EncryptFile seals the file at path in place under the given secret.
func EncryptFile(path, secret string) error {
	key, err := NormalizeKey(secret)
	if err != nil {
		return err
	}
	plaintext, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	envelope, err := Encrypt(plaintext, key)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, envelope)
}

// RotateFileKey reseals the file at path under newSecret. It fails without
// touching the file if oldSecret does not authenticate the current envelope.
func RotateFileKey(path, oldSecret, newSecret string) error {
	plaintext, err := DecryptFile(path, oldSecret)
	if err != nil {
		return err
	}
	newKey, err := NormalizeKey(newSecret)
	if err != nil {
		return err
	}
	envelope, err := Encrypt(plaintext, newKey)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, envelope)
}

// DecryptFile returns the plaintext of a sealed file without modifying it.
func DecryptFile(path, secret string) ([]byte, error) {
	key, err := NormalizeKey(secret)
	if err != nil {
		return nil, err
	}
	envelope, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decrypt(envelope, key)
}
