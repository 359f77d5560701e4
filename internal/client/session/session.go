package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

var ErrNotFound = errors.New("session: not found")

// Session is what a profile remembers between runs: where to connect and the
// token the auth service issued.
type Session struct {
	ServerURL string    `json:"server_url"`
	APIURL    string    `json:"api_url"`
	Token     string    `json:"token"`
	SavedAt   time.Time `json:"saved_at"`
}

func Dir(profile string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "chatsync", profile), nil
}

func machineSecret() []byte {
	paths := []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}
	var id string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err == nil {
			id = strings.TrimSpace(string(data))
			break
		}
	}

	if id == "" {
		hostname, _ := os.Hostname()
		id = hostname
	}
	return []byte(id)
}

// deriveKey binds the file key to both the machine and the profile.
func deriveKey(profile string) ([]byte, error) {
	r := hkdf.New(sha256.New, machineSecret(), []byte("chatsync-session-v1"), []byte(profile))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func encrypt(key, data []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func decrypt(key []byte, encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// Load reads the profile's session. Plain JSON files written by hand are
// accepted once and rewritten encrypted.
func Load(profile string) (*Session, error) {
	dir, err := Dir(profile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "session.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	key, err := deriveKey(profile)
	if err != nil {
		return nil, err
	}

	var s Session
	decrypted, err := decrypt(key, string(data))
	if err != nil {
		if jsonErr := json.Unmarshal(data, &s); jsonErr != nil {
			return nil, fmt.Errorf("session: unreadable: %w", err)
		}
		if err := Save(profile, s); err != nil {
			return nil, fmt.Errorf("session: migrate: %w", err)
		}
		return &s, nil
	}

	if err := json.Unmarshal(decrypted, &s); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &s, nil
}

func Save(profile string, s Session) error {
	dir, err := Dir(profile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	key, err := deriveKey(profile)
	if err != nil {
		return err
	}
	encrypted, err := encrypt(key, data)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "session.json"), []byte(encrypted), 0600)
}

func Clear(profile string) error {
	dir, err := Dir(profile)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, "session.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
