package setup

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/rileyhilliard/dgxops/internal/config"
	"github.com/rileyhilliard/dgxops/internal/errors"
)

// KeyInfo describes a local SSH key pair.
type KeyInfo struct {
	Path       string `json:"path"`
	Type       string `json:"type"` // ed25519, ecdsa, rsa or unknown
	PublicPath string `json:"public_path"`
	HasPublic  bool   `json:"has_public"`
}

// keyTypes lists what GenerateKey makes, best first.
var keyTypes = []string{"ed25519", "ecdsa", "rsa"}

func sshDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh")
}

// DefaultKeyPaths returns the standard private key locations.
func DefaultKeyPaths() []string {
	dir := sshDir()
	if dir == "" {
		return nil
	}
	return []string{
		filepath.Join(dir, "id_ed25519"),
		filepath.Join(dir, "id_rsa"),
		filepath.Join(dir, "id_ecdsa"),
	}
}

// DefaultKeyPath is where a generated key goes.
func DefaultKeyPath() string {
	if dir := sshDir(); dir != "" {
		return filepath.Join(dir, "id_ed25519")
	}
	return "~/.ssh/id_ed25519"
}

// PublicKeyPath maps a private key path to its .pub. A .pub path is
// returned unchanged.
func PublicKeyPath(keyPath string) string {
	if strings.HasSuffix(keyPath, ".pub") {
		return keyPath
	}
	return keyPath + ".pub"
}

// FindLocalKeys returns the keys present at DefaultKeyPaths, in that order.
func FindLocalKeys() []KeyInfo {
	var keys []KeyInfo
	for _, p := range DefaultKeyPaths() {
		if k, ok := inspectKey(p); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func inspectKey(path string) (KeyInfo, bool) {
	if _, err := os.Stat(path); err != nil {
		return KeyInfo{}, false
	}
	k := KeyInfo{Path: path, Type: inferKeyType(path), PublicPath: PublicKeyPath(path)}
	_, err := os.Stat(k.PublicPath)
	k.HasPublic = err == nil
	return k, true
}

// PreferredKey picks the best type that has a .pub, then any key at all.
// It returns nil when there are none.
func PreferredKey() *KeyInfo {
	keys := FindLocalKeys()
	if len(keys) == 0 {
		return nil
	}
	best := -1
	for i, k := range keys {
		if !k.HasPublic {
			continue
		}
		rank := slices.Index(keyTypes, k.Type)
		if rank < 0 {
			continue
		}
		if best < 0 || rank < slices.Index(keyTypes, keys[best].Type) {
			best = i
		}
	}
	if best < 0 {
		best = 0
	}
	return &keys[best]
}

// EnsureKey returns the key at path or, with no path, the preferred local
// key. When there is none an ed25519 pair is generated at DefaultKeyPath
// and generated is true.
func EnsureKey(path string) (key KeyInfo, generated bool, err error) {
	if path != "" {
		path = config.ExpandTilde(path)
		k, ok := inspectKey(path)
		if !ok {
			return KeyInfo{}, false, errors.New(errors.ErrSSH,
				"No SSH key at "+path,
				"Check the path, or leave --key out to use or create ~/.ssh/id_ed25519")
		}
		return k, false, nil
	}

	if k := PreferredKey(); k != nil {
		return *k, false, nil
	}
	path = DefaultKeyPath()
	if err := GenerateKey(path, "ed25519"); err != nil {
		return KeyInfo{}, false, err
	}
	k, _ := inspectKey(path)
	return k, true, nil
}

// GenerateKey writes a new unencrypted key pair of keyType (ed25519 when
// empty) to path and path.pub. It refuses to overwrite.
func GenerateKey(path, keyType string) error {
	if keyType == "" {
		keyType = "ed25519"
	}
	if !slices.Contains(keyTypes, keyType) {
		return errors.New(errors.ErrValidation,
			"Unsupported key type: "+keyType,
			"Use ed25519 (recommended), ecdsa or rsa")
	}

	path = config.ExpandTilde(path)
	if _, err := os.Stat(path); err == nil {
		return errors.New(errors.ErrSSH,
			"Key already exists at "+path,
			"Pick another path or remove the existing key")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH,
			"Couldn't create "+filepath.Dir(path),
			"Check permissions on your home directory")
	}

	priv, err := newPrivateKey(keyType)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH, "Couldn't generate an SSH key", "")
	}
	comment := "dgxops-" + keyType
	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH, "Couldn't encode the SSH key", "")
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH, "Couldn't derive the public key", "")
	}
	pub := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))) + " " + comment + "\n"

	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH, "Couldn't write "+path, "Check disk space and permissions")
	}
	if err := os.WriteFile(PublicKeyPath(path), []byte(pub), 0o644); err != nil {
		os.Remove(path) //nolint:errcheck // don't leave half a pair
		return errors.WrapWithCode(err, errors.ErrSSH, "Couldn't write "+PublicKeyPath(path), "Check disk space and permissions")
	}
	return nil
}

func newPrivateKey(keyType string) (crypto.PrivateKey, error) {
	switch keyType {
	case "ecdsa":
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "rsa":
		return rsa.GenerateKey(rand.Reader, 4096)
	default:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	}
}

func inferKeyType(path string) string {
	base := filepath.Base(path)
	for _, t := range keyTypes {
		if strings.Contains(base, t) {
			return t
		}
	}
	return "unknown"
}

// ReadPublicKey returns a public key file's single line.
func ReadPublicKey(pubPath string) (string, error) {
	data, err := os.ReadFile(pubPath)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't read public key %s", pubPath),
			"Check the file exists and is readable")
	}
	return strings.TrimSpace(string(data)), nil
}
