package credential

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/golang-jwt/jwt"
	"github.com/labstack/gommon/log"
	"github.com/perch-social/satchel/internal/boot"
	"github.com/perch-social/satchel/internal/model"
	"github.com/rakutentech/jwk-go/jwk"
)

// Manager loads the bearer token the sync worker presents on every remote
// call. The token is written by the login flow; when an issuer JWK is
// configured the token must be a JWT with a valid ES256 signature and an
// unexpired exp claim, otherwise any non-empty token is accepted as opaque.
type Manager struct {
	tokenPath string
	publicKey *ecdsa.PublicKey

	mu      sync.RWMutex
	token   string
	watcher *fsnotify.Watcher
}

func New(config *boot.Config) (*Manager, error) {
	m := &Manager{
		tokenPath: config.Remote.TokenPath,
	}

	if config.Remote.JWKPath != "" {
		keyData, err := os.ReadFile(config.Remote.JWKPath)
		if err != nil {
			return nil, fmt.Errorf("reading JWK: %w", err)
		}
		keySpec, err := jwk.Parse(string(keyData))
		if err != nil {
			return nil, fmt.Errorf("parsing JWK: %w", err)
		}
		publicKey, ok := keySpec.Key.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("JWK is not an ECDSA public key")
		}
		m.publicKey = publicKey
	}

	m.reload()

	return m, nil
}

// Token returns the current bearer token or ErrorNoCredential.
func (m *Manager) Token() (string, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if token == "" {
		return "", model.ErrorNoCredential
	}

	if m.publicKey != nil {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.publicKey, nil
		})
		if err != nil {
			return "", fmt.Errorf("%w: %s", model.ErrorNoCredential, err.Error())
		}
		if !parsed.Valid {
			return "", model.ErrorNoCredential
		}
	}

	return token, nil
}

func (m *Manager) reload() {
	data, err := os.ReadFile(m.tokenPath)
	if err != nil {
		m.mu.Lock()
		m.token = ""
		m.mu.Unlock()
		return
	}
	m.mu.Lock()
	m.token = strings.TrimSpace(string(data))
	m.mu.Unlock()
}

// Watch reloads the token when the login flow rewrites the token file.
func (m *Manager) Watch() error {
	var err error

	m.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-m.watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					if path.Base(event.Name) == path.Base(m.tokenPath) {
						log.Infof("credential file changed: %s", event.Name)
						m.reload()
					}
				}
			case err, ok := <-m.watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("watcher: %+v", err)
			}
		}
	}()

	if err := m.watcher.Add(path.Dir(m.tokenPath)); err != nil {
		return fmt.Errorf("watching token directory: %w", err)
	}

	return nil
}

func (m *Manager) Close() {
	if m.watcher != nil {
		m.watcher.Close()
	}
}
