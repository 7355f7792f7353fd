package signer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("signer")

var (
	ErrKeyNotFound       = errors.New("key not found")
	ErrKeyExists         = errors.New("key already exists")
	ErrKeyInactive       = errors.New("key is inactive")
	ErrInvalidKeyID      = errors.New("invalid key id")
	ErrInvalidKeyType    = errors.New("invalid key type")
	ErrInvalidAlgorithm  = errors.New("invalid signing algorithm")
	ErrAlgorithmMismatch = errors.New("algorithm does not match key type")
	ErrInvalidData       = errors.New("invalid data")
)

// maxKeyIDLength bounds user supplied key ids
const maxKeyIDLength = 128

// KeyInfo describes a stored key without exposing key material
type KeyInfo struct {
	KeyID     string    `json:"key_id"`
	KeyType   KeyType   `json:"key_type"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// Key is a generated key pair. The private half never leaves the process.
type Key struct {
	id        string
	keyType   KeyType
	createdAt time.Time
	active    bool
	private   crypto.Signer
	publicDER []byte
}

func (k *Key) ID() string { return k.id }

func (k *Key) Type() KeyType { return k.keyType }

func (k *Key) Active() bool { return k.active }

func (k *Key) Public() crypto.PublicKey { return k.private.Public() }

// PublicKeyDER returns the public key in PKIX, ASN.1 DER form
func (k *Key) PublicKeyDER() []byte { return k.publicDER }

// Info returns the key's public description
func (k *Key) Info() KeyInfo {
	return KeyInfo{KeyID: k.id, KeyType: k.keyType, CreatedAt: k.createdAt, Active: k.active}
}

// --------------------------------------------------------------------------
// Key Manager
// --------------------------------------------------------------------------

// KeyManager keeps generated keys in memory. Keys are immutable once stored;
// changing the active flag replaces the stored entry.
type KeyManager struct {
	keys *xsync.MapOf[string, *Key]
	now  func() time.Time
}

// NewKeyManager creates an empty key manager
func NewKeyManager() *KeyManager {
	return &KeyManager{
		keys: xsync.NewMapOf[string, *Key](),
		now:  time.Now,
	}
}

// Generate creates and stores a key of type t under id. An empty id is
// replaced by a random UUID.
func (m *KeyManager) Generate(id string, t KeyType) (KeyInfo, error) {
	if !t.Valid() {
		return KeyInfo{}, fmt.Errorf("%w: %s", ErrInvalidKeyType, t)
	}
	if id == "" {
		id = uuid.NewString()
	}
	if err := validateKeyID(id); err != nil {
		return KeyInfo{}, err
	}
	if _, ok := m.keys.Load(id); ok {
		return KeyInfo{}, fmt.Errorf("%w: %s", ErrKeyExists, id)
	}

	start := m.now()
	private, err := generatePrivateKey(t)
	if err != nil {
		return KeyInfo{}, fmt.Errorf("generating %s key: %w", t, err)
	}
	der, err := x509.MarshalPKIXPublicKey(private.Public())
	if err != nil {
		return KeyInfo{}, fmt.Errorf("encoding %s public key: %w", t, err)
	}

	key := &Key{
		id:        id,
		keyType:   t,
		createdAt: m.now(),
		active:    true,
		private:   private,
		publicDER: der,
	}

	// a concurrent Generate for the same id may have won the race
	if _, loaded := m.keys.LoadOrStore(id, key); loaded {
		return KeyInfo{}, fmt.Errorf("%w: %s", ErrKeyExists, id)
	}

	Logger.Infof("Generated %s key %s in %s", t, id, m.now().Sub(start))
	return key.Info(), nil
}

// Get returns the key stored under id
func (m *KeyManager) Get(id string) (*Key, error) {
	key, ok := m.keys.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	return key, nil
}

// Default returns the bootstrap key of type t
func (m *KeyManager) Default(t KeyType) (*Key, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKeyType, t)
	}
	return m.Get(t.DefaultKeyID())
}

// Resolve returns the key for id, or the default key of t when id is empty
func (m *KeyManager) Resolve(id string, t KeyType) (*Key, error) {
	if id != "" {
		return m.Get(id)
	}
	return m.Default(t)
}

// List returns the stored keys ordered by creation time. filter restricts the
// result to one key type unless it is KeyTypeUnspecified.
func (m *KeyManager) List(filter KeyType, activeOnly bool) []KeyInfo {
	var infos []KeyInfo
	m.keys.Range(func(_ string, key *Key) bool {
		if filter != KeyTypeUnspecified && key.keyType != filter {
			return true
		}
		if activeOnly && !key.active {
			return true
		}
		infos = append(infos, key.Info())
		return true
	})

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].KeyID < infos[j].KeyID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// SetActive marks a key active or inactive. Inactive keys still verify but
// no longer sign.
func (m *KeyManager) SetActive(id string, active bool) error {
	found := false
	m.keys.Compute(id, func(old *Key, loaded bool) (*Key, bool) {
		if !loaded {
			return nil, true
		}
		found = true
		updated := *old
		updated.active = active
		return &updated, false
	})
	if !found {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	return nil
}

// Delete removes the key stored under id
func (m *KeyManager) Delete(id string) error {
	if _, ok := m.keys.LoadAndDelete(id); !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	Logger.Infof("Deleted key %s", id)
	return nil
}

// Len returns the number of stored keys
func (m *KeyManager) Len() int { return m.keys.Size() }

// Bootstrap generates the default key for every given type that does not
// have one yet
func (m *KeyManager) Bootstrap(types ...KeyType) error {
	for _, t := range types {
		_, err := m.Generate(t.DefaultKeyID(), t)
		if err != nil && !errors.Is(err, ErrKeyExists) {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func validateKeyID(id string) error {
	if len(id) > maxKeyIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidKeyID, maxKeyIDLength)
	}
	if strings.TrimSpace(id) != id || strings.ContainsAny(id, "\x00\n\r\t") {
		return fmt.Errorf("%w: %q", ErrInvalidKeyID, id)
	}
	return nil
}

func generatePrivateKey(t KeyType) (crypto.Signer, error) {
	switch t {
	case KeyTypeRSA2048:
		return rsa.GenerateKey(rand.Reader, 2048)
	case KeyTypeRSA3072:
		return rsa.GenerateKey(rand.Reader, 3072)
	case KeyTypeRSA4096:
		return rsa.GenerateKey(rand.Reader, 4096)
	case KeyTypeECCP256:
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case KeyTypeECCP384:
		return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case KeyTypeECCP521:
		return ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidKeyType, t)
	}
}
