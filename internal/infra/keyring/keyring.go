// Package keyring is a file-backed signing agent. Each ed25519 key lives in
// its own PEM (PKCS8) file under one directory; the file name without
// extension is the identity's display name and the hex public key is its
// address. Calls are signed over the BLAKE3 digest of their JSON envelope.
package keyring

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"createfi_go/internal/domain"
)

const keyExt = ".pem"

// Agent implements domain.SigningAgent over a key directory.
type Agent struct {
	dir string

	mu      sync.RWMutex
	enabled bool
	keys    map[string]ed25519.PrivateKey // address -> key
	names   map[string]string             // address -> display name
}

// NewAgent creates an agent for dir. An empty dir means no agent is installed.
func NewAgent(dir string) *Agent {
	return &Agent{dir: dir}
}

// Enable checks that the key directory exists and loads every key in it.
func (a *Agent) Enable(ctx context.Context, appName string) error {
	if a.dir == "" {
		return domain.ErrNoSigningAgent
	}
	info, err := os.Stat(a.dir)
	if err != nil || !info.IsDir() {
		return domain.NewError(domain.KindNoSigningAgent, err, "keyring %s unavailable", a.dir)
	}

	keys := make(map[string]ed25519.PrivateKey)
	names := make(map[string]string)

	paths, err := filepath.Glob(filepath.Join(a.dir, "*"+keyExt))
	if err != nil {
		return domain.NewError(domain.KindNoSigningAgent, err, "scan keyring")
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		priv, err := loadKeyPair(p)
		if err != nil {
			// One bad file must not hide the others.
			continue
		}
		addr := Address(priv.Public().(ed25519.PublicKey))
		keys[addr] = priv
		names[addr] = strings.TrimSuffix(filepath.Base(p), keyExt)
	}

	a.mu.Lock()
	a.enabled = true
	a.keys = keys
	a.names = names
	a.mu.Unlock()
	return nil
}

// Identities lists the loaded keys ordered by display name.
func (a *Agent) Identities(ctx context.Context) ([]domain.Identity, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.enabled {
		return nil, domain.ErrNoSigningAgent
	}

	ids := make([]domain.Identity, 0, len(a.keys))
	for addr := range a.keys {
		ids = append(ids, domain.Identity{Address: addr, DisplayName: a.names[addr]})
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].DisplayName == ids[j].DisplayName {
			return ids[i].Address < ids[j].Address
		}
		return ids[i].DisplayName < ids[j].DisplayName
	})
	return ids, nil
}

// envelope is the signed payload handed to the node.
type envelope struct {
	Signer    string `json:"signer"`
	Module    string `json:"module"`
	Method    string `json:"method"`
	Args      []any  `json:"args"`
	Signature string `json:"signature,omitempty"`
}

// Sign signs call on behalf of address.
func (a *Agent) Sign(ctx context.Context, address string, call domain.Call) (domain.SignedCall, error) {
	a.mu.RLock()
	priv, ok := a.keys[address]
	enabled := a.enabled
	a.mu.RUnlock()

	if !enabled {
		return domain.SignedCall{}, domain.ErrNoSigningAgent
	}
	if !ok {
		return domain.SignedCall{}, fmt.Errorf("no key for %s", address)
	}

	env := envelope{Signer: address, Module: call.Module, Method: call.Method, Args: call.Args}
	if env.Args == nil {
		env.Args = []any{}
	}
	msg, err := json.Marshal(env)
	if err != nil {
		return domain.SignedCall{}, fmt.Errorf("encode call: %w", err)
	}
	digest := blake3.Sum256(msg)
	env.Signature = hex.EncodeToString(ed25519.Sign(priv, digest[:]))

	signed, err := json.Marshal(env)
	if err != nil {
		return domain.SignedCall{}, fmt.Errorf("encode signed call: %w", err)
	}
	return domain.SignedCall{Signer: address, Payload: "0x" + hex.EncodeToString(signed)}, nil
}

// Verify checks a payload produced by Sign.
func Verify(payload string) (bool, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(payload, "0x"))
	if err != nil {
		return false, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, err
	}
	pub, err := hex.DecodeString(strings.TrimPrefix(env.Signer, "0x"))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false, errors.New("invalid signer")
	}
	sig, err := hex.DecodeString(env.Signature)
	if err != nil {
		return false, err
	}

	env.Signature = ""
	// Args went through a JSON round trip; re-encoding yields the same bytes.
	msg, err := json.Marshal(env)
	if err != nil {
		return false, err
	}
	digest := blake3.Sum256(msg)
	return ed25519.Verify(pub, digest[:], sig), nil
}

// Address renders a public key as its ledger address.
func Address(pub ed25519.PublicKey) string {
	return "0x" + hex.EncodeToString(pub)
}

// GenerateKey creates a new key file named name in dir and returns its identity.
func GenerateKey(dir, name string) (domain.Identity, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return domain.Identity{}, err
	}
	path := filepath.Join(dir, name+keyExt)
	if _, err := os.Stat(path); err == nil {
		return domain.Identity{}, fmt.Errorf("key %s already exists", path)
	}

	priv, err := generateAndSaveKeyPair(path)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{Address: Address(priv.Public().(ed25519.PublicKey)), DisplayName: name}, nil
}

func generateAndSaveKeyPair(keyPath string) (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}

	x509Encoded, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := pem.Encode(file, &pem.Block{Type: "PRIVATE KEY", Bytes: x509Encoded}); err != nil {
		return nil, err
	}
	return priv, nil
}

func loadKeyPair(keyPath string) (ed25519.PrivateKey, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	pemBlock, _ := pem.Decode(keyData)
	if pemBlock == nil {
		return nil, errors.New("failed to decode PEM block from key file")
	}

	genericKey, err := x509.ParsePKCS8PrivateKey(pemBlock.Bytes)
	if err != nil {
		return nil, err
	}

	privKey, ok := genericKey.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("key is not an ed25519 private key")
	}
	return privKey, nil
}
