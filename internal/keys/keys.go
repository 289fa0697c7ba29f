// Package keys generates, persists, and loads the HMAC secret keys that
// back internal/pseudonym. Keys are generated once, written to a JSON
// file, and reused on every subsequent run so that a member's pseudonym
// is stable across pipeline executions.
package keys

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"

	"github.com/txapcd/deid-engine/internal/pseudonym"
	apperrors "github.com/txapcd/deid-engine/internal/shared/errors"
)

// keySize is the HMAC key length in bytes.
const keySize = 32

// fileFormat is the on-disk JSON shape, base64-encoded for readability.
type fileFormat struct {
	MemberKey   string `json:"member_key"`
	ProviderKey string `json:"provider_key"`
	ClaimKey    string `json:"claim_key"`
}

// LoadOrGenerate loads a KeySet from path, generating and persisting a
// fresh one if the file doesn't exist yet. A corrupt key file, or one
// that fails to generate/persist, is fatal at startup: the pipeline
// must never fall back to an ephemeral, unpersisted key, which would
// silently break pseudonym stability across runs.
func LoadOrGenerate(path string) (pseudonym.KeySet, error) {
	ks, err := load(path)
	if err == nil {
		return ks, nil
	}
	if !os.IsNotExist(err) {
		return pseudonym.KeySet{}, apperrors.Internal(err)
	}

	ks, err = generate()
	if err != nil {
		return pseudonym.KeySet{}, apperrors.Internal(err)
	}
	if err := save(path, ks); err != nil {
		return pseudonym.KeySet{}, apperrors.Internal(err)
	}
	return ks, nil
}

func generate() (pseudonym.KeySet, error) {
	member, err := randomKey()
	if err != nil {
		return pseudonym.KeySet{}, err
	}
	provider, err := randomKey()
	if err != nil {
		return pseudonym.KeySet{}, err
	}
	claim, err := randomKey()
	if err != nil {
		return pseudonym.KeySet{}, err
	}
	return pseudonym.KeySet{MemberKey: member, ProviderKey: provider, ClaimKey: claim}, nil
}

func randomKey() ([]byte, error) {
	buf := make([]byte, keySize)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func load(path string) (pseudonym.KeySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pseudonym.KeySet{}, err
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return pseudonym.KeySet{}, err
	}
	member, err := base64.StdEncoding.DecodeString(ff.MemberKey)
	if err != nil {
		return pseudonym.KeySet{}, err
	}
	provider, err := base64.StdEncoding.DecodeString(ff.ProviderKey)
	if err != nil {
		return pseudonym.KeySet{}, err
	}
	claim, err := base64.StdEncoding.DecodeString(ff.ClaimKey)
	if err != nil {
		return pseudonym.KeySet{}, err
	}
	return pseudonym.KeySet{MemberKey: member, ProviderKey: provider, ClaimKey: claim}, nil
}

func save(path string, ks pseudonym.KeySet) error {
	ff := fileFormat{
		MemberKey:   base64.StdEncoding.EncodeToString(ks.MemberKey),
		ProviderKey: base64.StdEncoding.EncodeToString(ks.ProviderKey),
		ClaimKey:    base64.StdEncoding.EncodeToString(ks.ClaimKey),
	}
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
