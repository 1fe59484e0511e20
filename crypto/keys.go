package crypto

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/crypto"
)

// PrivateKey is a secp256k1 account key.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// GeneratePrivateKey draws a fresh key from crypto/rand.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes restores a key exported with Bytes.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// Bytes returns the 32-byte scalar.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.key)
}

// Address returns the account controlled by the key.
func (k *PrivateKey) Address() Address {
	return FromCommon(crypto.PubkeyToAddress(k.key.PublicKey))
}
