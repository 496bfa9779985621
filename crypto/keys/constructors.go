// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.


package keys

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	sagecrypto "github.com/universa-net/ledgernode/crypto"
)

// NewEd25519KeyPair creates a new Ed25519 key pair from an existing private key
func NewEd25519KeyPair(privateKey ed25519.PrivateKey, id string) (sagecrypto.KeyPair, error) {
	publicKey := privateKey.Public().(ed25519.PublicKey)

	if id == "" {
		hash := sha256.Sum256(publicKey)
		id = hex.EncodeToString(hash[:8])
	}

	return &ed25519KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         id,
	}, nil
}

// NewSecp256k1KeyPair creates a new Secp256k1 key pair from an existing private key
func NewSecp256k1KeyPair(privateKey *secp256k1.PrivateKey, id string) (sagecrypto.KeyPair, error) {
	publicKey := privateKey.PubKey()

	if id == "" {
		pubKeyBytes := publicKey.SerializeCompressed()
		hash := sha256.Sum256(pubKeyBytes)
		id = hex.EncodeToString(hash[:8])
	}

	return &secp256k1KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         id,
	}, nil
}

// NewX25519KeyPair creates a new X25519 key pair from an existing private key
func NewX25519KeyPair(privateKey *ecdh.PrivateKey, id string) (sagecrypto.KeyPair, error) {
	publicKey := privateKey.PublicKey()

	if id == "" {
		pubKeyBytes := publicKey.Bytes()
		hash := sha256.Sum256(pubKeyBytes)
		id = hex.EncodeToString(hash[:8])
	}

	return &X25519KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         id,
	}, nil
}

// publicKeyOnlyEd25519 wraps an Ed25519 public key for verification only,
// used when the registry holds a client's key but never its private half.
type publicKeyOnlyEd25519 struct {
	publicKey ed25519.PublicKey
	id        string
}

// NewPublicKeyOnlyEd25519 wraps a bare Ed25519 public key as a verify-only KeyPair.
func NewPublicKeyOnlyEd25519(publicKey ed25519.PublicKey, id string) sagecrypto.KeyPair {
	if id == "" {
		hash := sha256.Sum256(publicKey)
		id = hex.EncodeToString(hash[:8])
	}
	return &publicKeyOnlyEd25519{publicKey: publicKey, id: id}
}

func (pk *publicKeyOnlyEd25519) PublicKey() crypto.PublicKey {
	return pk.publicKey
}

func (pk *publicKeyOnlyEd25519) PrivateKey() crypto.PrivateKey {
	return nil
}

func (pk *publicKeyOnlyEd25519) Type() sagecrypto.KeyType {
	return sagecrypto.KeyTypeEd25519
}

func (pk *publicKeyOnlyEd25519) Sign(message []byte) ([]byte, error) {
	return nil, errors.New("cannot sign with public key only")
}

func (pk *publicKeyOnlyEd25519) Verify(message, signature []byte) error {
	if !ed25519.Verify(pk.publicKey, message, signature) {
		return sagecrypto.ErrInvalidSignature
	}
	return nil
}

func (pk *publicKeyOnlyEd25519) ID() string {
	return pk.id
}

// publicKeyOnlySecp256k1 wraps a Secp256k1 public key for verification
// only, used when the registry holds a client's key but never its
// private half.
type publicKeyOnlySecp256k1 struct {
	publicKey *secp256k1.PublicKey
	id        string
}

// NewPublicKeyOnlySecp256k1 wraps a bare Secp256k1 public key as a
// verify-only KeyPair, built from its 33-byte compressed encoding.
func NewPublicKeyOnlySecp256k1(compressed []byte, id string) (sagecrypto.KeyPair, error) {
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return nil, err
	}
	if id == "" {
		hash := sha256.Sum256(compressed)
		id = hex.EncodeToString(hash[:8])
	}
	return &publicKeyOnlySecp256k1{publicKey: pub, id: id}, nil
}

func (pk *publicKeyOnlySecp256k1) PublicKey() crypto.PublicKey {
	return pk.publicKey.ToECDSA()
}

func (pk *publicKeyOnlySecp256k1) PrivateKey() crypto.PrivateKey {
	return nil
}

func (pk *publicKeyOnlySecp256k1) Type() sagecrypto.KeyType {
	return sagecrypto.KeyTypeSecp256k1
}

func (pk *publicKeyOnlySecp256k1) Sign(message []byte) ([]byte, error) {
	return nil, errors.New("cannot sign with public key only")
}

func (pk *publicKeyOnlySecp256k1) Verify(message, signature []byte) error {
	hash := sha512.Sum512_256(message)

	r, s, err := deserializeSignature(signature)
	if err != nil {
		return sagecrypto.ErrInvalidSignature
	}

	if !ecdsa.Verify(pk.publicKey.ToECDSA(), hash[:], r, s) {
		return sagecrypto.ErrInvalidSignature
	}
	return nil
}

func (pk *publicKeyOnlySecp256k1) ID() string {
	return pk.id
}
