// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signed

import (
	"fmt"

	"github.com/luxfi/crypto/bls"

	"github.com/luxfi/rush/unit"
)

// BLSKeyBox is a concrete KeyBox backed by BLS signatures over the
// session's authority list. It is one possible instantiation of the
// abstract capability the rest of the module depends on; nothing
// outside this file and its tests knows BLS is involved.
type BLSKeyBox struct {
	self       unit.NodeIndex
	hasSecret  bool
	secretKey  *bls.SecretKey
	publicKeys unit.NodeMap[*bls.PublicKey]
}

// NewBLSKeyBox builds a KeyBox for the authority at self, holding its
// own secret key plus every authority's public key (self included).
// A box with no secret key (self < 0 equivalent) can still verify.
func NewBLSKeyBox(self unit.NodeIndex, secretKey *bls.SecretKey, publicKeys unit.NodeMap[*bls.PublicKey]) *BLSKeyBox {
	return &BLSKeyBox{
		self:       self,
		hasSecret:  secretKey != nil,
		secretKey:  secretKey,
		publicKeys: publicKeys,
	}
}

// NewBLSKeyBoxVerifierOnly builds a KeyBox that can verify but not
// sign, for components (e.g. fetch-response validators run outside
// the owning session) that never need Index/Sign.
func NewBLSKeyBoxVerifierOnly(publicKeys unit.NodeMap[*bls.PublicKey]) *BLSKeyBox {
	return &BLSKeyBox{publicKeys: publicKeys}
}

func (kb *BLSKeyBox) Sign(bytes []byte) ([]byte, error) {
	if !kb.hasSecret {
		return nil, fmt.Errorf("signed: key box for node %d holds no secret key", kb.self)
	}
	sig, err := kb.secretKey.Sign(bytes)
	if err != nil {
		return nil, fmt.Errorf("signed: bls sign: %w", err)
	}
	return bls.SignatureToBytes(sig), nil
}

func (kb *BLSKeyBox) Verify(bytes, sig []byte, signer unit.NodeIndex) bool {
	if int(signer) >= len(kb.publicKeys) {
		return false
	}
	pk := kb.publicKeys[signer]
	if pk == nil {
		return false
	}
	parsed, err := bls.SignatureFromBytes(sig)
	if err != nil {
		return false
	}
	return bls.Verify(pk, parsed, bytes)
}

func (kb *BLSKeyBox) Index() (unit.NodeIndex, bool) {
	return kb.self, kb.hasSecret
}
