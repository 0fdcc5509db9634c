// Copyright 2024 by the Authors
// This file is part of the bvm2 library.
//
// The bvm2 library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The bvm2 library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the bvm2 library. If not, see <http://www.gnu.org/licenses/>.

package bvm

import (
	"github.com/bvm2/bvm2/common"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// SigAccumulator is the funds-I/O commitment a top-level invocation builds
// up as it runs: every AddSig host call folds one more signer's public key
// into a running EC point sum. At the end of the invocation the aggregate
// point must equal the public key recoverable from the supplied
// multi-signature, or the invocation is rejected with
// KindSignatureInvalid. This lets many AddSig calls across many far-called
// contracts collectively authorize one top-level multi-key signature
// instead of each needing its own.
type SigAccumulator struct {
	sum     *secp256k1.JacobianPoint
	hasher  []byte // message bytes accumulated alongside the point, hashed at Finalize
	fundsIO *secp256k1.JacobianPoint // funds-I/O commitment: sum of amount*G over every lock/unlock
}

func newSigAccumulator() *SigAccumulator {
	return &SigAccumulator{
		sum:     &secp256k1.JacobianPoint{},
		fundsIO: &secp256k1.JacobianPoint{},
	}
}

// AddSig folds pubKey into the running point sum and appends msg to the
// message transcript that Finalize will hash for verification.
func (s *SigAccumulator) AddSig(pubKey *secp256k1.PublicKey, msg []byte) {
	var p secp256k1.JacobianPoint
	pubKey.AsJacobian(&p)
	secp256k1.AddNonConst(s.sum, &p, s.sum)
	s.hasher = append(s.hasher, msg...)
}

// addFundsIO folds amount*G into the funds-I/O accumulator, negated when
// outflow is true. FundsLock/FundsUnlock call this so that the aggregate
// signature's transcript commits to every funds movement the invocation
// made, not just the public keys that authorized it.
func (s *SigAccumulator) addFundsIO(amount *Amount, outflow bool) {
	var k secp256k1.ModNScalar
	k.SetByteSlice(amountBytes(amount))
	if outflow {
		k.Negate()
	}
	var p secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&k, &p)
	secp256k1.AddNonConst(s.fundsIO, &p, s.fundsIO)
}

// aggregatePubKey converts the running point sum into an affine public key
// for verification.
func (s *SigAccumulator) aggregatePubKey() *secp256k1.PublicKey {
	sum := *s.sum
	sum.ToAffine()
	return secp256k1.NewPublicKey(&sum.X, &sum.Y)
}

// Finalize verifies sig against the accumulated transcript hash (folded
// together with the funds-I/O commitment) and the aggregate public key built
// from every AddSig call made during the invocation. A top-level invocation
// that called AddSig at least once must supply a non-nil sig, or Finalize
// fails with KindSignatureInvalid.
func (s *SigAccumulator) Finalize(sig *schnorr.Signature) error {
	if s.sum.X.IsZero() && s.sum.Y.IsZero() {
		return nil // no AddSig calls made: nothing to verify
	}
	if sig == nil {
		return NewError(KindSignatureInvalid, "invocation accumulated signer keys but no signature was supplied")
	}
	fio := *s.fundsIO
	fio.ToAffine()
	transcript := append(append([]byte(nil), s.hasher...), fio.X.Bytes()[:]...)
	transcript = append(transcript, fio.Y.Bytes()[:]...)
	digest := common.Keccak256(transcript)
	pub := s.aggregatePubKey()
	if !sig.Verify(digest, pub) {
		return NewError(KindSignatureInvalid, "aggregate signature verification failed")
	}
	return nil
}
