// Package sighash computes canonical keccak-256 hashes for signed
// payloads (orders, liquidity intents) and recovers the signing wallet
// from a secp256k1 signature. Pure functions, no state.
package sighash

import (
	"encoding/binary"

	"DexSettle/internal/instruction"
	"DexSettle/internal/reject"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SupportedVersion is the only canonical hashing scheme this core
// recognizes. Unrecognized versions fail before any signature check.
const SupportedVersion uint8 = 1

const signatureLength = 65

// OrderHash returns the canonical hash a wallet signs for an order. The
// hash doubles as the order's identity for fill tracking.
func OrderHash(o *instruction.Order) common.Hash {
	buf := make([]byte, 0, 96+len(o.Market))

	buf = append(buf, o.SigHashVersion)
	buf = append(buf, o.Nonce[:]...)
	buf = append(buf, o.Wallet.Bytes()...)
	buf = append(buf, []byte(o.Market)...)
	buf = append(buf, byte(o.Type), byte(o.Side))
	buf = appendUint64(buf, uint64(o.Quantity))
	if o.QuantityInQuote {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendUint64(buf, uint64(o.LimitPrice))

	return crypto.Keccak256Hash(buf)
}

// IntentHash returns the canonical hash a wallet signs for a liquidity
// intent. The hash doubles as the intent's one-shot execution key.
func IntentHash(li *instruction.LiquidityIntent) common.Hash {
	buf := make([]byte, 0, 160)

	buf = append(buf, li.SigHashVersion, byte(li.Kind))
	buf = append(buf, li.Nonce[:]...)
	buf = append(buf, li.Wallet.Bytes()...)
	buf = append(buf, li.AssetA.Bytes()...)
	buf = append(buf, li.AssetB.Bytes()...)
	buf = appendUint64(buf, uint64(li.AmountADesired))
	buf = appendUint64(buf, uint64(li.AmountBDesired))
	buf = appendUint64(buf, uint64(li.AmountAMin))
	buf = appendUint64(buf, uint64(li.AmountBMin))
	buf = appendUint64(buf, uint64(li.Liquidity))
	buf = append(buf, li.To.Bytes()...)
	buf = appendUint64(buf, uint64(li.DeadlineMs))

	return crypto.Keccak256Hash(buf)
}

// personalDigest applies the Ethereum signed-message prefix, matching what
// wallet software produces when signing a 32-byte hash.
func personalDigest(hash common.Hash) []byte {
	return crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), hash.Bytes())
}

// RecoverSigner recovers the wallet that signed the given canonical hash.
// Accepts recovery ids 0/1 and the legacy 27/28 encoding.
func RecoverSigner(hash common.Hash, sig instruction.Signature) (common.Address, error) {
	if len(sig) != signatureLength {
		return common.Address{}, reject.New(reject.ReasonInvalidSignature,
			"signature must be %d bytes, got %d", signatureLength, len(sig))
	}

	normalized := make([]byte, signatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return common.Address{}, reject.New(reject.ReasonInvalidSignature,
			"invalid recovery id %d", sig[64])
	}

	pub, err := crypto.SigToPub(personalDigest(hash), normalized)
	if err != nil {
		return common.Address{}, reject.New(reject.ReasonInvalidSignature, "recover: %v", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyOrder checks the order's hash version and signature, returning the
// order hash on success.
func VerifyOrder(o *instruction.Order, sig instruction.Signature) (common.Hash, error) {
	if o.SigHashVersion != SupportedVersion {
		return common.Hash{}, reject.New(reject.ReasonInvalidHashVersion,
			"order hash version %d", o.SigHashVersion)
	}

	hash := OrderHash(o)
	signer, err := RecoverSigner(hash, sig)
	if err != nil {
		return common.Hash{}, err
	}
	if signer != o.Wallet {
		return common.Hash{}, reject.New(reject.ReasonInvalidSignature,
			"recovered %s, order wallet %s", signer.Hex(), o.Wallet.Hex())
	}

	return hash, nil
}

// VerifyIntent checks a liquidity intent's hash version and signature,
// returning the intent hash on success.
func VerifyIntent(li *instruction.LiquidityIntent, sig instruction.Signature) (common.Hash, error) {
	if li.SigHashVersion != SupportedVersion {
		return common.Hash{}, reject.New(reject.ReasonSigHashVersionInvalid,
			"intent hash version %d", li.SigHashVersion)
	}

	hash := IntentHash(li)
	signer, err := RecoverSigner(hash, sig)
	if err != nil {
		return common.Hash{}, err
	}
	if signer != li.Wallet {
		return common.Hash{}, reject.New(reject.ReasonInvalidSignature,
			"recovered %s, intent wallet %s", signer.Hex(), li.Wallet.Hex())
	}

	return hash, nil
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
