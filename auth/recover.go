package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"
)

// signedMessageHash hashes a message the way wallets do for personal_sign:
// keccak256 over the standard prefix, the message length and the message.
func signedMessageHash(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return h.Sum(nil)
}

// RecoverAddress recovers the lowercase wallet address that produced a
// personal_sign signature over message.
func RecoverAddress(message string, signatureHex string) (string, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return "", errors.New("signature is not hex")
	}
	if len(sigBytes) != 65 {
		return "", errors.New("signature must be 65 bytes")
	}

	// Wallets emit r || s || v; RecoverCompact wants the recovery header
	// first. v arrives as 27/28 or 0/1 depending on the wallet.
	v := sigBytes[64]
	if v < 27 {
		v += 27
	}
	compact := make([]byte, 65)
	compact[0] = v
	copy(compact[1:], sigBytes[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, signedMessageHash(message))
	if err != nil {
		return "", fmt.Errorf("recovering public key: %w", err)
	}

	return PubKeyAddress(pub), nil
}

// PubKeyAddress derives the lowercase 0x address from a secp256k1 public
// key: the last 20 bytes of the keccak256 of the uncompressed point.
func PubKeyAddress(pub *btcec.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:])
}
