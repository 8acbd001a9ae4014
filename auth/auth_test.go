package auth

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/nounce/nounced/db"
)

func setupTestManager(t *testing.T, maxAge time.Duration) *Manager {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	return NewManager(database, maxAge)
}

// signMessage produces a wallet-style personal_sign signature: r || s || v
// hex-encoded with 0x prefix.
func signMessage(t *testing.T, priv *btcec.PrivateKey, message string) string {
	compact := ecdsa.SignCompact(priv, signedMessageHash(message), false)

	// SignCompact puts the recovery header first; wallets put it last.
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return "0x" + hex.EncodeToString(sig)
}

func newTestKey(t *testing.T) (*btcec.PrivateKey, string) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return priv, PubKeyAddress(priv.PubKey())
}

func TestRecoverAddressRoundTrip(t *testing.T) {
	priv, wallet := newTestKey(t)

	message := "Sign this message to login to nounced: abc123"
	sig := signMessage(t, priv, message)

	recovered, err := RecoverAddress(message, sig)
	if err != nil {
		t.Fatalf("RecoverAddress failed: %v", err)
	}
	if recovered != wallet {
		t.Errorf("Expected %s, got %s", wallet, recovered)
	}
}

func TestRecoverAddressRejectsGarbage(t *testing.T) {
	if _, err := RecoverAddress("msg", "not-hex"); err == nil {
		t.Error("Expected error for non-hex signature")
	}
	if _, err := RecoverAddress("msg", "0xdeadbeef"); err == nil {
		t.Error("Expected error for short signature")
	}
}

func TestRecoverAddressWrongMessage(t *testing.T) {
	priv, wallet := newTestKey(t)

	sig := signMessage(t, priv, "original message")
	recovered, err := RecoverAddress("tampered message", sig)
	if err == nil && recovered == wallet {
		t.Error("Expected recovery over a different message to yield a different address")
	}
}

func TestChallengeCreatesStubAccount(t *testing.T) {
	m := setupTestManager(t, time.Hour)
	_, wallet := newTestKey(t)

	message, err := m.Challenge(wallet)
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}
	if !strings.HasPrefix(message, "Sign this message to login to nounced: ") {
		t.Errorf("Unexpected challenge message: %s", message)
	}

	err, acc := m.database.ReadAccountByWallet(wallet)
	if err != nil || acc == nil {
		t.Fatal("Expected stub account to exist after first challenge")
	}
	if acc.Nonce == "" {
		t.Error("Expected a nonce on the stub account")
	}
}

func TestChallengeRejectsInvalidWallet(t *testing.T) {
	m := setupTestManager(t, time.Hour)

	if _, err := m.Challenge("not-a-wallet"); err == nil {
		t.Error("Expected validation error for malformed wallet")
	}
}

func TestChallengeRotatesNonce(t *testing.T) {
	m := setupTestManager(t, time.Hour)
	_, wallet := newTestKey(t)

	first, err := m.Challenge(wallet)
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}
	second, err := m.Challenge(wallet)
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}
	if first == second {
		t.Error("Expected a fresh nonce per challenge")
	}
}

func TestVerifyHappyPath(t *testing.T) {
	m := setupTestManager(t, time.Hour)
	priv, wallet := newTestKey(t)

	message, err := m.Challenge(wallet)
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}

	sig := signMessage(t, priv, message)
	err, session := m.Verify(wallet, sig)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if session == nil {
		t.Fatal("Expected a session")
	}

	err, acc := m.SessionAccount(session.Id.String())
	if err != nil {
		t.Fatalf("SessionAccount failed: %v", err)
	}
	if acc.Wallet != wallet {
		t.Errorf("Expected wallet %s, got %s", wallet, acc.Wallet)
	}
}

func TestVerifyNonceSingleUse(t *testing.T) {
	m := setupTestManager(t, time.Hour)
	priv, wallet := newTestKey(t)

	message, err := m.Challenge(wallet)
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}

	sig := signMessage(t, priv, message)
	if err, _ := m.Verify(wallet, sig); err != nil {
		t.Fatalf("First Verify failed: %v", err)
	}

	// Replaying the same signature must fail: the nonce is gone.
	if err, _ := m.Verify(wallet, sig); err == nil {
		t.Error("Expected replayed signature to be rejected")
	}
}

func TestVerifyWrongKey(t *testing.T) {
	m := setupTestManager(t, time.Hour)
	_, wallet := newTestKey(t)
	attacker, _ := newTestKey(t)

	message, err := m.Challenge(wallet)
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}

	sig := signMessage(t, attacker, message)
	if err, _ := m.Verify(wallet, sig); err == nil {
		t.Error("Expected signature from a different key to be rejected")
	}
}

func TestVerifyUnknownWallet(t *testing.T) {
	m := setupTestManager(t, time.Hour)
	priv, wallet := newTestKey(t)

	sig := signMessage(t, priv, LoginMessage("whatever"))
	if err, _ := m.Verify(wallet, sig); err == nil {
		t.Error("Expected error for wallet without challenge")
	}
}

func TestSessionExpiry(t *testing.T) {
	m := setupTestManager(t, -time.Hour)
	priv, wallet := newTestKey(t)

	message, err := m.Challenge(wallet)
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}

	err, session := m.Verify(wallet, signMessage(t, priv, message))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if err, _ := m.SessionAccount(session.Id.String()); err == nil {
		t.Error("Expected expired session to be rejected")
	}
}

func TestLogout(t *testing.T) {
	m := setupTestManager(t, time.Hour)
	priv, wallet := newTestKey(t)

	message, err := m.Challenge(wallet)
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}
	err, session := m.Verify(wallet, signMessage(t, priv, message))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	m.Logout(session.Id.String())

	if err, _ := m.SessionAccount(session.Id.String()); err == nil {
		t.Error("Expected session to be invalid after logout")
	}
}
