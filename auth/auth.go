package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nounce/nounced/db"
	"github.com/nounce/nounced/domain"
	"github.com/nounce/nounced/util"
)

// Manager issues challenge nonces and bearer sessions for wallet login.
type Manager struct {
	database *db.DB
	maxAge   time.Duration
}

func NewManager(database *db.DB, maxAge time.Duration) *Manager {
	return &Manager{database: database, maxAge: maxAge}
}

// LoginMessage is the exact text a wallet signs, bound to the nonce.
func LoginMessage(nonce string) string {
	return fmt.Sprintf("Sign this message to login to %s: %s", util.Name, nonce)
}

// Challenge rotates the account's single-use nonce and returns the
// message to sign. An unknown wallet gets a stub account row, since
// accounts come into being at first login.
func (m *Manager) Challenge(wallet string) (string, error) {
	if !util.IsWalletAddress(wallet) {
		return "", fmt.Errorf("%w: not a wallet address", domain.ErrValidation)
	}
	wallet = util.NormalizeWallet(wallet)

	nonce := util.RandomHex(32)

	err, acc := m.database.ReadAccountByWallet(wallet)
	if err != nil || acc == nil {
		stub := &domain.Account{
			Id:        uuid.New(),
			Wallet:    wallet,
			Nonce:     nonce,
			CreatedAt: time.Now(),
		}
		if err := m.database.CreateAccount(stub); err != nil {
			return "", err
		}
		return LoginMessage(nonce), nil
	}

	if err := m.database.RotateNonce(wallet, nonce); err != nil {
		return "", err
	}
	return LoginMessage(nonce), nil
}

// Verify checks the signature over the current nonce, consumes the nonce
// and issues a bearer session. The nonce is rotated before the session is
// created, so the same signature can never log in twice.
func (m *Manager) Verify(wallet string, signatureHex string) (error, *domain.Session) {
	if !util.IsWalletAddress(wallet) {
		return fmt.Errorf("%w: not a wallet address", domain.ErrValidation), nil
	}
	wallet = util.NormalizeWallet(wallet)

	err, acc := m.database.ReadAccountByWallet(wallet)
	if err != nil || acc == nil {
		return fmt.Errorf("%w: unknown wallet", domain.ErrNotFound), nil
	}
	if acc.Nonce == "" {
		return fmt.Errorf("%w: no login challenge outstanding", domain.ErrUnauthorized), nil
	}

	recovered, err := RecoverAddress(LoginMessage(acc.Nonce), signatureHex)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err), nil
	}
	if recovered != wallet {
		return fmt.Errorf("%w: signature does not match wallet", domain.ErrUnauthorized), nil
	}

	// Consume the nonce first: exactly once per successful verification.
	if err := m.database.RotateNonce(wallet, util.RandomHex(32)); err != nil {
		return err, nil
	}

	session := &domain.Session{
		Id:        uuid.New(),
		AccountId: acc.Id,
		ExpiresAt: time.Now().Add(m.maxAge),
	}
	if err := m.database.CreateSession(session); err != nil {
		return err, nil
	}
	return nil, session
}

// SessionAccount resolves a bearer token to its account.
func (m *Manager) SessionAccount(token string) (error, *domain.Account) {
	id, err := uuid.Parse(token)
	if err != nil {
		return fmt.Errorf("%w: malformed token", domain.ErrUnauthorized), nil
	}

	err, session := m.database.ReadSessionById(id)
	if err != nil || session == nil {
		return fmt.Errorf("%w: unknown session", domain.ErrUnauthorized), nil
	}
	if time.Now().After(session.ExpiresAt) {
		m.database.DeleteSession(session.Id)
		return fmt.Errorf("%w: session expired", domain.ErrUnauthorized), nil
	}

	err, acc := m.database.ReadAccountById(session.AccountId)
	if err != nil || acc == nil {
		return fmt.Errorf("%w: account gone", domain.ErrUnauthorized), nil
	}
	return nil, acc
}

func (m *Manager) Logout(token string) {
	if id, err := uuid.Parse(token); err == nil {
		m.database.DeleteSession(id)
	}
}
