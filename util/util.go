package util

import (
	"crypto/rand"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
)

//go:embed version.txt
var embeddedVersion string

var walletRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsWalletAddress reports whether s looks like a 20-byte hex wallet address.
func IsWalletAddress(s string) bool {
	return walletRe.MatchString(s)
}

// NormalizeWallet lowercases a wallet address to its canonical cache form.
func NormalizeWallet(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ContentId derives the content-addressed identifier for a blob.
// Identical bytes always map to the identical id.
func ContentId(data []byte) string {
	h := sha256.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

func GetNameAndVersion() string {
	return fmt.Sprintf("%s / %s", Name, GetVersion())
}

// RandomHex returns length hex characters from a CSPRNG, used for login nonces.
func RandomHex(length int) string {
	b := make([]byte, (length+1)/2)
	rand.Read(b)
	return hex.EncodeToString(b)[:length]
}

func NormalizeInput(text string) string {
	normalized := strings.Replace(text, "\n", " ", -1)
	normalized = html.EscapeString(normalized)
	return normalized
}

func DateTimeFormat() string {
	return "2006-01-02 15:04:05 CEST"
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", " ")
	return string(s)
}
