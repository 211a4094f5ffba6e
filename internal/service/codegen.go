package service

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/openclaw/deviceauth-go/internal/util"
)

// pairingCodeChars omits 0, O, 1 and I. Its length must stay 32 so that
// masking a random byte to 5 bits selects uniformly.
const pairingCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	pairingCodeHalf   = 4
	pairingCodeLength = pairingCodeHalf * 2
)

// CodeGenerator produces device ids and pairing codes. Collisions are the
// caller's problem.
type CodeGenerator interface {
	Generate() (deviceID, pairingCode string, err error)
}

type randomCodeGenerator struct{}

func NewCodeGenerator() CodeGenerator {
	return randomCodeGenerator{}
}

func (randomCodeGenerator) Generate() (string, string, error) {
	deviceID, err := util.GenerateToken()
	if err != nil {
		return "", "", fmt.Errorf("generate device id: %w", err)
	}
	code, err := generatePairingCode()
	if err != nil {
		return "", "", fmt.Errorf("generate pairing code: %w", err)
	}
	return deviceID, code, nil
}

func generatePairingCode() (string, error) {
	buf := make([]byte, pairingCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(pairingCodeLength + 1)
	for i, b := range buf {
		if i == pairingCodeHalf {
			sb.WriteByte('-')
		}
		sb.WriteByte(pairingCodeChars[b&31])
	}
	return sb.String(), nil
}

// NormalizePairingCode upper-cases user input and restores the separator,
// so "abcd efgh", "abcdefgh" and "ABCD-EFGH" all match.
func NormalizePairingCode(input string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(input) {
		if r == '-' || r == ' ' || r == '\t' {
			continue
		}
		sb.WriteRune(r)
	}
	compact := sb.String()
	if len(compact) != pairingCodeLength {
		return strings.ToUpper(strings.TrimSpace(input))
	}
	return compact[:pairingCodeHalf] + "-" + compact[pairingCodeHalf:]
}
