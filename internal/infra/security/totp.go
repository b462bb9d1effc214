package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	totpSecretBytes = 20
	totpPeriod      = 30
	totpDigits      = 6
	// totpSkew is the number of adjacent time steps accepted on either
	// side of the current one, absorbing clock drift between the server
	// and the authenticator app.
	totpSkew = 1

	backupCodeCount = 8
	backupCodeBytes = 4
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// ErrMissingSecret is returned when a TOTP operation is attempted without a secret.
var ErrMissingSecret = errors.New("totp secret is required")

// GenerateTOTPSecret returns a fresh random shared secret encoded as
// unpadded base32, suitable for authenticator app enrollment.
func GenerateTOTPSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	return b32.EncodeToString(raw), nil
}

// TOTPProvisioningURI builds the otpauth:// URI encoding the secret and
// parameters for QR-code enrollment.
func TOTPProvisioningURI(secret, issuer, account string) string {
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(totpPeriod))
	v.Set("digits", strconv.Itoa(totpDigits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// GenerateTOTP computes the RFC 6238 code for the secret at the given moment.
func GenerateTOTP(secret string, at time.Time) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	key, err := b32.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return "", fmt.Errorf("decode totp secret: %w", err)
	}
	return hotpCode(key, at.Unix()/totpPeriod), nil
}

// VerifyTOTP checks a submitted code against the secret, accepting codes
// from the current step and totpSkew adjacent steps. Comparison is
// constant-time.
func VerifyTOTP(secret, code string, at time.Time) (bool, error) {
	if secret == "" {
		return false, ErrMissingSecret
	}

	trimmed := strings.TrimSpace(code)
	if len(trimmed) != totpDigits || !isDigits(trimmed) {
		return false, nil
	}

	key, err := b32.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return false, fmt.Errorf("decode totp secret: %w", err)
	}

	base := at.Unix() / totpPeriod
	for step := int64(-totpSkew); step <= totpSkew; step++ {
		counter := base + step
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotpCode(key, counter)), []byte(trimmed)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// GenerateBackupCodes returns a fresh set of single-use recovery codes
// in plain text. Callers hash them before storage.
func GenerateBackupCodes() ([]string, error) {
	codes := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		raw := make([]byte, backupCodeBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes = append(codes, hex.EncodeToString(raw))
	}
	return codes, nil
}

func hotpCode(key []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < totpDigits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", totpDigits, bin%mod)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
