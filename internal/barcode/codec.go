// Package barcode derives scannable codes from product identities and
// checks the structure of scanned codes.
package barcode

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"strings"

	"github.com/fjod/go_cart/pos-service/internal/domain"
)

// Format is a barcode symbology.
type Format string

const (
	FormatEAN13   Format = "EAN13"
	FormatUPCA    Format = "UPCA"
	FormatCode128 Format = "CODE128"
	FormatUnknown Format = ""
)

// ParseFormat accepts the common spellings ("ean-13", "upc_a", "code128").
func ParseFormat(s string) (Format, error) {
	norm := strings.ToUpper(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	switch Format(norm) {
	case FormatEAN13, FormatUPCA, FormatCode128:
		return Format(norm), nil
	}
	return FormatUnknown, domain.NewValidationError("unknown barcode format %q", s)
}

const (
	ean13Payload = 12
	upcaPayload  = 11

	// DefaultCode128Length is used when callers ask for a CODE128 product code
	// without a length.
	DefaultCode128Length = 12

	code128Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// GenerateEAN13 keeps the digits of seed, left-pads or left-truncates them to
// 12 and appends the EAN-13 check digit.
func GenerateEAN13(seed string) string {
	payload := normalizeDigits(seed, ean13Payload)
	return payload + string(checkDigit(payload, 1, 3))
}

// GenerateUPCA is GenerateEAN13 for 11 payload digits with weights 3,1,3,...
func GenerateUPCA(seed string) string {
	payload := normalizeDigits(seed, upcaPayload)
	return payload + string(checkDigit(payload, 3, 1))
}

// ValidateEAN13 reports whether code is 13 digits with a correct check digit.
func ValidateEAN13(code string) bool {
	return validate(code, ean13Payload, 1, 3)
}

// ValidateUPCA reports whether code is 12 digits with a correct check digit.
func ValidateUPCA(code string) bool {
	return validate(code, upcaPayload, 3, 1)
}

// GenerateCode128 returns length characters of 0-9A-Z derived from seed.
// The output is a pure function of (seed, length).
func GenerateCode128(seed string, length int) string {
	if length <= 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(length)

	block := sha256.Sum256([]byte(seed))
	var counter uint32
	pos := 0
	for b.Len() < length {
		if pos+4 > len(block) {
			counter++
			var ctr [4]byte
			binary.BigEndian.PutUint32(ctr[:], counter)
			block = sha256.Sum256(append(block[:], ctr[:]...))
			pos = 0
		}
		n := binary.BigEndian.Uint32(block[pos : pos+4])
		pos += 4
		b.WriteByte(code128Alphabet[n%uint32(len(code128Alphabet))])
	}
	return b.String()
}

// GenerateProductBarcode appends the attribute values, in sorted key order,
// to sku and passes the result to the generator for format. The numeric
// generators keep only the digits of that seed, so variants are distinct
// only when their attribute values differ in digits.
func GenerateProductBarcode(sku string, attributes map[string]string, format Format) (string, error) {
	seed := productSeed(sku, attributes)
	switch format {
	case FormatEAN13:
		return GenerateEAN13(seed), nil
	case FormatUPCA:
		return GenerateUPCA(seed), nil
	case FormatCode128:
		return GenerateCode128(seed, DefaultCode128Length), nil
	}
	return "", domain.NewValidationError("unknown barcode format %q", format)
}

// GenerateProductCode128 is the CODE128 branch of GenerateProductBarcode
// with a caller-chosen length.
func GenerateProductCode128(sku string, attributes map[string]string, length int) string {
	return GenerateCode128(productSeed(sku, attributes), length)
}

// Detect classifies scanner input. It does not check check digits.
func Detect(code string) Format {
	switch {
	case len(code) == ean13Payload+1 && allDigits(code):
		return FormatEAN13
	case len(code) == upcaPayload+1 && allDigits(code):
		return FormatUPCA
	case code != "" && allIn(code, code128Alphabet):
		return FormatCode128
	}
	return FormatUnknown
}

// Validate checks code against the structural rules of format.
func Validate(code string, format Format) bool {
	switch format {
	case FormatEAN13:
		return ValidateEAN13(code)
	case FormatUPCA:
		return ValidateUPCA(code)
	case FormatCode128:
		return code != "" && allIn(code, code128Alphabet)
	}
	return false
}

func productSeed(sku string, attributes map[string]string) string {
	if len(attributes) == 0 {
		return sku
	}
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(sku)
	for _, k := range keys {
		b.WriteString(attributes[k])
	}
	return b.String()
}

func normalizeDigits(seed string, n int) string {
	digits := make([]byte, 0, len(seed))
	for i := 0; i < len(seed); i++ {
		if c := seed[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	return strings.Repeat("0", n-len(digits)) + string(digits)
}

// checkDigit computes (10 - sum%10) % 10 with weights alternating
// even, odd, even, ... from the first digit.
func checkDigit(payload string, even, odd int) byte {
	sum := 0
	for i := 0; i < len(payload); i++ {
		w := even
		if i%2 == 1 {
			w = odd
		}
		sum += int(payload[i]-'0') * w
	}
	return byte('0' + (10-sum%10)%10)
}

func validate(code string, payload, even, odd int) bool {
	if len(code) != payload+1 || !allDigits(code) {
		return false
	}
	return checkDigit(code[:payload], even, odd) == code[payload]
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func allIn(s, alphabet string) bool {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
