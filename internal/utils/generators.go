package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const voucherAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateVoucherCode returns a code like EVP-7K2M-XQ9R. The alphabet
// drops 0/O/1/I so the redemption desk can read codes aloud.
func GenerateVoucherCode() string {
	segment := func() string {
		buf := make([]byte, 4)
		for i := range buf {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(voucherAlphabet))))
			if err != nil {
				// crypto/rand failing is unrecoverable for unique codes
				panic(fmt.Sprintf("voucher code generation: %v", err))
			}
			buf[i] = voucherAlphabet[n.Int64()]
		}
		return string(buf)
	}
	return fmt.Sprintf("EVP-%s-%s", segment(), segment())
}

// GenerateScanID returns a timestamp-prefixed event identifier.
func GenerateScanID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999999))
	return fmt.Sprintf("scan_%d_%09d", timestamp, randomNum.Int64())
}
