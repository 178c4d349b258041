package motion

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"
	"time"
)

// The motor firmware encrypts every frame with a fixed vendor key,
// AES-128 in ECB mode with PKCS#7 padding.
var frameKey = []byte("a3q8r8c135sqbn66")

// Encrypt encrypts a plaintext frame body
func Encrypt(plaintext []byte) []byte {
	block, err := aes.NewCipher(frameKey)
	if err != nil {
		// Key is a compile-time constant of valid length
		panic(err)
	}

	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}

	return out
}

// Decrypt decrypts a frame received from the motor
func Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: frame length %d not a block multiple", ErrDecode, len(ciphertext))
	}

	block, err := aes.NewCipher(frameKey)
	if err != nil {
		panic(err)
	}

	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}

	return unpad(out)
}

// Timestamp returns the 8-byte local-time suffix appended to every command
// body: year%100, month, day, hour, minute, second, milliseconds (u16 BE).
func Timestamp(at time.Time) []byte {
	ts := make([]byte, 8)
	ts[0] = byte(at.Year() % 100)
	ts[1] = byte(at.Month())
	ts[2] = byte(at.Day())
	ts[3] = byte(at.Hour())
	ts[4] = byte(at.Minute())
	ts[5] = byte(at.Second())
	binary.BigEndian.PutUint16(ts[6:8], uint16(at.Nanosecond()/1e6))
	return ts
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrDecode)
	}

	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecode)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecode)
		}
	}

	return data[:len(data)-n], nil
}
