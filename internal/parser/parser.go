// Package parser decrypts and verifies the encrypted auth tokens returned by
// the issuance service.
//
// An issued token is the lowercase hex SHA-256 digest of the plaintext
// followed by the URL-safe base64 AES-256-CBC ciphertext. The key and IV are
// derived from the identity the token was issued for, so a token only decrypts
// for the instance, region and user it names. The plaintext is a 4 byte header
// followed by a protobuf encoded AuthTokenInfo record.
package parser

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/juju/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/CliForge/dbauth/pkg/dbauth/types"
)

// ErrParse is matched by every error returned from Parse.
const ErrParse = errors.ConstError("auth token parse error")

const (
	digestLen = sha256.Size * 2
	headerLen = 4

	passwordField protowire.Number = 1
)

// Identity holds the fields the decryption key is derived from.
type Identity = types.Identity

// AuthTokenInfo is the record carried inside an issued token.
type AuthTokenInfo struct {
	Password string
}

// Parse decrypts token for identity and returns the record it carries.
func Parse(identity Identity, token string) (*AuthTokenInfo, error) {
	if identity.InstanceID == "" || identity.Region == "" || identity.UserName == "" || token == "" {
		return nil, parseErrorf("param empty")
	}
	if len(token) <= digestLen {
		return nil, parseErrorf("token too short")
	}

	key, iv := deriveKey(identity)

	ciphertext, err := decodeBase64(token[digestLen:])
	if err != nil {
		return nil, parseErrorf("invalid base64 payload: %v", err)
	}
	plaintext, err := decrypt(ciphertext, key, iv)
	if err != nil {
		return nil, err
	}

	digest := sha256Hex(plaintext)
	if subtle.ConstantTimeCompare([]byte(token[:digestLen]), []byte(digest)) != 1 {
		return nil, parseErrorf("token not compare")
	}

	if len(plaintext) < headerLen {
		return nil, parseErrorf("payload shorter than header")
	}
	return unmarshalInfo(plaintext[headerLen:])
}

// Seal encrypts info for identity in the issuer's token format.
func Seal(identity Identity, info *AuthTokenInfo) (string, error) {
	if identity.InstanceID == "" || identity.Region == "" || identity.UserName == "" || info == nil {
		return "", parseErrorf("param empty")
	}
	record := marshalInfo(info)

	plaintext := make([]byte, headerLen, headerLen+len(record))
	binary.BigEndian.PutUint32(plaintext, uint32(len(record)))
	plaintext = append(plaintext, record...)

	key, iv := deriveKey(identity)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Trace(err)
	}
	padded := pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return sha256Hex(plaintext) + base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// deriveKey returns the AES key and IV for identity. Both are slices of the
// hex encoded digest of the identity seed, used as raw ASCII bytes.
func deriveKey(identity Identity) (key, iv []byte) {
	seed := sha256Hex([]byte(identity.InstanceID + types.Delimiter + identity.Region + types.Delimiter + identity.UserName))
	return []byte(seed[:32]), []byte(seed[33:49])
}

func decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, parseErrorf("ciphertext is not a multiple of the block size")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Trace(err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return unpad(plaintext, aes.BlockSize)
}

// decodeBase64 accepts URL-safe base64 with or without padding.
func decodeBase64(data string) ([]byte, error) {
	data = strings.NewReplacer("-", "+", "_", "/").Replace(data)
	if mod := len(data) % 4; mod != 0 {
		data += strings.Repeat("=", 4-mod)
	}
	return base64.StdEncoding.DecodeString(data)
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, parseErrorf("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, parseErrorf("padding is incorrect")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, parseErrorf("padding is incorrect")
		}
	}
	return data[:len(data)-n], nil
}

func unmarshalInfo(b []byte) (*AuthTokenInfo, error) {
	info := &AuthTokenInfo{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseErrorf("failed to parse AuthTokenInfo: %v", protowire.ParseError(n))
		}
		b = b[n:]

		if num == passwordField && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, parseErrorf("failed to parse AuthTokenInfo: %v", protowire.ParseError(n))
			}
			info.Password = string(v)
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, parseErrorf("failed to parse AuthTokenInfo: %v", protowire.ParseError(n))
		}
		b = b[n:]
	}
	return info, nil
}

func marshalInfo(info *AuthTokenInfo) []byte {
	var b []byte
	if info.Password != "" {
		b = protowire.AppendTag(b, passwordField, protowire.BytesType)
		b = protowire.AppendString(b, info.Password)
	}
	return b
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func parseErrorf(format string, args ...interface{}) error {
	return errors.WithType(errors.Errorf(format, args...), ErrParse)
}
