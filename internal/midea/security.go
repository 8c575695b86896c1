package midea

import (
	"bytes"
	"crypto/aes"
	"crypto/md5" // nolint:gosec
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// dataKeySize is the length of the AES-128 key derived from the access token.
const dataKeySize = 16

// sign computes the request signature: sha256 over the URL path, the
// sorted unescaped query and the application key.
func sign(path string, params url.Values, appKey string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var query strings.Builder
	for i, k := range keys {
		if i > 0 {
			query.WriteByte('&')
		}
		query.WriteString(k)
		query.WriteByte('=')
		query.WriteString(params.Get(k))
	}

	return sha256Hex([]byte(path + query.String() + appKey))
}

// encryptPassword hashes the account password the way the login endpoint expects.
func encryptPassword(loginID, password, appKey string) string {
	return sha256Hex([]byte(loginID + sha256Hex([]byte(password)) + appKey))
}

// deriveDataKey decrypts the hex access token with md5hex(appKey)[:16],
// yielding the key used for transparent command payloads.
func deriveDataKey(accessToken, appKey string) ([]byte, error) {
	raw, err := hex.DecodeString(accessToken)
	if err != nil {
		return nil, fmt.Errorf("decoding access token: %w", err)
	}
	key := []byte(md5Hex([]byte(appKey))[:dataKeySize])
	dataKey, err := aesEcbDecrypt(raw, key)
	if err != nil {
		return nil, fmt.Errorf("decrypting access token: %w", err)
	}
	if len(dataKey) != dataKeySize {
		return nil, fmt.Errorf("data key is %d bytes, want %d", len(dataKey), dataKeySize)
	}
	return dataKey, nil
}

// encodeOrder renders frame bytes as comma separated signed decimals.
func encodeOrder(data []byte) []byte {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = strconv.Itoa(int(int8(b)))
	}
	return []byte(strings.Join(parts, ","))
}

// decodeOrder reverses encodeOrder.
func decodeOrder(text []byte) ([]byte, error) {
	if len(text) == 0 {
		return nil, nil
	}
	parts := strings.Split(string(text), ",")
	out := make([]byte, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("decoding byte %d: %w", i, err)
		}
		if n < -128 || n > 255 {
			return nil, fmt.Errorf("byte %d out of range: %d", i, n)
		}
		if n < 0 {
			n += 256
		}
		out[i] = byte(n)
	}
	return out, nil
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data) // nolint:gosec
	return hex.EncodeToString(sum[:])
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - (len(data) % blockSize)
	return append(data, bytes.Repeat([]byte{byte(pad)}, pad)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padding size")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize {
		return nil, errors.New("invalid padding")
	}
	for i := 0; i < pad; i++ {
		if data[len(data)-1-i] != byte(pad) {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}

func aesEcbEncrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	padded := pkcs7Pad(append([]byte(nil), plaintext...), bs)
	out := make([]byte, len(padded))
	for start := 0; start < len(padded); start += bs {
		block.Encrypt(out[start:start+bs], padded[start:start+bs])
	}
	return out, nil
}

func aesEcbDecrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, errors.New("invalid ecb ciphertext length")
	}
	out := make([]byte, len(ciphertext))
	for start := 0; start < len(ciphertext); start += bs {
		block.Decrypt(out[start:start+bs], ciphertext[start:start+bs])
	}
	return pkcs7Unpad(out, bs)
}
