package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxLength bcrypt 只使用密码的前 72 个字节
const MaxLength = 72

// ErrTooLong 密码超过 MaxLength 字节
var ErrTooLong = errors.New("password: longer than 72 bytes")

// Hash 生成 bcrypt 哈希，超长密码直接拒绝而不是静默截断
func Hash(plain string) (string, error) {
	if len(plain) > MaxLength {
		return "", ErrTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify 校验密码，哈希格式错误视为不匹配
func Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
