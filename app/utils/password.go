package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword 生成访问口令的 bcrypt 哈希，用于写入配置
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// VerifyPassword 校验用户输入的口令是否匹配配置中的哈希
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
