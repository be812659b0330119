package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// burnComparison spends the same bcrypt work as a real check so unknown
// usernames cannot be told apart by response time.
func burnComparison(password string) {
	dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("supportdesk-placeholder"), bcrypt.DefaultCost)
		if err == nil {
			dummyHash = string(hash)
		}
	})
	if dummyHash != "" {
		_ = CheckPassword(dummyHash, password)
	}
}
