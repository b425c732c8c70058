package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// AvatarURL returns the Gravatar image for the signed in user's email.
// Size defaults to 64px; unknown addresses get the generic silhouette.
func AvatarURL(email string, size int) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	if size <= 0 {
		size = 64
	}
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?s=%d&d=mp", md5.Sum([]byte(email)), size)
}
