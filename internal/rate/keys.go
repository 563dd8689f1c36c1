package rate

import "strings"

func loginUserKey(email string) string {
	return "al:" + strings.ToLower(strings.TrimSpace(email))
}

func loginIPKey(ip string) string {
	return "ali:" + ip
}
