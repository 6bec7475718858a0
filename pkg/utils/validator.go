package utils

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var (
	ErrInvalidPhoneNumberFormat = errors.New("invalid phone number, expected E.164 format such as +15551234567")
	ErrInvalidEmailFormat       = errors.New("invalid email format")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// IsNumeric 检查字符串是否只包含数字
func IsNumeric(s string) bool {
	if s == "" {
		return false // 空字符串不视为数字
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// NormalizePhoneNumber strips spaces, dashes and parentheses from a phone number.
func NormalizePhoneNumber(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

// ValidatePhoneNumber 校验 E.164 格式的手机号码（+ 加 8 到 15 位数字）。
func ValidatePhoneNumber(phone string) error {
	normalized := NormalizePhoneNumber(phone)
	if !strings.HasPrefix(normalized, "+") {
		return ErrInvalidPhoneNumberFormat
	}
	digits := normalized[1:]
	if len(digits) < 8 || len(digits) > 15 || !IsNumeric(digits) || digits[0] == '0' {
		return ErrInvalidPhoneNumberFormat
	}
	return nil
}

// ValidateEmailFormat 校验邮箱格式。
func ValidateEmailFormat(email string) bool {
	trimmedEmail := strings.TrimSpace(email)
	if trimmedEmail == "" {
		return true // 空字符串不进行格式校验，业务逻辑决定是否允许为空
	}
	return emailPattern.MatchString(trimmedEmail)
}
