package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxNameLength      = 255
	MaxExtensionLength = 32
)

// ValidateName 检查单个路径段是否合法
func ValidateName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if utf8.RuneCountInString(name) > MaxNameLength || !utf8.ValidString(name) {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

// SplitFileName 拆分 "report.final.pdf" 为 ("report.final", "pdf")
// 以点开头且没有其它点的名字 (如 ".env") 视为没有扩展名
func SplitFileName(full string) (name, ext string) {
	idx := strings.LastIndex(full, ".")
	if idx <= 0 || idx == len(full)-1 {
		return full, ""
	}
	ext = full[idx+1:]
	if len(ext) > MaxExtensionLength {
		return full, ""
	}
	return full[:idx], ext
}

// NumberedName 生成上传重名时的候选名: "report (2)"
func NumberedName(name string, n int) string {
	if n <= 0 {
		return name
	}
	return fmt.Sprintf("%s (%d)", name, n)
}
