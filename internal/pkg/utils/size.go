package utils

import (
	"fmt"
	"strconv"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// FormatSize 把字节数格式化成两位小数加单位
// 单位由十进制位数决定 (每三位升一级)，而除数是 1024 的幂，
// 所以 1000~1023 字节显示为 "0.98 KB" 这样的值，与旧系统保持一致
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	factor := (len(strconv.FormatInt(bytes, 10)) - 1) / 3
	if factor >= len(sizeUnits) {
		factor = len(sizeUnits) - 1
	}
	value := float64(bytes)
	for i := 0; i < factor; i++ {
		value /= 1024
	}
	return fmt.Sprintf("%.2f %s", value, sizeUnits[factor])
}
