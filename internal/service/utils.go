package service

import (
	"math"
	"strconv"
	"strings"
)

func StringToFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// ParseFloats 解析字符串序列，忽略空字符串、非数字以及 NaN/Inf
func ParseFloats(raw []string) []float64 {
	out := make([]float64, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		v, err := StringToFloat(s)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}
