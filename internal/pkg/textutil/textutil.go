// Package textutil 提供检索管线相关的文本处理工具函数。
package textutil

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"unicode/utf8"
)

// CosineSimilarity 计算两个向量的余弦相似度。
// 返回值范围为 [-1, 1]，1 表示完全相同，-1 表示完全相反。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// NormalizeCosineSimilarity 将余弦相似度归一化到 [0, 1] 范围。
func NormalizeCosineSimilarity(similarity float64) float64 {
	return (similarity + 1) / 2
}

// HashString 计算字符串的 MD5 哈希值。
func HashString(s string) string {
	hash := md5.Sum([]byte(s))
	return hex.EncodeToString(hash[:])
}

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// IsValidUTF8 检查字节序列是否为合法 UTF-8 文本。
func IsValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}
