package usecases

import (
	"fmt"

	"github.com/docker/go-units"
)

var sizeUnits = []string{"B", "K", "M", "G", "T", "P"}

// FormatBytes размер для людей, основание 1024: "512B", "1.5M".
func FormatBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%dB", b)
	}
	return units.CustomSize("%.1f%s", float64(b), 1024.0, sizeUnits)
}
