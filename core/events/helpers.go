package events

import (
	"math/big"
	"strconv"
	"strings"
)

func amountString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func vaultString(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func normalizeLabel(label string) string {
	return strings.TrimSpace(label)
}
