package presenter

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var formats = map[string]string{
	"1":        "https://etherscan.io/token/%s",
	"5":        "https://goerli.etherscan.io/token/%s",
	"10":       "https://optimistic.etherscan.io/token/%s",
	"56":       "https://bscscan.com/token/%s",
	"100":      "https://gnosisscan.io/token/%s",
	"137":      "https://polygonscan.com/token/%s",
	"8453":     "https://basescan.org/token/%s",
	"42161":    "https://arbiscan.io/token/%s",
	"11155111": "https://sepolia.etherscan.io/token/%s",
}

func formatAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func tokenLink(chainID string, addr common.Address) string {
	if format, ok := formats[chainID]; ok {
		return fmt.Sprintf(format, formatAddress(addr))
	}
	return ""
}

func statusMessage(lastIndexedBlock *uint) string {
	if lastIndexedBlock == nil {
		return "no data indexed yet"
	}
	return fmt.Sprintf("partial data, last indexed block %d", *lastIndexedBlock)
}
