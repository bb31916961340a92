package extractor

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

const (
	wordSize = 32
	padSize  = wordSize - common.AddressLength
)

var zeroPad = make([]byte, padSize)

// AddressFromWord decodes an address stored in a 32-byte storage word. The
// address may be left-padded (ABI style) or right-padded with zero bytes.
func AddressFromWord(word []byte) (domain.Address, bool) {
	if len(word) > wordSize {
		return "", false
	}
	w := common.LeftPadBytes(word, wordSize)

	if bytes.Equal(w[:padSize], zeroPad) && !isZero(w[padSize:]) {
		return domain.AddressFromBytes(w[padSize:]), true
	}
	if bytes.Equal(w[common.AddressLength:], zeroPad) && !isZero(w[:common.AddressLength]) {
		return domain.AddressFromBytes(w[:common.AddressLength]), true
	}
	return "", false
}

// PushedAddresses walks code and returns the non-zero operands of every PUSH20,
// skipping the immediates of all other PUSH instructions.
func PushedAddresses(code []byte) []domain.Address {
	var out []domain.Address
	for pc := 0; pc < len(code); pc++ {
		op := vm.OpCode(code[pc])
		if op < vm.PUSH1 || op > vm.PUSH32 {
			continue
		}
		n := int(op-vm.PUSH1) + 1
		end := pc + 1 + n
		if end > len(code) {
			// truncated immediate at the end of the code
			break
		}
		if op == vm.PUSH20 {
			if operand := code[pc+1 : end]; !isZero(operand) {
				out = append(out, domain.AddressFromBytes(operand))
			}
		}
		pc = end - 1
	}
	return out
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
