package state

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"safesaviour/native/rescue"
)

var (
	rolePrefix       = []byte("role:")
	collateralPrefix = []byte("collateral:")
	vaultPrefix      = []byte("vault:")
	pausePrefix      = []byte("pause:")
	paramsKey        = ethcrypto.Keccak256([]byte("rescue/params"))
)

func roleKey(role rescue.Role) []byte {
	buf := make([]byte, len(rolePrefix)+len(role))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	return ethcrypto.Keccak256(buf)
}

func collateralKey(ct rescue.CollateralType) []byte {
	buf := make([]byte, len(collateralPrefix)+len(ct))
	copy(buf, collateralPrefix)
	copy(buf[len(collateralPrefix):], ct[:])
	return buf
}

func vaultKey(id rescue.VaultID) []byte {
	buf := make([]byte, len(vaultPrefix)+8)
	copy(buf, vaultPrefix)
	binary.BigEndian.PutUint64(buf[len(vaultPrefix):], uint64(id))
	return buf
}

func pauseKey(module string) []byte {
	buf := make([]byte, len(pausePrefix)+len(module))
	copy(buf, pausePrefix)
	copy(buf[len(pausePrefix):], module)
	return buf
}
