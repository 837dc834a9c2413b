package crypto

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	for _, prefix := range []AddressPrefix{PrincipalPrefix, TokenPrefix, HandlerPrefix} {
		addr := MustAddress(prefix, "roundtrip")
		encoded := addr.String()
		require.True(t, strings.HasPrefix(encoded, string(prefix)+"1"), encoded)

		decoded, err := DecodeAddress(encoded)
		require.NoError(t, err)
		require.Equal(t, prefix, decoded.Prefix())
		require.True(t, decoded.Equal(addr))
		require.Equal(t, encoded, decoded.String())
	}
}

func TestMustAddressDeterministic(t *testing.T) {
	require.Equal(t, MustAddress(PrincipalPrefix, "gov").String(), MustAddress(PrincipalPrefix, "gov").String())
	require.False(t, MustAddress(PrincipalPrefix, "gov").Equal(MustAddress(PrincipalPrefix, "treasury")))
	// Prefixes are presentation only.
	require.True(t, MustAddress(PrincipalPrefix, "x").Equal(MustAddress(TokenPrefix, "x")))
}

func TestDecodeAddressErrors(t *testing.T) {
	_, err := DecodeAddress("not-an-address")
	require.ErrorContains(t, err, "invalid bech32 string")

	valid := NewAddress(PrincipalPrefix, make([]byte, AddressLength)).String()
	replacement := "q"
	if strings.HasSuffix(valid, "q") {
		replacement = "p"
	}
	_, err = DecodeAddress(valid[:len(valid)-1] + replacement)
	require.Error(t, err, "checksum mismatch")

	require.Panics(t, func() { NewAddress(PrincipalPrefix, []byte{1, 2, 3}) })
}

func TestAddressText(t *testing.T) {
	addr := MustAddress(HandlerPrefix, "vault-1")
	payload, err := json.Marshal(struct {
		Handler Address `json:"handler"`
	}{Handler: addr})
	require.NoError(t, err)
	require.JSONEq(t, `{"handler":"`+addr.String()+`"}`, string(payload))

	var decoded struct {
		Handler Address `json:"handler"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.True(t, decoded.Handler.Equal(addr))

	var zero Address
	require.NoError(t, zero.UnmarshalText([]byte("  ")))
	require.True(t, zero.IsZero())
	require.Equal(t, "", zero.String())
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "nested", "engine.keystore")

	require.NoError(t, SaveToKeystore(path, key, "hunter2-hunter2"))

	loaded, err := LoadFromKeystore(path, "hunter2-hunter2")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())

	addr, err := KeystoreAddress(path)
	require.NoError(t, err)
	require.True(t, addr.Equal(key.PubKey().Address()))
	require.Equal(t, PrincipalPrefix, addr.Prefix())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)

	require.Error(t, SaveToKeystore(path, nil, "x"))
	require.Error(t, SaveToKeystore("", key, "x"))
	_, err = LoadFromKeystore("", "x")
	require.Error(t, err)
}

func TestPrivateKeyFromBytes(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.True(t, restored.PubKey().Address().Equal(key.PubKey().Address()))

	_, err = PrivateKeyFromBytes([]byte{1})
	require.Error(t, err)
}
