package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	s := New(keyring.NewArrayKeyring(nil))
	key := IMAPKey("me", "mail.example.com")

	require.NoError(t, s.Set(key, "secret"))

	got, err := s.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	require.NoError(t, s.Delete(key))
	_, err = s.Get(key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetMissing(t *testing.T) {
	s := New(keyring.NewArrayKeyring([]keyring.Item{{Key: "other", Data: []byte("x")}}))

	_, err := s.Get(IMAPKey("me", "host"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIMAPKey(t *testing.T) {
	assert.Equal(t, "imap:me@mail.example.com", IMAPKey("me", "mail.example.com"))
}

func TestLookupFunc(t *testing.T) {
	var got string
	f := LookupFunc(func(key string) (string, error) {
		got = key
		return "value", nil
	})

	v, err := f.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, "k", got)
}
