package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicLinker_Link(t *testing.T) {
	l, err := NewPublicLinker("https://files.example.org/olymp/")
	require.NoError(t, err)

	link, err := l.Link(context.Background(), "/blocks/junior_1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.org/olymp/blocks/junior_1.pdf", link)

	_, err = l.Link(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestNewPublicLinker_RejectsRelativeURL(t *testing.T) {
	_, err := NewPublicLinker("files/olymp")
	assert.Error(t, err)
}

func TestS3Linker_PresignsKey(t *testing.T) {
	l, err := NewS3Linker(context.Background(), Config{
		AccountID:       "acc",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "problems",
	})
	require.NoError(t, err)

	link, err := l.Link(context.Background(), "blocks/senior_2.pdf")
	require.NoError(t, err)
	assert.Contains(t, link, "https://acc.r2.cloudflarestorage.com/problems/blocks/senior_2.pdf")
	assert.Contains(t, link, "X-Amz-Signature=")
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Bucket: "b"}.Enabled())
	assert.True(t, Config{PublicBaseURL: "https://x"}.Enabled())
}
