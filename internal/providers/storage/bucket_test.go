package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBucketRoundTrip(t *testing.T) {
	bucket, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	n, err := bucket.Put(ctx, "9/invoice/1/photo.jpg", strings.NewReader("jpeg bytes"))
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)

	rc, err := bucket.Open(ctx, "9/invoice/1/photo.jpg")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(body))

	require.NoError(t, bucket.Delete(ctx, "9/invoice/1/photo.jpg"))
	require.NoError(t, bucket.Delete(ctx, "9/invoice/1/photo.jpg"))
	_, err = bucket.Open(ctx, "9/invoice/1/photo.jpg")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalBucketRejectsEscapingKeys(t *testing.T) {
	bucket, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "/etc/passwd", "../outside", "a/../../outside"} {
		_, err := bucket.Put(context.Background(), key, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestLocalBucketHonoursCancellation(t *testing.T) {
	bucket, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = bucket.Put(ctx, "k", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = bucket.Open(context.Background(), "k")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
