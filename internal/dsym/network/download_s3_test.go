package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{
			name:       "bucket and key",
			uri:        "s3://my-bucket/builds/dsyms.zip",
			wantBucket: "my-bucket",
			wantKey:    "builds/dsyms.zip",
		},
		{
			name:       "key without prefix",
			uri:        "s3://my-bucket/dsyms.zip",
			wantBucket: "my-bucket",
			wantKey:    "dsyms.zip",
		},
		{
			name:    "missing key",
			uri:     "s3://my-bucket",
			wantErr: true,
		},
		{
			name:    "missing bucket",
			uri:     "s3:///dsyms.zip",
			wantErr: true,
		},
		{
			name:    "not an s3 scheme",
			uri:     "https://example.com/dsyms.zip",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}
