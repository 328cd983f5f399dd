package vault

import (
	"testing"
	"time"
)

func TestNewS3Vault(t *testing.T) {
	t.Run("requires bucket", func(t *testing.T) {
		if _, err := NewS3Vault("test", S3Options{}); err == nil {
			t.Error("NewS3Vault() expected error without bucket")
		}
	})

	t.Run("applies defaults", func(t *testing.T) {
		v, err := NewS3Vault("test", S3Options{
			Bucket:          "backups",
			Region:          "eu-west-1",
			Endpoint:        "http://127.0.0.1:9000",
			AccessKeyID:     "AKIDEXAMPLE",
			SecretAccessKey: "secret",
		})
		if err != nil {
			t.Fatalf("NewS3Vault() error = %v", err)
		}
		if v.timeout != time.Minute {
			t.Errorf("timeout = %v, want %v", v.timeout, time.Minute)
		}
		if v.bucket != "backups" {
			t.Errorf("bucket = %q, want %q", v.bucket, "backups")
		}
	})
}

func TestS3Vault_ObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "host-1/dupdb.db"},
		{"dupdb", "dupdb/host-1/dupdb.db"},
		{"dupdb/", "dupdb/host-1/dupdb.db"},
		{"a/b", "a/b/host-1/dupdb.db"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			v := &S3Vault{prefix: tt.prefix}
			if got := v.objectKey("host-1", "dupdb.db"); got != tt.want {
				t.Errorf("objectKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
